package adplatform

import (
	"context"
	"time"
)

// Client is the narrow contract the orchestrator needs from the external ad
// platform. Every call may fail; callers decide whether a failure is fatal.
type Client interface {
	CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*CreateCampaignResponse, error)
	PauseCampaign(ctx context.Context, req CampaignRequest) error
	ResumeCampaign(ctx context.Context, req CampaignRequest) error
	CancelOrder(ctx context.Context, req CancelOrderRequest) error
	GetReportData(ctx context.Context, req ReportRequest) (*Report, error)
	GetNoteMetrics(ctx context.Context, req NoteMetricsRequest) (*NoteMetrics, error)
}

// Credentials identify the advertiser account a call acts on behalf of.
type Credentials struct {
	AdvertiserID string
	AccessToken  string
}

type CreateCampaignRequest struct {
	Credentials
	NoteID    string
	OrderNo   string
	Budget    int64
	BidAmount int64
	Objective string
}

type CreateCampaignResponse struct {
	CampaignID string `json:"campaign_id"`
	UnitID     string `json:"unit_id"`
}

type CampaignRequest struct {
	Credentials
	CampaignID string
}

type CancelOrderRequest struct {
	Credentials
	OrderNo string
}

type ReportRequest struct {
	Credentials
	CampaignID string
	StartDate  time.Time
	EndDate    time.Time
}

type Report struct {
	Spent       float64 `json:"spent"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"`
	Leads       int64   `json:"leads"`
	CostPerLead float64 `json:"cost_per_lead"`
}

type NoteMetricsRequest struct {
	Credentials
	NoteID string
}

type NoteMetrics struct {
	Impressions  int64 `json:"impressions"`
	Reads        int64 `json:"reads"`
	Interactions int64 `json:"interactions"`
}
