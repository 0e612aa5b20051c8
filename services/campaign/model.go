package campaign

import (
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusFailed Status = "failed"
)

// Campaign is one promotion run of a work on the ad platform. A work has at
// most one active campaign, enforced by a partial unique index.
type Campaign struct {
	ID                 string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	AccountID          string    `gorm:"column:account_id;type:varchar(32);index;not null"`
	WorkID             string    `gorm:"column:work_id;type:varchar(32);index;not null"`
	ExternalCampaignID string    `gorm:"column:external_campaign_id;type:varchar(64)"`
	UnitID             string    `gorm:"column:unit_id;type:varchar(64)"`
	OrderNo            string    `gorm:"column:order_no;type:varchar(64)"`
	Budget             int64     `gorm:"column:budget;not null"`
	BidAmount          int64     `gorm:"column:bid_amount;not null"`
	Status             Status    `gorm:"column:status;type:varchar(20);not null;index"`
	CurrentBatch       int       `gorm:"column:current_batch;not null;default:1"`
	BatchStartAt       time.Time `gorm:"column:batch_start_at;not null"`

	// PreviousCampaignID is the campaign this one replaced; restarts and
	// switches use it as their idempotency key.
	PreviousCampaignID string `gorm:"column:previous_campaign_id;type:varchar(32);index"`

	// Latest report for the current batch.
	BatchSpent       float64 `gorm:"column:batch_spent;not null;default:0"`
	BatchImpressions int64   `gorm:"column:batch_impressions;not null;default:0"`
	BatchClicks      int64   `gorm:"column:batch_clicks;not null;default:0"`
	BatchLeads       int64   `gorm:"column:batch_leads;not null;default:0"`

	PausedAt  *time.Time `gorm:"column:paused_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Campaign) TableName() string { return "campaigns" }

// DeliveryLog is the immutable record of one decision evaluation.
type DeliveryLog struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	AccountID   string    `gorm:"column:account_id;type:varchar(32);index"`
	WorkID      string    `gorm:"column:work_id;type:varchar(32);index"`
	CampaignID  string    `gorm:"column:campaign_id;type:varchar(32);index"`
	PeriodStart time.Time `gorm:"column:period_start"`
	PeriodEnd   time.Time `gorm:"column:period_end"`
	Spent       float64   `gorm:"column:spent"`
	Impressions int64     `gorm:"column:impressions"`
	Clicks      int64     `gorm:"column:clicks"`
	Leads       int64     `gorm:"column:leads"`
	// CostPerLead is NULL when there were no leads.
	CostPerLead    *float64  `gorm:"column:cost_per_lead"`
	ConversionRate float64   `gorm:"column:conversion_rate"`
	IsEffective    bool      `gorm:"column:is_effective"`
	Decision       Action    `gorm:"column:decision;type:varchar(20)"`
	DecisionReason string    `gorm:"column:decision_reason;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (DeliveryLog) TableName() string { return "delivery_logs" }

// SubmitRequest creates a campaign for a work. Zero budget or bid fall back
// to the configured defaults.
type SubmitRequest struct {
	AccountID          string `json:"account_id"`
	WorkID             string `json:"work_id"`
	Budget             int64  `json:"budget"`
	BidAmount          int64  `json:"bid_amount"`
	PreviousCampaignID string `json:"previous_campaign_id,omitempty"`
}

// SubmitResult is structured so a balance shortfall reaches the caller as
// data. Idempotent is set when an existing campaign satisfied the request.
type SubmitResult struct {
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Idempotent bool      `json:"idempotent,omitempty"`
	Campaign   *Campaign `json:"campaign,omitempty"`
	CheckID    string    `json:"check_task_id,omitempty"`
}

type CheckRequest struct {
	CampaignID string
	WorkID     string
	// Batch, when set, must match the campaign's current batch.
	Batch int
	// Managed checks re-enqueue themselves as check_managed_campaign.
	Managed bool
}

type CheckResult struct {
	CampaignID    string  `json:"campaign_id"`
	WorkID        string  `json:"work_id"`
	Skipped       bool    `json:"skipped,omitempty"`
	Decision      Action  `json:"decision,omitempty"`
	Reason        string  `json:"reason"`
	DeliveryLogID string  `json:"delivery_log_id,omitempty"`
	NextTaskID    string  `json:"next_task_id,omitempty"`
	Spent         float64 `json:"spent"`
	Leads         int64   `json:"leads"`
}

type SwitchResult struct {
	NoWorkAvailable bool          `json:"no_work_available,omitempty"`
	Message         string        `json:"message,omitempty"`
	WorkID          string        `json:"work_id,omitempty"`
	Submit          *SubmitResult `json:"submit,omitempty"`
}
