package adplatform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"promoflow/pkg/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("adplatform",
	fx.Provide(NewHTTPClient),
)

const accessTokenHeader = "Access-Token"

// APIError is a non-zero business code returned inside a 2xx envelope, or a
// non-2xx response.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ad platform: status %d code %d: %s", e.Status, e.Code, e.Message)
}

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type httpClient struct {
	rc *resty.Client
}

// NewHTTPClient talks JSON to AD_PLATFORM.BASE_URL. Request signing is left to
// a gateway in front of the platform.
func NewHTTPClient(cfg *config.Config) Client {
	rc := resty.New().
		SetBaseURL(cfg.AdPlatform.BaseURL).
		SetTimeout(cfg.AdPlatform.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.AdPlatform.AccessToken != "" {
		rc.SetHeader(accessTokenHeader, cfg.AdPlatform.AccessToken)
	}
	return &httpClient{rc: rc}
}

func (c *httpClient) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*CreateCampaignResponse, error) {
	body := map[string]any{
		"advertiser_id": req.AdvertiserID,
		"note_id":       req.NoteID,
		"order_no":      req.OrderNo,
		"budget":        req.Budget,
		"bid_amount":    req.BidAmount,
		"objective":     req.Objective,
	}

	var out envelope[CreateCampaignResponse]
	if err := c.do(ctx, req.Credentials, "POST", "/v1/campaigns", body, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *httpClient) PauseCampaign(ctx context.Context, req CampaignRequest) error {
	path := fmt.Sprintf("/v1/campaigns/%s/pause", url.PathEscape(req.CampaignID))
	return c.do(ctx, req.Credentials, "POST", path, c.advertiser(req.Credentials), nil, &envelope[struct{}]{})
}

func (c *httpClient) ResumeCampaign(ctx context.Context, req CampaignRequest) error {
	path := fmt.Sprintf("/v1/campaigns/%s/resume", url.PathEscape(req.CampaignID))
	return c.do(ctx, req.Credentials, "POST", path, c.advertiser(req.Credentials), nil, &envelope[struct{}]{})
}

func (c *httpClient) CancelOrder(ctx context.Context, req CancelOrderRequest) error {
	path := fmt.Sprintf("/v1/orders/%s/cancel", url.PathEscape(req.OrderNo))
	return c.do(ctx, req.Credentials, "POST", path, c.advertiser(req.Credentials), nil, &envelope[struct{}]{})
}

func (c *httpClient) GetReportData(ctx context.Context, req ReportRequest) (*Report, error) {
	query := map[string]string{
		"advertiser_id": req.AdvertiserID,
		"campaign_id":   req.CampaignID,
		"start_date":    req.StartDate.UTC().Format("2006-01-02T15:04:05Z"),
		"end_date":      req.EndDate.UTC().Format("2006-01-02T15:04:05Z"),
	}

	var out envelope[Report]
	if err := c.do(ctx, req.Credentials, "GET", "/v1/reports", nil, query, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *httpClient) GetNoteMetrics(ctx context.Context, req NoteMetricsRequest) (*NoteMetrics, error) {
	path := fmt.Sprintf("/v1/notes/%s/metrics", url.PathEscape(req.NoteID))

	var out envelope[NoteMetrics]
	if err := c.do(ctx, req.Credentials, "GET", path, nil, map[string]string{"advertiser_id": req.AdvertiserID}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *httpClient) advertiser(cred Credentials) map[string]any {
	return map[string]any{"advertiser_id": cred.AdvertiserID}
}

type coded interface {
	code() (int, string)
}

func (e *envelope[T]) code() (int, string) { return e.Code, e.Message }

func (c *httpClient) do(ctx context.Context, cred Credentials, method, path string, body any, query map[string]string, out coded) error {
	r := c.rc.R().SetContext(ctx)
	if cred.AccessToken != "" {
		r.SetHeader(accessTokenHeader, cred.AccessToken)
	}
	if body != nil {
		r.SetBody(body)
	}
	if query != nil {
		r.SetQueryParams(query)
	}

	resp, err := r.Execute(method, path)
	if err != nil {
		zap.L().Warn("ad platform request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("ad platform %s %s: %w", method, path, err)
	}

	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Message: resp.String()}
	}
	// the platform does not reliably set Content-Type, so the envelope is
	// always decoded from the raw body
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &APIError{Status: resp.StatusCode(), Message: fmt.Sprintf("malformed response: %v", err)}
	}
	if code, msg := out.code(); code != 0 {
		return &APIError{Status: resp.StatusCode(), Code: code, Message: msg}
	}

	return nil
}
