package adplatform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"promoflow/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.AdPlatform.BaseURL = srv.URL
	cfg.AdPlatform.Timeout = 5 * time.Second
	return NewHTTPClient(cfg)
}

func TestCreateCampaign(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/campaigns", r.URL.Path)
		require.Equal(t, "tok-1", r.Header.Get(accessTokenHeader))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "note-9", body["note_id"])

		_, _ = w.Write([]byte(`{"code":0,"data":{"campaign_id":"c-1","unit_id":"u-1"}}`))
	})

	out, err := client.CreateCampaign(context.Background(), CreateCampaignRequest{
		Credentials: Credentials{AdvertiserID: "adv", AccessToken: "tok-1"},
		NoteID:      "note-9",
		Budget:      10000,
		BidAmount:   30,
	})
	require.NoError(t, err)
	require.Equal(t, "c-1", out.CampaignID)
	require.Equal(t, "u-1", out.UnitID)
}

func TestBusinessCodeIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":40001,"message":"campaign not found"}`))
	})

	err := client.PauseCampaign(context.Background(), CampaignRequest{CampaignID: "missing"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 40001, apiErr.Code)
}

func TestReportServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "c-1", r.URL.Query().Get("campaign_id"))
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetReportData(context.Background(), ReportRequest{
		CampaignID: "c-1",
		StartDate:  time.Now().Add(-time.Hour),
		EndDate:    time.Now(),
	})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestEnvelopeDecodedWithoutJSONContentType(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"code":0,"data":{"spent":150,"impressions":900,"clicks":40,"leads":2}}`))
	})

	report, err := client.GetReportData(context.Background(), ReportRequest{CampaignID: "c-1"})
	require.NoError(t, err)
	require.Equal(t, 150.0, report.Spent)
	require.Equal(t, int64(2), report.Leads)
}

func TestHeaderlessErrorEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte(`{"code":40001,"message":"campaign not found"}`))
	})

	_, err := client.GetReportData(context.Background(), ReportRequest{CampaignID: "c-1"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 40001, apiErr.Code)
	require.Equal(t, "campaign not found", apiErr.Message)
}

func TestMalformedBodyIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	})

	err := client.CancelOrder(context.Background(), CancelOrderRequest{OrderNo: "ORD-1"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusOK, apiErr.Status)
}
