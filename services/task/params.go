package task

import (
	"encoding/json"
	"fmt"
)

// CheckCampaignParams is the payload of check_campaign and
// check_managed_campaign. Batch pins the check to the batch it was scheduled
// for so a check outliving a restart or resume becomes a no-op.
type CheckCampaignParams struct {
	Batch int `json:"batch,omitempty"`
}

type RestartCampaignParams struct {
	// PreviousCampaignID is the campaign being replaced. It makes the restart
	// idempotent: a second restart for the same predecessor is skipped.
	PreviousCampaignID string `json:"previous_campaign_id,omitempty"`
	Budget             int64  `json:"budget,omitempty"`
	BidAmount          int64  `json:"bid_amount,omitempty"`
}

type SwitchWorkParams struct {
	FromWorkID       string `json:"from_work_id,omitempty"`
	FailedCampaignID string `json:"failed_campaign_id,omitempty"`
}

type PauseCampaignParams struct {
	Reason string `json:"reason,omitempty"`
}

type SyncAccountParams struct{}

type SyncWorkMetricsParams struct {
	// Attempt counts consecutive syncs; it is informational only.
	Attempt int `json:"attempt,omitempty"`
}

// DecodeParams unmarshals the persisted params envelope of t into P.
// An empty envelope decodes to the zero value.
func DecodeParams[P any](t *Task) (P, error) {
	var p P
	if len(t.Params) == 0 || string(t.Params) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(t.Params, &p); err != nil {
		return p, fmt.Errorf("decode %s params: %w", t.Type, err)
	}
	return p, nil
}
