package metricsync

import (
	"context"

	"promoflow/pkg/adplatform"
)

// MetricsSource reads the current engagement of a published note.
type MetricsSource interface {
	NoteMetrics(ctx context.Context, creds adplatform.Credentials, noteID string) (*Metrics, error)
}

type adPlatformSource struct {
	client adplatform.Client
}

func NewAdPlatformSource(client adplatform.Client) MetricsSource {
	return &adPlatformSource{client: client}
}

func (s *adPlatformSource) NoteMetrics(ctx context.Context, creds adplatform.Credentials, noteID string) (*Metrics, error) {
	m, err := s.client.GetNoteMetrics(ctx, adplatform.NoteMetricsRequest{Credentials: creds, NoteID: noteID})
	if err != nil {
		return nil, err
	}
	return &Metrics{Impressions: m.Impressions, Reads: m.Reads, Interactions: m.Interactions}, nil
}
