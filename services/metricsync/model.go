package metricsync

import "time"

// MetricSnapshot is one engagement reading of a work. Rows are append-only.
type MetricSnapshot struct {
	ID           string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	WorkID       string    `gorm:"column:work_id;type:varchar(32);not null;index:idx_snapshots_work,priority:1"`
	Impressions  int64     `gorm:"column:impressions;not null;default:0"`
	Reads        int64     `gorm:"column:reads;not null;default:0"`
	Interactions int64     `gorm:"column:interactions;not null;default:0"`
	CapturedAt   time.Time `gorm:"column:captured_at;not null;index:idx_snapshots_work,priority:2"`
}

func (MetricSnapshot) TableName() string { return "metric_snapshots" }

func (s *MetricSnapshot) Total() int64 {
	return s.Impressions + s.Reads + s.Interactions
}

// Metrics is an engagement reading as returned by a MetricsSource.
type Metrics struct {
	Impressions  int64 `json:"impressions"`
	Reads        int64 `json:"reads"`
	Interactions int64 `json:"interactions"`
}

type SyncResult struct {
	WorkID     string    `json:"work_id"`
	Skipped    bool      `json:"skipped,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Interval   string    `json:"interval,omitempty"`
	NextSyncAt time.Time `json:"next_sync_at,omitempty"`
	NextTaskID string    `json:"next_task_id,omitempty"`
}
