package work

import "time"

type Status string

const (
	StatusUnused    Status = "unused"
	StatusScanned   Status = "scanned"
	StatusPublished Status = "published"
	StatusPromoting Status = "promoting"
	StatusPaused    Status = "paused"
	StatusArchived  Status = "archived"
)

// Work is a content piece and its delivery history. The Total* fields
// accumulate closed campaign batches.
type Work struct {
	ID        string `gorm:"column:id;primaryKey;type:varchar(32)"`
	AccountID string `gorm:"column:account_id;type:varchar(32);index;not null"`
	Title     string `gorm:"column:title;type:varchar(255)"`
	// NoteID is the content id on the external platform.
	NoteID string `gorm:"column:note_id;type:varchar(64)"`
	Status Status `gorm:"column:status;type:varchar(20);not null;index"`

	ConsecutiveFailures int     `gorm:"column:consecutive_failures;not null;default:0"`
	TotalSpent          float64 `gorm:"column:total_spent;not null;default:0"`
	TotalImpressions    int64   `gorm:"column:total_impressions;not null;default:0"`
	TotalClicks         int64   `gorm:"column:total_clicks;not null;default:0"`
	TotalLeads          int64   `gorm:"column:total_leads;not null;default:0"`
	AvgCostPerLead      float64 `gorm:"column:avg_cost_per_lead;not null;default:0"`
	PerformanceScore    float64 `gorm:"column:performance_score;not null;default:0"`

	PublishedAt *time.Time `gorm:"column:published_at"`
	NextSyncAt  *time.Time `gorm:"column:next_sync_at;index"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Work) TableName() string { return "works" }

// AddBatch folds one closed batch into the aggregates and recomputes the
// derived figures.
func (w *Work) AddBatch(spent float64, impressions, clicks, leads int64) {
	w.TotalSpent += spent
	w.TotalImpressions += impressions
	w.TotalClicks += clicks
	w.TotalLeads += leads

	w.AvgCostPerLead = 0
	if w.TotalLeads > 0 {
		w.AvgCostPerLead = w.TotalSpent / float64(w.TotalLeads)
	}

	w.PerformanceScore = 0
	if w.TotalSpent > 0 {
		w.PerformanceScore = float64(w.TotalLeads) * 100 / w.TotalSpent
	}
}
