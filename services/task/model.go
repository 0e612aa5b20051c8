package task

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Type string

const (
	TypeSyncAccount          Type = "sync_account"
	TypeCheckCampaign        Type = "check_campaign"
	TypeCheckManagedCampaign Type = "check_managed_campaign"
	TypeRestartCampaign      Type = "restart_campaign"
	TypeSwitchWork           Type = "switch_work"
	TypePauseCampaign        Type = "pause_campaign"
	TypeSyncWorkMetrics      Type = "sync_work_metrics"
)

// Types is the closed set of task kinds; every one needs a handler.
var Types = []Type{
	TypeSyncAccount,
	TypeCheckCampaign,
	TypeCheckManagedCampaign,
	TypeRestartCampaign,
	TypeSwitchWork,
	TypePauseCampaign,
	TypeSyncWorkMetrics,
}

func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

const (
	DefaultPriority   = 2
	DefaultMaxRetries = 3

	cancelledReason = "manually cancelled"
)

// Task is a deferred, retryable unit of work. Lower Priority runs first.
type Task struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(32)"`
	Type        Type           `gorm:"column:type;type:varchar(40);not null;index"`
	Status      Status         `gorm:"column:status;type:varchar(20);not null;index:idx_tasks_due,priority:1"`
	Priority    int            `gorm:"column:priority;not null;index:idx_tasks_due,priority:2"`
	ScheduledAt time.Time      `gorm:"column:scheduled_at;not null;index:idx_tasks_due,priority:3"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	RetryCount  int            `gorm:"column:retry_count;not null"`
	MaxRetries  int            `gorm:"column:max_retries;not null"`
	Params      datatypes.JSON `gorm:"column:params"`
	Result      datatypes.JSON `gorm:"column:result"`
	Error       string         `gorm:"column:error;type:text"`
	AccountID   string         `gorm:"column:account_id;type:varchar(32);index"`
	WorkID      string         `gorm:"column:work_id;type:varchar(32);index"`
	CampaignID  string         `gorm:"column:campaign_id;type:varchar(32);index"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Task) TableName() string { return "tasks" }

// Refs are the entity references a task acts on. Which ones are required
// depends on the task type.
type Refs struct {
	AccountID  string
	WorkID     string
	CampaignID string
}

func (t *Task) Refs() Refs {
	return Refs{AccountID: t.AccountID, WorkID: t.WorkID, CampaignID: t.CampaignID}
}

// Filter narrows List. Zero fields are ignored.
type Filter struct {
	Status    Status
	Type      Type
	AccountID string
	WorkID    string
	Limit     int
}

// ExecResult reports one execution inside a batch.
type ExecResult struct {
	TaskID string          `json:"task_id"`
	Type   Type            `json:"type"`
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type BatchResult struct {
	Processed int           `json:"processed"`
	Results   []*ExecResult `json:"results"`
}
