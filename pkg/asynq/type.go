package asynq

const (
	// ProcessDueTask is the periodic beat that drains due orchestrator tasks.
	ProcessDueTask = "orchestrator:process_due"
)

// ProcessDuePayload overrides the configured batch size when non-zero.
type ProcessDuePayload struct {
	BatchSize int `json:"batch_size,omitempty"`
}
