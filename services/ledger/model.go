package ledger

import (
	"time"

	"gorm.io/datatypes"
)

type TransactionType string

const (
	TransactionRecharge TransactionType = "recharge"
	TransactionConsume  TransactionType = "consume"
	// TransactionRefund compensates a consume whose paid action failed downstream.
	TransactionRefund TransactionType = "refund"
)

// Action is a billable action key of the pricing catalog.
type Action string

const (
	ActionCampaignCreate Action = "campaign_create"
	ActionAIGenerate     Action = "ai_generate"
	ActionImageGenerate  Action = "image_generate"
	ActionAPICall        Action = "api_call"
	ActionContentScan    Action = "content_scan"
)

// DefaultPrices is used when the pricing table has no row for an action.
var DefaultPrices = map[Action]int64{
	ActionCampaignCreate: 500,
	ActionAIGenerate:     100,
	ActionImageGenerate:  200,
	ActionAPICall:        10,
	ActionContentScan:    50,
}

// Transaction is an append-only ledger entry. Amount is signed: negative for
// consume, positive for recharge and refund.
type Transaction struct {
	ID            string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	AccountID     string          `gorm:"column:account_id;index;not null"`
	Type          TransactionType `gorm:"column:type;type:varchar(20);not null"`
	Action        Action          `gorm:"column:action;type:varchar(64)"`
	Amount        int64           `gorm:"column:amount;not null"`
	BalanceBefore int64           `gorm:"column:balance_before;not null"`
	BalanceAfter  int64           `gorm:"column:balance_after;not null"`
	RelatedID     string          `gorm:"column:related_id;type:varchar(64);index"`
	RelatedType   string          `gorm:"column:related_type;type:varchar(32)"`
	Description   string          `gorm:"column:description;type:text"`
	Metadata      datatypes.JSON  `gorm:"column:metadata"`
	OperatorID    string          `gorm:"column:operator_id;type:varchar(64)"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime;index"`
}

func (Transaction) TableName() string { return "transactions" }

type PricingItem struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	Action      Action    `gorm:"column:action;type:varchar(64);uniqueIndex;not null"`
	Price       int64     `gorm:"column:price;not null"`
	Enabled     bool      `gorm:"column:enabled;not null"`
	Description string    `gorm:"column:description;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PricingItem) TableName() string { return "pricing_items" }

// DeductContext describes what a charge pays for.
type DeductContext struct {
	RelatedID   string
	RelatedType string
	Description string
	OperatorID  string
	Metadata    map[string]any
}

// Result is the outcome of a paid-action charge or a recharge. A shortfall is
// reported here with Success=false, never as a Go error.
type Result struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	Price         int64  `json:"price"`
	BalanceAfter  int64  `json:"balance_after"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type BalanceCheck struct {
	Sufficient bool  `json:"sufficient"`
	Required   int64 `json:"required"`
	Current    int64 `json:"current"`
}
