package account

import (
	"time"
)

// Account holds the prepaid balance and the delivery settings of a tenant.
// Balances are integer minor currency units and never go negative.
type Account struct {
	ID            string `gorm:"column:id;primaryKey;type:varchar(32)"`
	Name          string `gorm:"column:name;type:varchar(255)"`
	Balance       int64  `gorm:"column:balance;not null;default:0"`
	TotalRecharge int64  `gorm:"column:total_recharge;not null;default:0"`
	TotalConsumed int64  `gorm:"column:total_consumed;not null;default:0"`

	// Zero means "use the system default".
	MinConsumption float64 `gorm:"column:min_consumption;not null;default:0"`
	MaxCostPerLead float64 `gorm:"column:max_cost_per_lead;not null;default:0"`
	MaxFailRetries int     `gorm:"column:max_fail_retries;not null;default:0"`

	AdvertiserID string     `gorm:"column:advertiser_id;type:varchar(64)"`
	AccessToken  string     `gorm:"column:access_token;type:text" json:"-"`
	LastSyncedAt *time.Time `gorm:"column:last_synced_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string { return "accounts" }

// HasDeliveryCredentials reports whether campaigns can be driven on the ad
// platform for this account.
func (a *Account) HasDeliveryCredentials() bool {
	return a.AdvertiserID != "" && a.AccessToken != ""
}
