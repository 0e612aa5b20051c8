package campaign

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const activeCampaignIndex = "idx_campaigns_work_active"

// Migrate creates the schema objects AutoMigrate cannot express: at most one
// active campaign per work.
func Migrate(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "postgres", "sqlite":
	default:
		zap.L().Warn("partial indexes unsupported, active campaign uniqueness is not enforced by the database",
			zap.String("dialect", db.Dialector.Name()))
		return nil
	}

	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON campaigns (work_id) WHERE status = '%s'",
		activeCampaignIndex, StatusActive,
	)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create %s: %w", activeCampaignIndex, err)
	}
	return nil
}
