package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"promoflow/pkg/config"
	"promoflow/pkg/db"
	"promoflow/pkg/logger"
	"promoflow/pkg/secretmanager"
	"promoflow/services/account"
	"promoflow/services/campaign"
	"promoflow/services/ledger"
	"promoflow/services/metricsync"
	"promoflow/services/task"
	"promoflow/services/work"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		fx.Invoke(run),
		fx.WithLogger(func(*zap.Logger) fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

func run(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&account.Account{},
		&work.Work{},
		&campaign.Campaign{},
		&campaign.DeliveryLog{},
		&task.Task{},
		&ledger.Transaction{},
		&ledger.PricingItem{},
		&metricsync.MetricSnapshot{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := campaign.Migrate(database); err != nil {
		return err
	}

	if err := seedPricing(context.Background(), database); err != nil {
		return err
	}

	zap.L().Info("migration completed")
	return nil
}

// seedPricing inserts the default price of every action that has no row
// yet. Existing rows are left alone so operator edits survive.
func seedPricing(ctx context.Context, database *gorm.DB) error {
	items := make([]*ledger.PricingItem, 0, len(ledger.DefaultPrices))
	for action, price := range ledger.DefaultPrices {
		items = append(items, &ledger.PricingItem{
			ID:      string(action),
			Action:  action,
			Price:   price,
			Enabled: true,
		})
	}

	res := database.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&items)
	if res.Error != nil {
		return fmt.Errorf("seed pricing: %w", res.Error)
	}

	zap.L().Info("pricing seeded", zap.Int64("inserted", res.RowsAffected))
	return nil
}
