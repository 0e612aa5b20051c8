package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"promoflow/pkg/config"
	"promoflow/pkg/db/option"
	"promoflow/pkg/errutil"
	"promoflow/pkg/logger"
	"promoflow/pkg/repository"
	"promoflow/services/account"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("promoflow/services/ledger")

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	pricing *Catalog

	account     repository.Repository[account.Account]
	transaction repository.Repository[Transaction]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		pricing:     NewCatalog(repository.ProvideStore[PricingItem](p.DB), p.Config.Ledger.PricingCacheTTL),
		account:     repository.ProvideStore[account.Account](p.DB),
		transaction: repository.ProvideStore[Transaction](p.DB),
	}
}

func (s *Service) Pricing() *Catalog {
	return s.pricing
}

func (s *Service) GetBalance(ctx context.Context, accountID string) (int64, error) {
	acct, err := s.findAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// CheckBalance is advisory only. Deduct is the gate.
func (s *Service) CheckBalance(ctx context.Context, accountID string, action Action) (*BalanceCheck, error) {
	price, err := s.pricing.Price(ctx, action)
	if err != nil {
		return nil, err
	}

	balance, err := s.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &BalanceCheck{
		Sufficient: balance >= price,
		Required:   price,
		Current:    balance,
	}, nil
}

// Deduct charges the price of action against the account with a single
// conditional update, so concurrent callers can never overdraw. The
// transaction row is written after the charge commits; failing to write it
// is logged and does not undo the charge.
func (s *Service) Deduct(ctx context.Context, accountID string, action Action, dc DeductContext) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ledger.Deduct")
	defer span.End()
	span.SetAttributes(attribute.String("account_id", accountID), attribute.String("action", string(action)))

	log := logger.L(ctx).With(zap.String("account_id", accountID), zap.String("action", string(action)))

	price, err := s.pricing.Price(ctx, action)
	if err != nil {
		return nil, err
	}

	if price == 0 {
		balance, err := s.GetBalance(ctx, accountID)
		if err != nil {
			return nil, err
		}
		deductTotal.WithLabelValues(string(action), "free").Inc()
		return &Result{Success: true, BalanceAfter: balance}, nil
	}

	var (
		applied bool
		after   int64
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&account.Account{}).
			Where("id = ? AND balance >= ?", accountID, price).
			Updates(map[string]any{
				"balance":        gorm.Expr("balance - ?", price),
				"total_consumed": gorm.Expr("total_consumed + ?", price),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		applied = true
		return tx.Model(&account.Account{}).Select("balance").Where("id = ?", accountID).Scan(&after).Error
	})
	if err != nil {
		log.Error("failed to deduct balance", zap.Error(err))
		return nil, fmt.Errorf("deduct %s: %w", action, err)
	}

	if !applied {
		acct, err := s.findAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}

		deductTotal.WithLabelValues(string(action), "insufficient").Inc()
		log.Info("insufficient balance", zap.Int64("price", price), zap.Int64("balance", acct.Balance))
		return &Result{
			Success:      false,
			Error:        fmt.Sprintf("insufficient balance, needed %d, have %d", price, acct.Balance),
			Price:        price,
			BalanceAfter: acct.Balance,
		}, nil
	}

	deductTotal.WithLabelValues(string(action), "success").Inc()

	description := dc.Description
	if description == "" {
		description = fmt.Sprintf("consume %s", action)
	}

	txn := &Transaction{
		ID:            s.node.Generate().String(),
		AccountID:     accountID,
		Type:          TransactionConsume,
		Action:        action,
		Amount:        -price,
		BalanceBefore: after + price,
		BalanceAfter:  after,
		RelatedID:     dc.RelatedID,
		RelatedType:   dc.RelatedType,
		Description:   description,
		Metadata:      marshalMetadata(dc.Metadata),
		OperatorID:    dc.OperatorID,
	}
	// the charge has committed; the row must not be lost to the caller's deadline
	if err := s.transaction.Create(context.WithoutCancel(ctx), txn); err != nil {
		log.Error("failed to record consume transaction", zap.Int64("price", price), zap.Error(err))
		txn.ID = ""
	}

	return &Result{
		Success:       true,
		Price:         price,
		BalanceAfter:  after,
		TransactionID: txn.ID,
	}, nil
}

// Recharge adds amount to the balance. The transaction row is written in the
// same database transaction as the increment.
func (s *Service) Recharge(ctx context.Context, accountID string, amount int64, operatorID, note string) (*Result, error) {
	if amount <= 0 {
		return &Result{Success: false, Error: "recharge amount must be positive"}, nil
	}

	return s.credit(ctx, accountID, amount, TransactionRecharge, "", DeductContext{
		Description: note,
		OperatorID:  operatorID,
	})
}

// Refund returns amount to the account after a paid action failed
// downstream of its charge.
func (s *Service) Refund(ctx context.Context, accountID string, action Action, amount int64, dc DeductContext) (*Result, error) {
	if amount <= 0 {
		return &Result{Success: true}, nil
	}
	if dc.Description == "" {
		dc.Description = fmt.Sprintf("refund %s", action)
	}

	return s.credit(ctx, accountID, amount, TransactionRefund, action, dc)
}

func (s *Service) credit(ctx context.Context, accountID string, amount int64, kind TransactionType, action Action, dc DeductContext) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ledger."+string(kind))
	defer span.End()

	updates := map[string]any{"balance": gorm.Expr("balance + ?", amount)}
	switch kind {
	case TransactionRecharge:
		updates["total_recharge"] = gorm.Expr("total_recharge + ?", amount)
	case TransactionRefund:
		updates["total_consumed"] = gorm.Expr("total_consumed - ?", amount)
	}

	txn := &Transaction{
		ID:          s.node.Generate().String(),
		AccountID:   accountID,
		Type:        kind,
		Action:      action,
		Amount:      amount,
		RelatedID:   dc.RelatedID,
		RelatedType: dc.RelatedType,
		Description: dc.Description,
		Metadata:    marshalMetadata(dc.Metadata),
		OperatorID:  dc.OperatorID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&account.Account{}).Where("id = ?", accountID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.NotFound("account not found", nil)
		}

		var after int64
		if err := tx.Model(&account.Account{}).Select("balance").Where("id = ?", accountID).Scan(&after).Error; err != nil {
			return err
		}
		txn.BalanceAfter = after
		txn.BalanceBefore = after - amount

		return s.transaction.WithTrx(tx).Create(ctx, txn)
	})
	if err != nil {
		logger.L(ctx).Error("failed to credit balance",
			zap.String("account_id", accountID),
			zap.String("type", string(kind)),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return nil, err
	}

	return &Result{
		Success:       true,
		Price:         amount,
		BalanceAfter:  txn.BalanceAfter,
		TransactionID: txn.ID,
	}, nil
}

// ListTransactions returns the newest entries first.
func (s *Service) ListTransactions(ctx context.Context, accountID string, limit int) ([]*Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	return s.transaction.Find(ctx, &Transaction{AccountID: accountID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(limit),
	)
}

func (s *Service) findAccount(ctx context.Context, accountID string) (*account.Account, error) {
	acct, err := s.account.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, errutil.NotFound(fmt.Sprintf("account %s not found", accountID), nil)
	}
	return acct, nil
}

func marshalMetadata(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		zap.L().Warn("failed to marshal transaction metadata", zap.Error(err))
		return nil
	}
	return datatypes.JSON(b)
}
