package models

import (
	"context"

	"github.com/mmdatafocus/billing_backend/config"
	"github.com/shopspring/decimal"
)

// BalanceMismatch reports a client whose stored balance has drifted from the
// sum of completed ledger effects (payments + refunds - charges).
type BalanceMismatch struct {
	ClientId int             `json:"client_id"`
	Stored   decimal.Decimal `json:"stored"`
	Derived  decimal.Decimal `json:"derived"`
}

// RunBalanceChecks recomputes each client's balance from completed
// transactions and returns the clients that do not match. Intended to run on a
// schedule (nightly) or via the admin trigger; it never mutates anything.
func RunBalanceChecks(ctx context.Context) ([]BalanceMismatch, error) {
	db := config.GetDB().WithContext(ctx)

	var clients []Client
	if err := db.Find(&clients).Error; err != nil {
		return nil, err
	}

	var mismatches []BalanceMismatch
	for _, client := range clients {
		type sumRow struct {
			Type  TransactionType
			Total decimal.Decimal
		}
		var sums []sumRow
		err := db.Model(&Transaction{}).
			Select("type, COALESCE(SUM(amount), 0) AS total").
			Where("client_id = ? AND status = ?", client.ID, TransactionStatusCompleted).
			Group("type").
			Scan(&sums).Error
		if err != nil {
			return nil, err
		}

		derived := decimal.Zero
		for _, row := range sums {
			switch row.Type {
			case TransactionTypeCharge:
				derived = derived.Sub(row.Total)
			case TransactionTypePayment, TransactionTypeRefund:
				derived = derived.Add(row.Total)
			}
		}

		if !derived.Equal(client.Balance) {
			mismatches = append(mismatches, BalanceMismatch{
				ClientId: client.ID,
				Stored:   client.Balance,
				Derived:  derived,
			})
		}
	}
	return mismatches, nil
}
