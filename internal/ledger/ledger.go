// Package ledger implements the balance-reservation protocol. Every
// operation runs inside the caller's transaction and mutates rows under the
// store's row locks. The reserved counter is the single source of truth for
// outstanding order commitments: reserve on admission, release the
// reservation and settle the total together at trade time.
package ledger

import (
	"context"
	"sort"

	"birzha/internal/errs"
	"birzha/internal/models"
	"birzha/internal/store"

	"github.com/google/uuid"
)

// Change is one signed mutation of a balance total.
type Change struct {
	UserID uuid.UUID
	Ticker string
	Delta  int64
}

// Deposit credits amount to the user's total, creating the balance row on
// first credit. User and instrument must exist.
func Deposit(ctx context.Context, tx store.Tx, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return errs.E(errs.Validation, "deposit amount must be positive")
	}
	if err := checkRefs(ctx, tx, userID, ticker); err != nil {
		return err
	}
	b, err := lockOrInit(ctx, tx, userID, ticker)
	if err != nil {
		return err
	}
	b.Total += amount
	return tx.Balances().Upsert(ctx, b)
}

// Withdraw debits amount from the user's total. It refuses to break the
// reservation invariant: total - amount must stay at or above reserved.
func Withdraw(ctx context.Context, tx store.Tx, userID uuid.UUID, ticker string, amount int64) error {
	if amount <= 0 {
		return errs.E(errs.Validation, "withdraw amount must be positive")
	}
	if err := checkRefs(ctx, tx, userID, ticker); err != nil {
		return err
	}
	b, err := lockOrInit(ctx, tx, userID, ticker)
	if err != nil {
		return err
	}
	if b.Total-amount < b.Reserved {
		return errs.E(errs.Insufficient, "insufficient available %s balance", ticker)
	}
	b.Total -= amount
	return tx.Balances().Upsert(ctx, b)
}

// Available returns total - reserved, or 0 when no balance row exists.
func Available(ctx context.Context, tx store.Tx, userID uuid.UUID, ticker string) (int64, error) {
	b, err := tx.Balances().Get(ctx, userID, ticker)
	if errs.Is(err, errs.NotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return b.Available(), nil
}

// Reserve adjusts the user's reserved counter under a row lock. A positive
// delta fails Insufficient when it would exceed total; a negative delta
// clamps at zero so releases can never drive reserved negative.
func Reserve(ctx context.Context, tx store.Tx, userID uuid.UUID, ticker string, delta int64) error {
	b, err := lockOrInit(ctx, tx, userID, ticker)
	if err != nil {
		return err
	}
	if delta > 0 {
		if b.Reserved+delta > b.Total {
			return errs.E(errs.Insufficient, "insufficient available %s balance", ticker)
		}
		b.Reserved += delta
	} else {
		b.Reserved += delta
		if b.Reserved < 0 {
			b.Reserved = 0
		}
	}
	return tx.Balances().Upsert(ctx, b)
}

// Settle applies signed deltas to balance totals. Deltas against the same
// (user, ticker) row are merged, then rows are locked in lexicographic
// (user_id, ticker) order so concurrent settlements cannot deadlock. Any
// resulting negative total fails Insufficient. Callers must have released
// the matching reservation first so reserved never exceeds total.
func Settle(ctx context.Context, tx store.Tx, changes []Change) error {
	type key struct {
		userID uuid.UUID
		ticker string
	}
	merged := make(map[key]int64, len(changes))
	for _, c := range changes {
		merged[key{c.UserID, c.Ticker}] += c.Delta
	}

	keys := make([]key, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ui, uj := keys[i].userID.String(), keys[j].userID.String()
		if ui != uj {
			return ui < uj
		}
		return keys[i].ticker < keys[j].ticker
	})

	for _, k := range keys {
		delta := merged[k]
		if delta == 0 {
			continue
		}
		b, err := lockOrInit(ctx, tx, k.userID, k.ticker)
		if err != nil {
			return err
		}
		b.Total += delta
		if b.Total < 0 {
			return errs.E(errs.Insufficient, "settlement would overdraw %s balance of user %s", k.ticker, k.userID)
		}
		if err := tx.Balances().Upsert(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// lockOrInit locks the balance row, synthesizing a zero row when the
// balance does not exist yet (rows are created lazily).
func lockOrInit(ctx context.Context, tx store.Tx, userID uuid.UUID, ticker string) (*models.Balance, error) {
	b, err := tx.Balances().GetForUpdate(ctx, userID, ticker)
	if errs.Is(err, errs.NotFound) {
		return &models.Balance{UserID: userID, Ticker: ticker}, nil
	}
	return b, err
}

func checkRefs(ctx context.Context, tx store.Tx, userID uuid.UUID, ticker string) error {
	if _, err := tx.Users().GetByID(ctx, userID); err != nil {
		return err
	}
	if _, err := tx.Instruments().GetByTicker(ctx, ticker); err != nil {
		return err
	}
	return nil
}
