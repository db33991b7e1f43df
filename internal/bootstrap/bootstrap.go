// Package bootstrap seeds the records the exchange cannot run without: the
// quote instrument and the admin principal. Seeding is idempotent, so it
// runs unconditionally at startup.
package bootstrap

import (
	"context"

	"birzha/internal/errs"
	"birzha/internal/models"
	"birzha/internal/store"

	"go.uber.org/zap"
)

// Run ensures the quote instrument and the admin user exist. adminAPIKey
// becomes the admin's credential on first run; later runs leave an existing
// admin untouched.
func Run(ctx context.Context, st store.Store, adminAPIKey string, log *zap.Logger) error {
	return st.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.Instruments().GetByTicker(ctx, models.QuoteTicker)
		if errs.Is(err, errs.NotFound) {
			err = tx.Instruments().Create(ctx, &models.Instrument{
				Ticker: models.QuoteTicker,
				Name:   "rubles",
			})
			if err == nil {
				log.Info("seeded quote instrument", zap.String("ticker", models.QuoteTicker))
			}
		}
		if err != nil {
			return err
		}

		_, err = tx.Users().GetByAPIKey(ctx, adminAPIKey)
		if err == nil {
			return nil
		}
		if !errs.Is(err, errs.Unauthenticated) {
			return err
		}
		admin := models.NewUser("admin", models.RoleAdmin)
		admin.APIKey = adminAPIKey
		if err := tx.Users().Create(ctx, admin); err != nil {
			// A previous run seeded the admin under a different key.
			if errs.Is(err, errs.Conflict) {
				return nil
			}
			return err
		}
		log.Info("seeded admin principal", zap.Stringer("user_id", admin.ID))
		return nil
	})
}
