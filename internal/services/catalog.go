package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/config"
	"github.com/tbourn/zk-paygate/internal/domain"
	"github.com/tbourn/zk-paygate/internal/repo"
)

// SeedCatalog upserts the trust file's content items. Items dropped from
// the file are left untouched; mark them inactive to withdraw them.
func SeedCatalog(ctx context.Context, db *gorm.DB, defs []config.ContentDef) error {
	for _, d := range defs {
		c := &domain.Content{
			ID:                    d.ID,
			Title:                 d.Title,
			BasePrice:             d.BasePrice,
			CredentialDiscountBps: d.CredentialDiscountBps,
			Active:                d.IsActive(),
		}
		if err := repo.UpsertContent(ctx, db, c); err != nil {
			return fmt.Errorf("seed content %q: %w", d.ID, err)
		}
	}
	if len(defs) > 0 {
		log.Ctx(ctx).Info().Int("items", len(defs)).Msg("content catalog seeded")
	}
	return nil
}
