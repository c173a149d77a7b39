package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/zk-paygate/internal/app"
	"github.com/tbourn/zk-paygate/internal/config"
	"github.com/tbourn/zk-paygate/internal/proof"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the schema and seed the trust file's catalog and keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := log.Logger.WithContext(cmd.Context())

			trust, err := config.LoadTrust(cfg.TrustFile)
			if err != nil {
				return err
			}
			db, err := app.OpenDB(cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)

			if err := app.Seed(ctx, db, app.NewKeyStore(db, proof.NewGroth16()), trust); err != nil {
				return err
			}
			log.Info().
				Str("driver", cfg.DBDriver).
				Int("contents", len(trust.Contents)).
				Int("vkeys", len(trust.VerificationKeys)).
				Msg("migration complete")
			return nil
		},
	}
}
