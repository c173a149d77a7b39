// Command paygate runs the payment verification API and its operator tools.
//
// @title                      zk-paygate API
// @version                    1.0
// @description                Verifies zero-knowledge and cross-chain payment proofs and releases access to paid content.
// @BasePath                   /api/v1
// @securityDefinitions.apikey AdminToken
// @in                         header
// @name                       X-Admin-Token
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/zk-paygate/internal/config"
	"github.com/tbourn/zk-paygate/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("paygate failed")
		os.Exit(1)
	}
}

type rootOptions struct {
	envFile string
}

// load reads the env file (when present) and the configuration, then
// installs the global logger.
func (o *rootOptions) load() (config.Config, error) {
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, fmt.Errorf("load %s: %w", o.envFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "paygate",
		Short:         "Payment-proof verification and settlement service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newVKeysCmd(opts),
		newLedgerCmd(opts),
	)
	return root
}
