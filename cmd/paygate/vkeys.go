package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/zk-paygate/internal/app"
	"github.com/tbourn/zk-paygate/internal/proof"
	"github.com/tbourn/zk-paygate/internal/vkeys"
)

func newVKeysCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vkeys",
		Short: "Manage verification keys",
	}
	cmd.AddCommand(newVKeysRegisterCmd(opts), newVKeysListCmd(opts))
	return cmd
}

func newVKeysRegisterCmd(opts *rootOptions) *cobra.Command {
	var (
		circuit, ver, file string
		activate           bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register verification-key parameters from a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			return withKeyStore(opts, func(s *vkeys.Store) error {
				k, err := s.Register(cmd.Context(), circuit, ver, params, activate)
				if err != nil {
					return err
				}
				return printJSON(cmd, k)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&circuit, "circuit", "", "circuit name (spend, credential, ...)")
	f.StringVar(&ver, "version", "", "key version label")
	f.StringVar(&file, "file", "", "snarkjs verification_key.json")
	f.BoolVar(&activate, "activate", false, "make this the active version")
	_ = cmd.MarkFlagRequired("circuit")
	_ = cmd.MarkFlagRequired("version")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newVKeysListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered verification keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withKeyStore(opts, func(s *vkeys.Store) error {
				if err := s.Load(cmd.Context()); err != nil {
					return err
				}
				return printJSON(cmd, s.List())
			})
		},
	}
}

func withKeyStore(opts *rootOptions, fn func(*vkeys.Store) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	db, err := app.OpenDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(db)
	return fn(app.NewKeyStore(db, proof.NewGroth16()))
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
