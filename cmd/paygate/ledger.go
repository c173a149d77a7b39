package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/zk-paygate/internal/app"
)

func newLedgerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the settlement ledger",
	}
	var account string
	balance := &cobra.Command{
		Use:   "balance",
		Short: "Print an account balance in the smallest unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			lc, err := app.OpenLedger(cmd.Context(), cfg.Ledger)
			if err != nil {
				return err
			}
			defer lc.Close()

			bal, err := lc.GetBalance(cmd.Context(), account)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), bal.String())
			return err
		},
	}
	balance.Flags().StringVar(&account, "account", "", "account address or content id")
	_ = balance.MarkFlagRequired("account")
	cmd.AddCommand(balance)
	return cmd
}
