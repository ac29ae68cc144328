package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/cli"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

func stockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Show tracked asset positions",
		RunE:  runStockList,
	}
	cmd.AddCommand(stockInitCmd())
	return cmd
}

func runStockList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	conn, _, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.ListStocks(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println(cli.FormatInfo("No tracked positions."))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tASSET\tAMOUNT\tVALUE")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			row.Account, row.Asset, row.Amount.String(), model.CentsToText(row.Value))
	}
	return w.Flush()
}

func stockInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Post opening balances before the first import",
		Long: `Post an opening balance document so the first import run starts
from known account balances. Balances are account=amount pairs, e.g.
--balance 1910=2500.00 --balance 2000=-2500.00.`,
		RunE: runStockInit,
	}
	cmd.Flags().String("date", "", "balance date (2006-01-02, default today)")
	cmd.Flags().StringSlice("balance", nil, "account=amount pair, repeatable")
	return cmd
}

func runStockInit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	pairs, _ := cmd.Flags().GetStringSlice("balance")
	if len(pairs) == 0 {
		return fmt.Errorf("at least one --balance pair is required")
	}

	balances := make(map[string]int64, len(pairs))
	for _, pair := range pairs {
		account, amount, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("invalid balance %q, expected account=amount", pair)
		}
		cents, err := model.ParseCents(amount)
		if err != nil {
			return fmt.Errorf("invalid balance amount %q: %w", amount, err)
		}
		balances[account] = cents
	}

	when := time.Now().UTC().Truncate(24 * time.Hour)
	if dateFlag, _ := cmd.Flags().GetString("date"); dateFlag != "" {
		parsed, err := parseDateFlag(dateFlag)
		if err != nil {
			return err
		}
		when = *parsed
	}

	conn, _, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if err := conn.InitializeBalances(ctx, when, balances); err != nil {
		return err
	}
	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Opening balances posted for %s", when.Format("2006-01-02"))))
	return nil
}
