package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/cli"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/format"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/process"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import transaction files into the ledger",
		Long: `Import one or more exported files (bank CSV, broker report, OFX,
fixed-width statement) into the local ledger.

Files imported together are processed as one run, so related lines in
different files can pair into the same transaction. Questions the
pipeline cannot answer itself are asked interactively.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().StringP("rules", "r", "", "JSON rule set file")
	cmd.Flags().StringP("currency", "c", "", "book currency (default EUR)")
	cmd.Flags().StringP("first-date", "s", "", "first allowed transaction date (2006-01-02)")
	cmd.Flags().StringP("last-date", "e", "", "last allowed transaction date (2006-01-02)")
	cmd.Flags().String("bad-dates", "", "out-of-period policy: ignore or error (default: ask)")
	cmd.Flags().String("unrecognized", "", "unmatched segment policy: ignore, halt or suspense (default: ask)")
	cmd.Flags().String("suspense-account", "", "account for the suspense policy")
	cmd.Flags().Bool("force", false, "post transactions even when they do not balance")
	cmd.Flags().Bool("drop-orphans", false, "drop lines with no resolvable segment")

	_ = viper.BindPFlag("rules.path", cmd.Flags().Lookup("rules"))
	_ = viper.BindPFlag("import.currency", cmd.Flags().Lookup("currency"))
	_ = viper.BindPFlag("import.first_date", cmd.Flags().Lookup("first-date"))
	_ = viper.BindPFlag("import.last_date", cmd.Flags().Lookup("last-date"))
	_ = viper.BindPFlag("import.bad_dates", cmd.Flags().Lookup("bad-dates"))
	_ = viper.BindPFlag("import.unrecognized", cmd.Flags().Lookup("unrecognized"))
	_ = viper.BindPFlag("import.suspense_account", cmd.Flags().Lookup("suspense-account"))
	_ = viper.BindPFlag("import.force", cmd.Flags().Lookup("force"))
	_ = viper.BindPFlag("import.drop_orphans", cmd.Flags().Lookup("drop-orphans"))

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rules, err := loadRules("")
	if err != nil {
		return err
	}
	cfg, err := buildConfig(rules)
	if err != nil {
		return err
	}

	conn, store, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionSetDescription("Reading files"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
	files := make(map[string][]byte, len(args))
	for _, arg := range args {
		content, err := os.ReadFile(arg) // #nosec G304 -- user-supplied import file
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", arg, err)
		}
		files[filepath.Base(arg)] = content
		_ = bar.Add(1)
	}

	m := process.NewMachine(cfg, format.DefaultRegistry(), conn, store)
	state, err := m.Start(ctx, files)
	if err != nil {
		if state != nil {
			reportOutcome(state)
		}
		return common.NewUserError("import failed", err)
	}

	prompter := cli.NewPrompter(nil, nil)
	if err := answerLoop(ctx, m, state, prompter); err != nil {
		return common.NewUserError("import failed", err)
	}

	reportOutcome(state)
	return nil
}
