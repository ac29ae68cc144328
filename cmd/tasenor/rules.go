package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/cli"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/format"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/rule"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and test import rules",
	}
	cmd.PersistentFlags().StringP("rules", "r", "", "JSON rule set file")
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesTestCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the rules in a rule set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rules, err := loadRulesFlag(cmd)
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				fmt.Println(cli.FormatInfo("No rules loaded."))
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFILTERS\tRESULTS")
			for _, r := range rules {
				fmt.Fprintf(w, "%s\t%d\t%d\n", r.Name, len(r.Filter), len(r.Result))
			}
			return w.Flush()
		},
	}
}

func rulesTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <file>",
		Short: "Run a rule set against a file and show what matches",
		Long: `Decode the file and evaluate every line against the rule set,
without touching the ledger. Lines no rule covers are flagged so the
gaps are visible before a real import.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loadRulesFlag(cmd)
			if err != nil {
				return err
			}

			content, err := os.ReadFile(args[0]) // #nosec G304 -- user-supplied import file
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			name := filepath.Base(args[0])
			registry := format.DefaultRegistry()
			handler, err := registry.Find(name, content)
			if err != nil {
				return err
			}
			lines, err := handler.Decode(name, content)
			if err != nil {
				return err
			}

			engine := rule.NewEngine(rules, rule.FieldTypes{
				Numeric: handler.NumericFields(),
				Text:    handler.TextFields(),
			})

			matched, unmatched := 0, 0
			for _, line := range lines {
				transfers, err := engine.Evaluate(line)
				if err != nil {
					return err
				}
				if transfers == nil {
					unmatched++
					fmt.Println(cli.FormatWarning(fmt.Sprintf("line %d: no rule matches", line.LineNumber)))
					continue
				}
				matched++
				for _, tr := range transfers {
					fmt.Printf("line %d: %s %s %s\n",
						line.LineNumber, tr.Role(), model.CentsToText(tr.Amount), tr.Asset)
				}
			}

			if unmatched == 0 {
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("All %d lines matched (%s format)", matched, handler.Name())))
			} else {
				fmt.Println(cli.FormatWarning(fmt.Sprintf("%d of %d lines have no rule", unmatched, matched+unmatched)))
			}
			return nil
		},
	}
}

func loadRulesFlag(cmd *cobra.Command) ([]model.Rule, error) {
	path, _ := cmd.Flags().GetString("rules")
	rules, err := loadRules(path)
	if err != nil {
		return nil, err
	}
	return rules, nil
}
