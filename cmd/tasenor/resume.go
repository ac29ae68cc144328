package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/cli"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/format"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/process"
)

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [process-id]",
		Short: "Resume a suspended import run",
		Long: `Resume an import run that is waiting on an answer. Without an id,
lists the stored runs instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runResume,
	}
	cmd.Flags().StringP("rules", "r", "", "JSON rule set file")
	return cmd
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	conn, store, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if len(args) == 0 {
		infos, err := store.ListProcesses(ctx)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println(cli.FormatInfo("No stored import runs."))
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROCESS\tSTAGE\tUPDATED\tERROR")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				info.ProcessID, info.Stage, info.UpdatedAt.Format("2006-01-02 15:04"), info.Error)
		}
		return w.Flush()
	}

	state, err := store.LoadState(ctx, args[0])
	if err != nil {
		return err
	}
	if state.Stage != model.StageWaiting {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Process %s is in stage %s, nothing to resume", state.ProcessID, state.Stage)))
		return nil
	}

	rulesPath, _ := cmd.Flags().GetString("rules")
	rules, err := loadRules(rulesPath)
	if err != nil {
		return err
	}
	cfg, err := buildConfig(rules)
	if err != nil {
		return err
	}

	m := process.NewMachine(cfg, format.DefaultRegistry(), conn, store)
	if err := answerLoop(ctx, m, state, cli.NewPrompter(nil, nil)); err != nil {
		return common.NewUserError(fmt.Sprintf("resuming process %s failed", state.ProcessID), err)
	}

	reportOutcome(state)
	return nil
}
