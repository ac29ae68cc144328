package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/cli"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/format"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/process"
)

func rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <process-id>",
		Short: "Remove everything an import run posted to the ledger",
		Args:  cobra.ExactArgs(1),
		RunE:  runRollback,
	}
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	conn, store, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	state, err := store.LoadState(ctx, args[0])
	if err != nil {
		return err
	}

	m := process.NewMachine(model.ProcessConfig{}, format.DefaultRegistry(), conn, store)
	done, err := m.Rollback(ctx, state)
	if err != nil {
		return common.NewUserError(fmt.Sprintf("rolling back process %s failed", state.ProcessID), err)
	}
	if done {
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rolled back process %s", state.ProcessID)))
	} else {
		fmt.Println(cli.FormatInfo(fmt.Sprintf("Process %s had nothing on the ledger", state.ProcessID)))
	}
	return nil
}
