package main

import (
	"context"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <upload-id>",
	Short: "Assemble the SOC report for an upload",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, closer, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	rep, err := svc.GenerateReport(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(rep)
}
