package main

import (
	"context"

	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect <upload-id>",
	Short: "Run detection rules against an ingested upload",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetect,
}

var findingsCmd = &cobra.Command{
	Use:   "findings <upload-id>",
	Short: "List findings for an upload, highest severity first",
	Args:  cobra.ExactArgs(1),
	RunE:  runFindings,
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, closer, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	findings, err := svc.RunDetection(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(findings)
}

func runFindings(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, closer, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	findings, err := svc.ListFindings(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(findings)
}
