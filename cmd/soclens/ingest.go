package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a raw proxy log file into normalized events",
	RunE:  runIngest,
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show an ingest job's status and counters",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var (
	flagUpload string
	flagInput  string
	flagWait   bool
)

func init() {
	ingestCmd.Flags().StringVar(&flagUpload, "upload", "", "upload id (generated when omitted)")
	ingestCmd.Flags().StringVar(&flagInput, "input", "", "input file (default stdin)")
	ingestCmd.Flags().BoolVar(&flagWait, "wait", true, "poll until the job reaches a terminal state")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, closer, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	var in io.Reader
	if flagInput == "" {
		in = os.Stdin
	} else {
		f, err := os.Open(flagInput)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	uploadID := flagUpload
	if uploadID == "" {
		uploadID = uuid.NewString()
	}

	jobID, err := svc.SubmitIngest(ctx, uploadID, in)
	if err != nil {
		return err
	}
	fmt.Printf("upload_id=%s job_id=%s\n", uploadID, jobID)

	if !flagWait {
		return nil
	}
	for {
		job, err := svc.GetIngestStatus(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return printJSON(job)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, closer, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	job, err := svc.GetIngestStatus(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(job)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
