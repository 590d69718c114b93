// Package service wires the analysis core into the five operations the
// outer layers (HTTP, CLI) consume. Auth, routing and blob storage live
// outside this module; the service takes byte streams and IDs.
package service

import (
	"context"
	"fmt"
	"io"

	"github.com/varunr-/SOCLens/internal/soclens/config"
	"github.com/varunr-/SOCLens/internal/soclens/detect"
	"github.com/varunr-/SOCLens/internal/soclens/ingest"
	"github.com/varunr-/SOCLens/internal/soclens/model"
	"github.com/varunr-/SOCLens/internal/soclens/parsers"
	"github.com/varunr-/SOCLens/internal/soclens/report"
	"github.com/varunr-/SOCLens/internal/soclens/rollup"
	"github.com/varunr-/SOCLens/internal/soclens/store"
)

type Service struct {
	store      store.Store
	controller *ingest.Controller
	engine     *detect.Engine
	assembler  *report.Assembler
	features   *rollup.FeatureComputer
}

// New assembles the core: parser factory, ingest controller with rollup
// and feature recompute hooks, detection engine and report assembler.
func New(st store.Store, cfg *config.Config) (*Service, error) {
	factory := parsers.NewFactory()
	parser, err := factory.NewParser(parsers.DialectAuto, parsers.ParserOptions{})
	if err != nil {
		return nil, fmt.Errorf("build parser: %w", err)
	}

	aggregator := rollup.NewAggregator(st, st)
	features := rollup.NewFeatureComputer(st, st)

	controller := ingest.NewController(st, parser,
		func(ctx context.Context, uploadID string) error {
			_, err := aggregator.Recompute(ctx, uploadID)
			return err
		},
		func(ctx context.Context, uploadID string) error {
			_, err := features.Compute(ctx, uploadID)
			return err
		},
	)

	engine := detect.NewEngine(st, detect.NewDefaultRegistry(cfg.Detection))

	var collab report.Collaborator
	if cfg.Collaborator.Enabled && cfg.Collaborator.URL != "" {
		collab = report.NewHTTPCollaborator(cfg.Collaborator.URL, cfg.Collaborator.Timeout)
	}
	assembler := report.NewAssembler(st, collab)

	return &Service{
		store:      st,
		controller: controller,
		engine:     engine,
		assembler:  assembler,
		features:   features,
	}, nil
}

// SubmitIngest starts asynchronous ingestion of the upload's raw log
// stream and returns the job ID without waiting for parsing.
func (s *Service) SubmitIngest(ctx context.Context, uploadID string, r io.Reader) (string, error) {
	return s.controller.Submit(ctx, uploadID, r)
}

// GetIngestStatus returns the job record with its counter pair.
func (s *Service) GetIngestStatus(ctx context.Context, jobID string) (model.IngestJob, error) {
	return s.controller.Status(ctx, jobID)
}

// RunDetection evaluates all rules for the upload. Rejected unless the
// upload's latest ingest job is done.
func (s *Service) RunDetection(ctx context.Context, uploadID string) ([]model.Finding, error) {
	return s.engine.Run(ctx, uploadID)
}

// ListFindings returns persisted findings ordered severity desc,
// confidence desc, stable.
func (s *Service) ListFindings(ctx context.Context, uploadID string) ([]model.Finding, error) {
	return s.engine.List(ctx, uploadID)
}

// GenerateReport assembles the SOC report. Rejected when the upload has
// zero findings.
func (s *Service) GenerateReport(ctx context.Context, uploadID string) (model.SocReport, error) {
	return s.assembler.GenerateReport(ctx, uploadID)
}

// Features returns the precomputed per-upload summary, recomputing it on
// a cache miss.
func (s *Service) Features(ctx context.Context, uploadID string) (model.UploadFeatures, error) {
	if f, ok, err := s.store.GetFeatures(ctx, uploadID); err == nil && ok {
		return f, nil
	}
	return s.features.Compute(ctx, uploadID)
}
