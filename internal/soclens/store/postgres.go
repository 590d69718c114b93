package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// PostgresStore implements Store over database/sql with the pq driver.
// The schema mirrors the record layout of the original deployment:
// ingest_jobs, events, event_rollup_minute, findings, upload_features.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`create table if not exists ingest_jobs (
			id uuid primary key,
			upload_id uuid not null,
			status text not null,
			inserted_events int not null default 0,
			bad_lines int not null default 0,
			error text,
			created_at timestamptz not null default now(),
			updated_at timestamptz not null default now()
		)`,
		`create table if not exists events (
			id uuid primary key,
			upload_id uuid not null,
			event_time timestamptz,
			event_id text, vendor text,
			action text, reason text, severity text, status int,
			user_email text, department text, location text,
			client_ip text, server_ip text, dest_host text, url text, request_method text,
			url_category text, threat_category text, threat_name text, risk_score int,
			request_size int, response_size int, transaction_size int,
			raw text not null
		)`,
		`create table if not exists event_rollup_minute (
			upload_id uuid not null,
			bucket timestamptz not null,
			user_email text not null,
			client_ip text not null,
			dest_host text not null,
			action text not null,
			threat_category text not null,
			total int not null,
			primary key (upload_id, bucket, user_email, client_ip, dest_host, action, threat_category)
		)`,
		`create table if not exists findings (
			id uuid primary key,
			upload_id uuid not null,
			pattern_name text not null,
			severity text not null,
			confidence double precision not null,
			title text not null,
			summary text not null,
			evidence jsonb not null,
			created_at timestamptz not null default now(),
			seq int not null default 0
		)`,
		`create table if not exists upload_features (
			upload_id uuid primary key,
			stats jsonb not null,
			computed_at timestamptz not null default now()
		)`,
		// at most one non-terminal job per upload, enforced by the database
		// so concurrent submitters cannot race past an application check
		`create unique index if not exists ingest_jobs_one_active
			on ingest_jobs (upload_id)
			where status in ('queued', 'running')`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job model.IngestJob) error {
	_, err := s.db.ExecContext(ctx,
		`insert into ingest_jobs (id, upload_id, status, inserted_events, bad_lines, error, created_at, updated_at)
		 values ($1, $2, $3, $4, $5, nullif($6, ''), $7, $8)`,
		job.ID, job.UploadID, string(job.Status), job.InsertedEvents, job.BadLines, job.Error, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// CreateJobIfNoneActive relies on the ingest_jobs_one_active partial unique
// index: the insert itself is the atomic check, and a unique violation means
// another non-terminal job won the race.
func (s *PostgresStore) CreateJobIfNoneActive(ctx context.Context, job model.IngestJob) error {
	err := s.CreateJob(ctx, job)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" && pqErr.Constraint == "ingest_jobs_one_active" {
		return ErrActiveJob
	}
	return err
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (model.IngestJob, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, upload_id, status, inserted_events, bad_lines, coalesce(error, ''), created_at, updated_at
		 from ingest_jobs where id = $1`, id)
	return scanJob(row)
}

func (s *PostgresStore) ActiveJob(ctx context.Context, uploadID string) (model.IngestJob, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, upload_id, status, inserted_events, bad_lines, coalesce(error, ''), created_at, updated_at
		 from ingest_jobs where upload_id = $1 and status in ('queued', 'running')
		 order by created_at desc limit 1`, uploadID)
	job, err := scanJob(row)
	if err == ErrNotFound {
		return model.IngestJob{}, false, nil
	}
	if err != nil {
		return model.IngestJob{}, false, err
	}
	return job, true, nil
}

func (s *PostgresStore) LatestJob(ctx context.Context, uploadID string) (model.IngestJob, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, upload_id, status, inserted_events, bad_lines, coalesce(error, ''), created_at, updated_at
		 from ingest_jobs where upload_id = $1
		 order by created_at desc limit 1`, uploadID)
	job, err := scanJob(row)
	if err == ErrNotFound {
		return model.IngestJob{}, false, nil
	}
	if err != nil {
		return model.IngestJob{}, false, err
	}
	return job, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (model.IngestJob, error) {
	var job model.IngestJob
	var status string
	err := row.Scan(&job.ID, &job.UploadID, &status, &job.InsertedEvents, &job.BadLines,
		&job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.IngestJob{}, ErrNotFound
	}
	if err != nil {
		return model.IngestJob{}, fmt.Errorf("scan job: %w", err)
	}
	job.Status = model.JobStatus(status)
	return job, nil
}

// UpdateJob runs mutate inside a transaction holding a row lock, so the
// (inserted_events, bad_lines) pair is never read half-updated.
func (s *PostgresStore) UpdateJob(ctx context.Context, id string, mutate func(*model.IngestJob) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update job: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`select id, upload_id, status, inserted_events, bad_lines, coalesce(error, ''), created_at, updated_at
		 from ingest_jobs where id = $1 for update`, id)
	job, err := scanJob(row)
	if err != nil {
		return err
	}

	if err := mutate(&job); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`update ingest_jobs
		 set status = $2, inserted_events = $3, bad_lines = $4, error = nullif($5, ''), updated_at = $6
		 where id = $1`,
		job.ID, string(job.Status), job.InsertedEvents, job.BadLines, job.Error, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) AppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`insert into events (
			id, upload_id, event_time, event_id, vendor,
			action, reason, severity, status,
			user_email, department, location,
			client_ip, server_ip, dest_host, url, request_method,
			url_category, threat_category, threat_name, risk_score,
			request_size, response_size, transaction_size, raw
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`)
	if err != nil {
		return fmt.Errorf("prepare append events: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.ExecContext(ctx,
			e.ID, e.UploadID, e.EventTime, e.EventID, e.Vendor,
			e.Action, e.Reason, e.Severity, e.Status,
			e.UserEmail, e.Department, e.Location,
			e.ClientIP, e.ServerIP, e.DestHost, e.URL, e.RequestMethod,
			e.URLCategory, e.ThreatCategory, e.ThreatName, e.RiskScore,
			e.RequestSize, e.ResponseSize, e.TransactionSize, e.Raw)
		if err != nil {
			return fmt.Errorf("append event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListEvents(ctx context.Context, uploadID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, upload_id, event_time, event_id, vendor,
			action, reason, severity, status,
			user_email, department, location,
			client_ip, server_ip, dest_host, url, request_method,
			url_category, threat_category, threat_name, risk_score,
			request_size, response_size, transaction_size, raw
		 from events where upload_id = $1 order by event_time asc nulls last, id asc`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		err := rows.Scan(
			&e.ID, &e.UploadID, &e.EventTime, &e.EventID, &e.Vendor,
			&e.Action, &e.Reason, &e.Severity, &e.Status,
			&e.UserEmail, &e.Department, &e.Location,
			&e.ClientIP, &e.ServerIP, &e.DestHost, &e.URL, &e.RequestMethod,
			&e.URLCategory, &e.ThreatCategory, &e.ThreatName, &e.RiskScore,
			&e.RequestSize, &e.ResponseSize, &e.TransactionSize, &e.Raw)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReplaceRollups clears the upload's buckets and upserts the new set in one
// transaction. The upsert keeps concurrent recomputes from double counting.
func (s *PostgresStore) ReplaceRollups(ctx context.Context, uploadID string, buckets []model.RollupBucket) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace rollups: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`delete from event_rollup_minute where upload_id = $1`, uploadID); err != nil {
		return fmt.Errorf("clear rollups: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`insert into event_rollup_minute (upload_id, bucket, user_email, client_ip, dest_host, action, threat_category, total)
		 values ($1,$2,$3,$4,$5,$6,$7,$8)
		 on conflict (upload_id, bucket, user_email, client_ip, dest_host, action, threat_category)
		 do update set total = excluded.total`)
	if err != nil {
		return fmt.Errorf("prepare rollup upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range buckets {
		k := b.Key
		if _, err := stmt.ExecContext(ctx, k.UploadID, k.Bucket, k.UserEmail, k.ClientIP, k.DestHost, k.Action, k.ThreatCategory, b.Total); err != nil {
			return fmt.Errorf("upsert rollup: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListRollups(ctx context.Context, uploadID string) ([]model.RollupBucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`select upload_id, bucket, user_email, client_ip, dest_host, action, threat_category, total
		 from event_rollup_minute where upload_id = $1 order by bucket asc`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list rollups: %w", err)
	}
	defer rows.Close()

	var out []model.RollupBucket
	for rows.Next() {
		var b model.RollupBucket
		k := &b.Key
		if err := rows.Scan(&k.UploadID, &k.Bucket, &k.UserEmail, &k.ClientIP, &k.DestHost, &k.Action, &k.ThreatCategory, &b.Total); err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendFindings(ctx context.Context, findings []model.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append findings: %w", err)
	}
	defer tx.Rollback()

	for _, f := range findings {
		ev, err := json.Marshal(f.Evidence)
		if err != nil {
			return fmt.Errorf("marshal evidence for %s: %w", f.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`insert into findings (id, upload_id, pattern_name, severity, confidence, title, summary, evidence, created_at, seq)
			 values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			f.ID, f.UploadID, f.PatternName, string(f.Severity), f.Confidence, f.Title, f.Summary, ev, f.CreatedAt, f.Seq)
		if err != nil {
			return fmt.Errorf("append finding %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListFindings(ctx context.Context, uploadID string) ([]model.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, upload_id, pattern_name, severity, confidence, title, summary, evidence, created_at, seq
		 from findings where upload_id = $1 order by created_at asc, seq asc`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var f model.Finding
		var severity string
		var raw []byte
		if err := rows.Scan(&f.ID, &f.UploadID, &f.PatternName, &severity, &f.Confidence, &f.Title, &f.Summary, &raw, &f.CreatedAt, &f.Seq); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Severity = model.Severity(severity)
		if err := json.Unmarshal(raw, &f.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence for %s: %w", f.ID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertFeatures(ctx context.Context, f model.UploadFeatures) error {
	stats, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`insert into upload_features (upload_id, stats) values ($1, $2)
		 on conflict (upload_id) do update set stats = excluded.stats, computed_at = now()`,
		f.UploadID, stats)
	if err != nil {
		return fmt.Errorf("upsert features: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFeatures(ctx context.Context, uploadID string) (model.UploadFeatures, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`select stats from upload_features where upload_id = $1`, uploadID).Scan(&raw)
	if err == sql.ErrNoRows {
		return model.UploadFeatures{}, false, nil
	}
	if err != nil {
		return model.UploadFeatures{}, false, fmt.Errorf("get features: %w", err)
	}
	var f model.UploadFeatures
	if err := json.Unmarshal(raw, &f); err != nil {
		return model.UploadFeatures{}, false, fmt.Errorf("unmarshal features: %w", err)
	}
	return f, true, nil
}
