package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ksj/cloud-doctor/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore persists reports in PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies embedded migrations in file name order. Each migration
// runs in its own transaction and is recorded in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if exists {
			continue
		}
		body, err := migrationFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}
		if err := s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		}); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		s.logger.Info("applied migration", "version", version)
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

var findingColumns = []string{
	"report_id", "ordinal", "rule_id", "rule_version", "title", "category",
	"severity", "resource_id", "resource_type", "region", "status",
	"message", "remediation", "diagnostic",
}

// Store inserts r with its findings and advances account_latest in one
// transaction.
func (s *PostgresStore) Store(ctx context.Context, r *models.Report) (string, error) {
	if err := prepare(r); err != nil {
		return "", err
	}
	scores, err := json.Marshal(r.Scores)
	if err != nil {
		return "", fmt.Errorf("marshal scores: %w", err)
	}
	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return "", fmt.Errorf("marshal warnings: %w", err)
	}
	sum := r.Summary()

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO reports (id, account_id, scan_id, scanned_at, source, digest,
				overall, scored, scores, warnings,
				pass_count, fail_count, na_count, error_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO NOTHING`,
			r.ID, r.AccountID, r.ScanID, r.ScannedAt.UTC(), r.Source, r.Digest,
			r.Scores.Overall, r.Scores.Scored, string(scores), string(warningsJSON),
			sum.Counts.Pass, sum.Counts.Fail, sum.Counts.NotApplicable, sum.Counts.Error)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var digest string
			if err := tx.QueryRowContext(ctx, `SELECT digest FROM reports WHERE id = $1`, r.ID).Scan(&digest); err != nil {
				return fmt.Errorf("read existing report: %w", err)
			}
			if digest != r.Digest {
				return ErrImmutable
			}
			return errAlreadyStored
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("findings", findingColumns...))
		if err != nil {
			return fmt.Errorf("prepare findings copy: %w", err)
		}
		for i, f := range r.Findings {
			if _, err := stmt.ExecContext(ctx,
				r.ID, i, f.RuleID, f.RuleVersion, f.Title, string(f.Category),
				string(f.Severity), f.ResourceID, string(f.ResourceType), f.Region, string(f.Status),
				f.Message, f.Remediation, f.Diagnostic); err != nil {
				stmt.Close()
				return fmt.Errorf("copy finding %d: %w", i, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flush findings: %w", err)
		}
		if err := stmt.Close(); err != nil {
			return fmt.Errorf("close findings copy: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO account_latest (account_id, report_id, scanned_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (account_id) DO UPDATE
				SET report_id = EXCLUDED.report_id, scanned_at = EXCLUDED.scanned_at
				WHERE account_latest.scanned_at < EXCLUDED.scanned_at
					OR (account_latest.scanned_at = EXCLUDED.scanned_at
						AND account_latest.report_id COLLATE "C" > EXCLUDED.report_id COLLATE "C")`,
			r.AccountID, r.ID, r.ScannedAt.UTC()); err != nil {
			return fmt.Errorf("update latest: %w", err)
		}
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyStored):
		return r.ID, nil
	case errors.Is(err, ErrImmutable):
		return "", fmt.Errorf("store report %s: %w", r.ID, ErrImmutable)
	case err != nil:
		return "", fmt.Errorf("store report %s: %w", r.ID, err)
	}
	s.logger.Debug("stored report", "report_id", r.ID, "account_id", r.AccountID, "findings", len(r.Findings))
	return r.ID, nil
}

// errAlreadyStored rolls back the transaction of an idempotent re-store.
var errAlreadyStored = errors.New("report already stored")

// Get loads a report and its findings.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Report, error) {
	var (
		r            models.Report
		scores       []byte
		warningsJSON []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, scan_id, scanned_at, source, digest, scores, warnings
		FROM reports WHERE id = $1`, id,
	).Scan(&r.ID, &r.AccountID, &r.ScanID, &r.ScannedAt, &r.Source, &r.Digest, &scores, &warningsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	r.ScannedAt = r.ScannedAt.UTC()
	if err := json.Unmarshal(scores, &r.Scores); err != nil {
		return nil, fmt.Errorf("decode scores of %s: %w", id, err)
	}
	if err := json.Unmarshal(warningsJSON, &r.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings of %s: %w", id, err)
	}
	if len(r.Warnings) == 0 {
		r.Warnings = nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, rule_version, title, category, severity, resource_id,
			resource_type, region, status, message, remediation, diagnostic
		FROM findings WHERE report_id = $1 ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("query findings of %s: %w", id, err)
	}
	defer rows.Close()

	r.Findings = []models.Finding{}
	for rows.Next() {
		var f models.Finding
		if err := rows.Scan(&f.RuleID, &f.RuleVersion, &f.Title, &f.Category, &f.Severity,
			&f.ResourceID, &f.ResourceType, &f.Region, &f.Status, &f.Message,
			&f.Remediation, &f.Diagnostic); err != nil {
			return nil, fmt.Errorf("scan finding of %s: %w", id, err)
		}
		r.Findings = append(r.Findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings of %s: %w", id, err)
	}
	return &r, nil
}

// Latest returns the report referenced by account_latest.
func (s *PostgresStore) Latest(ctx context.Context, accountID string) (*models.Report, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT report_id FROM account_latest WHERE account_id = $1`, accountID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest report for %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest report for %s: %w", accountID, err)
	}
	return s.Get(ctx, id)
}

// List returns report summaries for accountID, newest first.
func (s *PostgresStore) List(ctx context.Context, accountID string, page Page) ([]models.ReportSummary, error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, scan_id, scanned_at, overall, scored,
			pass_count, fail_count, na_count, error_count
		FROM reports
		WHERE account_id = $1
		ORDER BY scanned_at DESC, id COLLATE "C"
		LIMIT $2 OFFSET $3`, accountID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list reports for %s: %w", accountID, err)
	}
	defer rows.Close()

	out := []models.ReportSummary{}
	for rows.Next() {
		var sum models.ReportSummary
		if err := rows.Scan(&sum.ID, &sum.AccountID, &sum.ScanID, &sum.ScannedAt, &sum.Overall, &sum.Scored,
			&sum.Counts.Pass, &sum.Counts.Fail, &sum.Counts.NotApplicable, &sum.Counts.Error); err != nil {
			return nil, fmt.Errorf("scan report summary: %w", err)
		}
		sum.ScannedAt = sum.ScannedAt.UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report summaries: %w", err)
	}
	return out, nil
}
