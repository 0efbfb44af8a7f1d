package report

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/oraclesec/sentinel/internal/logging"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned when no report exists for an address.
var ErrNotFound = errors.New("report not found")

// Store persists report summaries in SQLite with upsert-by-address
// semantics: at most one summary per normalized address, latest wins.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// NewStore runs migrations from schema.sql and returns a Store.
func NewStore(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Upsert inserts or replaces the summary for its address.
func (s *Store) Upsert(ctx context.Context, sum Summary) error {
	address := strings.ToLower(strings.TrimSpace(sum.Address))
	if address == "" {
		return fmt.Errorf("summary has empty address")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reports
		  (address, contract_name, risk_score, risk_level, total_findings,
		   critical_count, high_count, medium_count, low_count,
		   source_verified, ipfs_hash, tx_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, address, sum.ContractName, sum.RiskScore, sum.RiskLevel, sum.TotalFindings,
		sum.CriticalCount, sum.HighCount, sum.MediumCount, sum.LowCount,
		boolToInt(sum.SourceVerified), sum.IPFSHash, sum.TxHash, sum.Timestamp)
	if err != nil {
		return fmt.Errorf("upsert report for %s: %w", address, err)
	}
	return nil
}

// Get returns the summary for an address, or ErrNotFound.
func (s *Store) Get(ctx context.Context, address string) (*Summary, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	row := s.db.QueryRowContext(ctx, `
		SELECT address, contract_name, risk_score, risk_level, total_findings,
		       critical_count, high_count, medium_count, low_count,
		       source_verified, ipfs_hash, tx_hash, created_at
		FROM reports WHERE address = ?
	`, address)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report for %s: %w", address, err)
	}
	return sum, nil
}

// List returns all summaries, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, contract_name, risk_score, risk_level, total_findings,
		       critical_count, high_count, medium_count, low_count,
		       source_verified, ipfs_hash, tx_hash, created_at
		FROM reports ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		out = append(out, *sum)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*Summary, error) {
	var sum Summary
	var verified int
	if err := row.Scan(&sum.Address, &sum.ContractName, &sum.RiskScore, &sum.RiskLevel,
		&sum.TotalFindings, &sum.CriticalCount, &sum.HighCount, &sum.MediumCount,
		&sum.LowCount, &verified, &sum.IPFSHash, &sum.TxHash, &sum.Timestamp); err != nil {
		return nil, err
	}
	sum.SourceVerified = verified != 0
	return &sum, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
