package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/okian/admitcast/internal/domain/model"
	"github.com/okian/admitcast/pkg/metrics"
)

// Supported database/sql drivers.
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

const (
	defaultMaxOpenConns    = 10
	defaultConnMaxLifetime = 5 * time.Minute
	sqliteParams           = "_journal_mode=WAL&_busy_timeout=5000"
)

var schema = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS admits (
			student_id INTEGER PRIMARY KEY AUTOINCREMENT,
			university_id INTEGER NOT NULL,
			gre_score REAL NOT NULL,
			ielts_score REAL,
			toefl_score REAL,
			total_work_experience_in_months INTEGER NOT NULL DEFAULT 0,
			technical_papers_count INTEGER NOT NULL DEFAULT 0,
			application_status INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_admits_university ON admits(university_id)`,
	},
	DriverMySQL: {
		`CREATE TABLE IF NOT EXISTS admits (
			student_id INT NOT NULL AUTO_INCREMENT,
			university_id INT NOT NULL,
			gre_score DOUBLE NOT NULL,
			ielts_score DOUBLE NULL,
			toefl_score DOUBLE NULL,
			total_work_experience_in_months INT NOT NULL DEFAULT 0,
			technical_papers_count INT NOT NULL DEFAULT 0,
			application_status INT NOT NULL DEFAULT 0,
			PRIMARY KEY (student_id),
			INDEX idx_admits_university (university_id)
		)`,
	},
}

// SQLStore is a Store backed by database/sql.
type SQLStore struct {
	db              *sql.DB
	driver          string
	maxOpenConns    int
	connMaxLifetime time.Duration
}

// NewSQLStore opens and pings the database.
func NewSQLStore(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrEmptyDSN
	}

	s := &SQLStore{
		driver:          driver,
		maxOpenConns:    defaultMaxOpenConns,
		connMaxLifetime: defaultConnMaxLifetime,
	}
	for _, opt := range opts {
		opt(s)
	}

	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?" + sqliteParams
		}
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
		}
		dsn = cfg.FormatDSN()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't benefit from multiple connections
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(s.maxOpenConns)
		db.SetMaxIdleConns(s.maxOpenConns)
		db.SetConnMaxLifetime(s.connMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the admits table when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, q := range schema[s.driver] {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// Insert stores records in one transaction.
func (s *SQLStore) Insert(ctx context.Context, records []model.HistoricalRecord) (err error) {
	for i, r := range records {
		if verr := validateRecord(r); verr != nil {
			return fmt.Errorf("record %d: %w", i, verr)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO admits
		(university_id, gre_score, ielts_score, toefl_score,
		 total_work_experience_in_months, technical_papers_count, application_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx,
			r.InstitutionID,
			r.StandardizedTestScore,
			r.IELTSScore,
			r.TOEFLScore,
			r.WorkExperienceMonths,
			r.PublicationCount,
			r.Outcome.Status(),
		); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	metrics.UpdateRepositoryRecordsTotal(s.Count(ctx))
	return nil
}

// FetchDecided implements Store.
func (s *SQLStore) FetchDecided(ctx context.Context, institutionID int, family model.EnglishFamily) ([]model.HistoricalRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(s.driver, float64(time.Since(start).Microseconds())/1000)
	}()

	// family.Field() is one of two fixed column names.
	query := fmt.Sprintf(`SELECT university_id, gre_score, ielts_score, toefl_score,
		total_work_experience_in_months, technical_papers_count, application_status
		FROM admits
		WHERE university_id = ? AND %s IS NOT NULL AND application_status IN (?, ?)
		ORDER BY student_id`, family.Field())

	rows, err := s.db.QueryContext(ctx, query, institutionID, model.StatusAdmitted, model.StatusRejected)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "query")
		return nil, fmt.Errorf("failed to query institution %d: %w", institutionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.HistoricalRecord
	for rows.Next() {
		var (
			r            model.HistoricalRecord
			ielts, toefl sql.NullFloat64
			status       int
		)
		if err := rows.Scan(&r.InstitutionID, &r.StandardizedTestScore, &ielts, &toefl,
			&r.WorkExperienceMonths, &r.PublicationCount, &status); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if ielts.Valid {
			r.IELTSScore = &ielts.Float64
		}
		if toefl.Valid {
			r.TOEFLScore = &toefl.Float64
		}
		r.Outcome = model.OutcomeFromStatus(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// Count implements Store. It returns 0 when the count query fails.
func (s *SQLStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admits`).Scan(&n); err != nil {
		return 0
	}
	return n
}
