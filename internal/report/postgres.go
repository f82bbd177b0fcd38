// internal/report/postgres.go
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/FairForge/rampart/internal/capacity"
)

// PostgresConfig holds report database settings.
type PostgresConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	SSLMode  string `json:"sslMode" yaml:"ssl_mode"`
}

// PostgresSink keeps a queryable history of runs alongside the full
// report payload.
type PostgresSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresSink opens the connection pool and verifies it.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*PostgresSink, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("host and database are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	sink := &PostgresSink{db: db, logger: logger}
	if err := sink.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *PostgresSink) createTable(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS capacity_reports (
		id VARCHAR(64) PRIMARY KEY,
		target TEXT NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL,
		max_users INT NOT NULL,
		peak_rps DOUBLE PRECISION NOT NULL,
		viable BOOLEAN NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Store inserts one row per run.
func (s *PostgresSink) Store(ctx context.Context, rep *capacity.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	query := `INSERT INTO capacity_reports
		(id, target, generated_at, max_users, peak_rps, viable, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.db.ExecContext(ctx, query,
		rep.ID,
		rep.Target,
		rep.GeneratedAt,
		rep.Model.MaxConcurrentUsers,
		rep.Model.PeakRequestsPerSecond,
		rep.Model.Viable,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	s.logger.Info("report stored",
		zap.String("id", rep.ID),
		zap.String("target", rep.Target))
	return nil
}

// History returns the most recent runs for a target, newest first.
func (s *PostgresSink) History(ctx context.Context, target string, limit int) ([]capacity.Report, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT payload FROM capacity_reports
		WHERE target = $1
		ORDER BY generated_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, target, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reports []capacity.Report
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var rep capacity.Report
		if err := json.Unmarshal(payload, &rep); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// Ping verifies the connection.
func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
