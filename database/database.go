package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"incident-dispatch/config"
	"incident-dispatch/observability"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

const connectAttempts = 5

// Database stores the dispatch audit log.
type Database struct {
	db *sql.DB
}

// NewDatabase opens the MySQL connection, retrying with exponential backoff.
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	waitInterval := 1 * time.Second
	for attempt := 1; ; attempt++ {
		err := db.Ping()
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempt, err)
		}
		log.Warnf("Database connection failed, retrying in %v: %v", waitInterval, err)
		time.Sleep(waitInterval)
		waitInterval *= 2
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Database{db: db}, nil
}

// New wraps an existing connection.
func New(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// CreateDispatchEventsTable creates the dispatch_events table if it doesn't exist
func (d *Database) CreateDispatchEventsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS dispatch_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		request_id VARCHAR(64) NOT NULL,
		stage VARCHAR(32) NOT NULL,
		track ENUM('emergency', 'municipal', 'none') NOT NULL DEFAULT 'none',
		level VARCHAR(16) NOT NULL DEFAULT '',
		confidence FLOAT,
		image_count INT NOT NULL DEFAULT 0,
		outcome VARCHAR(16) NOT NULL DEFAULT '',
		detail TEXT,
		occurred_at TIMESTAMP(3) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_dispatch_events_request (request_id),
		INDEX idx_dispatch_events_track_stage (track, stage)
	)`

	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create dispatch_events table: %w", err)
	}

	log.Info("dispatch_events table created/verified successfully")
	return nil
}

// RecordEvent inserts one lifecycle event.
func (d *Database) RecordEvent(ctx context.Context, ev observability.Event) error {
	query := `
	INSERT INTO dispatch_events (
		request_id, stage, track, level, confidence, image_count, outcome, detail, occurred_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	track := string(ev.Track)
	if track == "" {
		track = "none"
	}

	_, err := d.db.ExecContext(ctx, query,
		ev.RequestID,
		string(ev.Stage),
		track,
		string(ev.Level),
		ev.Confidence,
		ev.ImageCount,
		ev.Outcome,
		ev.Detail,
		ev.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record dispatch event: %w", err)
	}
	return nil
}
