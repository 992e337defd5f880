package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Message is one row of the outbox table
type Message struct {
	ID          int64
	Topic       string
	Payload     []byte
	PublishedAt time.Time
}

// Outbox implements domain.Publisher by appending payloads to a SQLite table.
// Meant for bench runs without network access.
type Outbox struct {
	db    *sql.DB
	topic string
}

// NewOutbox creates a SQLite-backed publisher
func NewOutbox(dbPath, topic string) (*Outbox, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create table if not exists
	schema := `
	CREATE TABLE IF NOT EXISTS published_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic TEXT NOT NULL,
		payload BLOB NOT NULL,
		published_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_published_at ON published_messages(published_at);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Outbox{db: db, topic: topic}, nil
}

// Publish stores the payload; the row id is the message id
func (o *Outbox) Publish(ctx context.Context, payload []byte) (string, error) {
	query := `INSERT INTO published_messages (topic, payload, published_at) VALUES (?, ?, ?)`

	result, err := o.db.ExecContext(ctx, query, o.topic, payload, time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to get insert id: %w", err)
	}

	return strconv.FormatInt(id, 10), nil
}

// Recent returns up to limit messages, newest first
func (o *Outbox) Recent(ctx context.Context, limit int) ([]Message, error) {
	query := `
		SELECT id, topic, payload, published_at
		FROM published_messages
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := o.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var publishedAt string

		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &publishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		m.PublishedAt, err = parseTimestamp(publishedAt)
		if err != nil {
			return nil, err
		}

		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func parseTimestamp(s string) (time.Time, error) {
	// go-sqlite3 hands DATETIME columns back as RFC3339 when scanned into a string
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", s)
}

// Destination returns the outbox topic
func (o *Outbox) Destination() string {
	return "sqlite://" + o.topic
}

// Close closes the database connection
func (o *Outbox) Close() error {
	return o.db.Close()
}
