// Package usagelog persists per-request lifecycle records to SQLite: one row
// per logical request plus a row per forwarded stream event, grouped under a
// caller-chosen thread id.
//
// Information Hiding:
// - SQLite connection management and schema stay behind Recorder
// - Observer failures are logged and swallowed; recording must never
//   disturb the request it observes
// - Thread-safe via sql.DB's built-in connection pooling

package usagelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/loomlabs/loom/engine"
	"github.com/loomlabs/loom/llm"
)

// Recorder writes request and event rows as an engine observer.
type Recorder struct {
	db  *sql.DB
	log zerolog.Logger

	mu     sync.Mutex
	thread string
}

var _ engine.Observer = (*Recorder)(nil)

// Open opens or creates the usage database at the given path. Parent
// directories are created if missing.
func Open(path string, log zerolog.Logger) (*Recorder, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create usage log directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database: %w", err)
	}
	return newRecorder(db, log)
}

// NewInMemory creates an in-memory recorder (useful for testing).
func NewInMemory(log zerolog.Logger) (*Recorder, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory usage database: %w", err)
	}
	return newRecorder(db, log)
}

func newRecorder(db *sql.DB, log zerolog.Logger) (*Recorder, error) {
	r := &Recorder{db: db, log: log, thread: NewThreadID()}
	if err := r.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize usage schema: %w", err)
	}
	return r, nil
}

// Close closes the database connection.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// NewThreadID mints a fresh thread id.
func NewThreadID() string {
	return uuid.NewString()
}

// SetThread groups subsequent requests under the given thread id.
func (r *Recorder) SetThread(id string) {
	r.mu.Lock()
	r.thread = id
	r.mu.Unlock()
}

// Thread returns the current thread id.
func (r *Recorder) Thread() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.thread
}

func (r *Recorder) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS requests (
			request_id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'pending',
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cache_read_tokens INTEGER NOT NULL DEFAULT 0,
			cache_write_tokens INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_requests_thread
		ON requests(thread_id, started_at DESC);

		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT,
			recorded_at INTEGER NOT NULL,
			FOREIGN KEY (request_id) REFERENCES requests(request_id) ON DELETE CASCADE,
			UNIQUE(request_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_events_request
		ON events(request_id, seq);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RequestStarted inserts the request row.
func (r *Recorder) RequestStarted(id uuid.UUID, provider, model string, req *llm.Request) {
	_, err := r.db.Exec(`
		INSERT OR IGNORE INTO requests (request_id, thread_id, provider, model, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		id.String(), r.Thread(), provider, model, time.Now().Unix())
	if err != nil {
		r.log.Warn().Err(err).Stringer("request_id", id).Msg("usage log: failed to record request start")
	}
}

// EventForwarded appends one event row.
func (r *Recorder) EventForwarded(id uuid.UUID, seq int, ev llm.Event) {
	kind, payload := describeEvent(ev)
	_, err := r.db.Exec(`
		INSERT OR IGNORE INTO events (request_id, seq, kind, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		id.String(), seq, kind, payload, time.Now().Unix())
	if err != nil {
		r.log.Warn().Err(err).Stringer("request_id", id).Msg("usage log: failed to record event")
	}
}

// RequestFinished stamps the terminal state and final token counts.
func (r *Recorder) RequestFinished(id uuid.UUID, state string, usage llm.TokenUsage) {
	_, err := r.db.Exec(`
		UPDATE requests
		SET state = ?, input_tokens = ?, output_tokens = ?,
		    cache_read_tokens = ?, cache_write_tokens = ?, finished_at = ?
		WHERE request_id = ?`,
		state,
		usage.InputTokens, usage.OutputTokens,
		usage.CacheReadTokens, usage.CacheWriteTokens,
		time.Now().Unix(), id.String())
	if err != nil {
		r.log.Warn().Err(err).Stringer("request_id", id).Msg("usage log: failed to record request finish")
	}
}

// describeEvent reduces an event to a kind tag and a small JSON payload.
// Content text is summarized by length, not stored verbatim.
func describeEvent(ev llm.Event) (string, string) {
	switch v := ev.(type) {
	case llm.TextDelta:
		return "text_delta", payloadJSON(map[string]any{"chars": len(v.Text)})
	case llm.ThinkingDelta:
		return "thinking_delta", payloadJSON(map[string]any{"chars": len(v.Text)})
	case llm.ToolCallStart:
		return "tool_call_start", payloadJSON(map[string]any{"id": v.ID, "name": v.Name})
	case llm.ToolCallDelta:
		return "tool_call_delta", payloadJSON(map[string]any{"id": v.ID, "chars": len(v.Fragment)})
	case llm.ToolCall:
		return "tool_call", payloadJSON(map[string]any{"id": v.ID, "name": v.Name})
	case llm.UsageUpdate:
		return "usage_update", payloadJSON(map[string]any{
			"input_tokens":  v.Usage.InputTokens,
			"output_tokens": v.Usage.OutputTokens,
		})
	case llm.StatusUpdate:
		return "status_update", payloadJSON(map[string]any{"state": v.State, "attempt": v.Attempt})
	case llm.Stop:
		return "stop", payloadJSON(map[string]any{"reason": string(v.Reason)})
	case *llm.Error:
		return "error", payloadJSON(map[string]any{
			"kind":         v.Kind.String(),
			"provider":     v.Provider,
			"tool_call_id": v.ToolCallID,
		})
	default:
		return "unknown", ""
	}
}

func payloadJSON(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// RequestRecord is one row from the requests table.
type RequestRecord struct {
	RequestID  string
	ThreadID   string
	Provider   string
	Model      string
	State      string
	Usage      llm.TokenUsage
	StartedAt  int64
	FinishedAt int64
}

// RecentRequests returns the most recent requests, newest first.
func (r *Recorder) RecentRequests(ctx context.Context, limit int) ([]RequestRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT request_id, thread_id, provider, model, state,
		       input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
		       started_at, COALESCE(finished_at, 0)
		FROM requests
		ORDER BY started_at DESC, request_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	records := []RequestRecord{}
	for rows.Next() {
		var rec RequestRecord
		if err := rows.Scan(
			&rec.RequestID,
			&rec.ThreadID,
			&rec.Provider,
			&rec.Model,
			&rec.State,
			&rec.Usage.InputTokens,
			&rec.Usage.OutputTokens,
			&rec.Usage.CacheReadTokens,
			&rec.Usage.CacheWriteTokens,
			&rec.StartedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}
	return records, nil
}

// ThreadRequests returns all requests in a thread, oldest first.
func (r *Recorder) ThreadRequests(ctx context.Context, threadID string) ([]RequestRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT request_id, thread_id, provider, model, state,
		       input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
		       started_at, COALESCE(finished_at, 0)
		FROM requests
		WHERE thread_id = ?
		ORDER BY started_at ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread requests: %w", err)
	}
	defer rows.Close()

	records := []RequestRecord{}
	for rows.Next() {
		var rec RequestRecord
		if err := rows.Scan(
			&rec.RequestID,
			&rec.ThreadID,
			&rec.Provider,
			&rec.Model,
			&rec.State,
			&rec.Usage.InputTokens,
			&rec.Usage.OutputTokens,
			&rec.Usage.CacheReadTokens,
			&rec.Usage.CacheWriteTokens,
			&rec.StartedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread requests: %w", err)
	}
	return records, nil
}
