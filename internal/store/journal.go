package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a conversation or turn does not exist.
var ErrNotFound = errors.New("store: not found")

// Conversation is one journaled run of the mirror's conversation.
type Conversation struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	Turns     int       `json:"turns"`
}

// Entry is a journaled conversation entry.
type Entry struct {
	Position  int       `json:"position"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Turn is a journaled utterance and its outcome.
type Turn struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	Utterance      string        `json:"utterance"`
	Command        string        `json:"command"`
	Reply          string        `json:"reply"`
	ToolResult     string        `json:"toolResult,omitempty"`
	Duration       time.Duration `json:"duration"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Journal writes one conversation's entries and turns.
type Journal struct {
	db *DB
	id string
}

// StartConversation registers a new conversation and returns its journal.
func StartConversation(ctx context.Context, db *DB) (*Journal, error) {
	id := uuid.NewString()
	if _, err := db.sql.ExecContext(ctx,
		`INSERT INTO conversations (id, started_at) VALUES (?, ?)`,
		id, time.Now().UTC().Format(time.DateTime),
	); err != nil {
		return nil, fmt.Errorf("starting conversation: %w", err)
	}
	db.log.Debug().Str("conversationId", id).Msg("conversation started")
	return &Journal{db: db, id: id}, nil
}

// ID returns the conversation id.
func (j *Journal) ID() string {
	return j.id
}

// RecordEntry stores the entry at position.
func (j *Journal) RecordEntry(ctx context.Context, position int, role, content string) error {
	_, err := j.db.sql.ExecContext(ctx,
		`INSERT INTO entries (conversation_id, position, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		j.id, position, role, content, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("recording entry %d: %w", position, err)
	}
	return nil
}

// RecordTurn stores a completed turn under this conversation.
func (j *Journal) RecordTurn(ctx context.Context, t Turn) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := j.db.sql.ExecContext(ctx,
		`INSERT INTO turns (id, conversation_id, utterance, command, reply, tool_result, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, j.id, t.Utterance, t.Command, t.Reply, t.ToolResult,
		t.Duration.Milliseconds(), t.CreatedAt.UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("recording turn %s: %w", t.ID, err)
	}
	return nil
}

// Conversations lists the most recent conversations, newest first.
func (db *DB) Conversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.sql.QueryContext(ctx,
		`SELECT c.id, c.started_at, COUNT(t.id)
		 FROM conversations c LEFT JOIN turns t ON t.conversation_id = c.id
		 GROUP BY c.id
		 ORDER BY c.started_at DESC, c.rowid DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var started string
		if err := rows.Scan(&c.ID, &started, &c.Turns); err != nil {
			return nil, err
		}
		c.StartedAt = parseTime(started)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Entries returns a conversation's entries in position order.
func (db *DB) Entries(ctx context.Context, conversationID string) ([]Entry, error) {
	if err := db.conversationExists(ctx, conversationID); err != nil {
		return nil, err
	}
	rows, err := db.sql.QueryContext(ctx,
		`SELECT position, role, content, created_at FROM entries
		 WHERE conversation_id = ? ORDER BY position`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.Position, &e.Role, &e.Content, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentTurns returns the newest turns across all conversations.
func (db *DB) RecentTurns(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	return db.queryTurns(ctx,
		`SELECT id, conversation_id, utterance, command, reply, tool_result, duration_ms, created_at
		 FROM turns ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

// Turn returns one turn by id.
func (db *DB) Turn(ctx context.Context, id string) (*Turn, error) {
	turns, err := db.queryTurns(ctx,
		`SELECT id, conversation_id, utterance, command, reply, tool_result, duration_ms, created_at
		 FROM turns WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("turn %s: %w", id, ErrNotFound)
	}
	return &turns[0], nil
}

// SearchTurns performs full-text search over utterances and replies.
func (db *DB) SearchTurns(ctx context.Context, query string, limit int) ([]Turn, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return db.queryTurns(ctx,
		`SELECT t.id, t.conversation_id, t.utterance, t.command, t.reply, t.tool_result, t.duration_ms, t.created_at
		 FROM turns_fts f
		 JOIN turns t ON t.rowid = f.rowid
		 WHERE turns_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`, ftsQuery(query), limit)
}

// Prune deletes conversations started before cutoff, with their entries and
// turns. It returns the number of conversations removed.
func (db *DB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.sql.ExecContext(ctx,
		`DELETE FROM conversations WHERE started_at < ?`, cutoff.UTC().Format(time.DateTime))
	if err != nil {
		return 0, fmt.Errorf("pruning conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		db.log.Info().Int64("conversations", n).Msg("pruned journal")
	}
	return n, nil
}

func (db *DB) queryTurns(ctx context.Context, q string, args ...any) ([]Turn, error) {
	rows, err := db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var ms int64
		var created string
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Utterance, &t.Command, &t.Reply, &t.ToolResult, &ms, &created); err != nil {
			return nil, err
		}
		t.Duration = time.Duration(ms) * time.Millisecond
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (db *DB) conversationExists(ctx context.Context, id string) error {
	var one int
	err := db.sql.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return err
}

// ftsQuery quotes each term so punctuation in spoken text is not read as
// FTS5 syntax.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

func parseTime(s string) time.Time {
	t, _ := time.ParseInLocation(time.DateTime, s, time.UTC)
	return t
}
