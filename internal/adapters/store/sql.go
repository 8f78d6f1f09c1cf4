package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

const dbTimeLayout = time.RFC3339Nano

var _ core.Store = (*SQLStore)(nil)

// SQLStore is the SQLite-backed Store.
type SQLStore struct {
	DB  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) a SQLite database and runs migrations.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open DB: %w", err)
	}
	// SQLite allows one writer; a single connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	s := &SQLStore{DB: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	log.Info().Str("module", "store").Str("path", dbPath).Msg("sqlite store ready")
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.DB.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS channels (
		name        TEXT PRIMARY KEY CHECK(length(name) > 0 AND length(name) <= 64),
		description TEXT NOT NULL DEFAULT '',
		type        TEXT NOT NULL CHECK(type IN ('text', 'voice')),
		created_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		channel     TEXT NOT NULL,
		author      TEXT NOT NULL,
		body        TEXT NOT NULL DEFAULT '',
		mentions    TEXT NOT NULL DEFAULT '[]',
		attachments TEXT NOT NULL DEFAULT '[]',
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS messages_channel ON messages(channel, id);

	CREATE TABLE IF NOT EXISTS direct_messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		sender          TEXT NOT NULL,
		recipient       TEXT NOT NULL,
		body            TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS direct_messages_conversation ON direct_messages(conversation_id, id);
	`
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var version int
	err := s.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("init schema_migrations: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{version: 1, statements: []string{schema}},
	}
	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := s.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", m.version); err != nil {
			return fmt.Errorf("update schema version: %w", err)
		}
	}
	return nil
}

// ---- Channels ----

func (s *SQLStore) ListChannels(ctx context.Context, t domain.ChannelType) ([]domain.Channel, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT name, description, type FROM channels WHERE (? = '' OR type = ?) ORDER BY name",
		string(t), string(t))
	if err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	channels := make([]domain.Channel, 0)
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.Name, &ch.Description, &ch.Type); err != nil {
			return nil, fmt.Errorf("store: scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (s *SQLStore) GetChannel(ctx context.Context, name string) (*domain.Channel, error) {
	ch := &domain.Channel{}
	err := s.DB.QueryRowContext(ctx, "SELECT name, description, type FROM channels WHERE name = ?", name).
		Scan(&ch.Name, &ch.Description, &ch.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get channel: %w", err)
	}
	return ch, nil
}

func (s *SQLStore) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("store: create channel: %w", err)
	}
	res, err := s.DB.ExecContext(ctx,
		"INSERT INTO channels (name, description, type, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(name) DO NOTHING",
		ch.Name, ch.Description, string(ch.Type), s.now().Format(dbTimeLayout))
	if err != nil {
		return fmt.Errorf("store: create channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: create channel: %w", ErrChannelExists)
	}
	return nil
}

func (s *SQLStore) DeleteChannel(ctx context.Context, name string) (*domain.Channel, error) {
	ch := &domain.Channel{}
	err := s.DB.QueryRowContext(ctx, "DELETE FROM channels WHERE name = ? RETURNING name, description, type", name).
		Scan(&ch.Name, &ch.Description, &ch.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: delete channel: %w", err)
	}
	return ch, nil
}

// ---- Messages ----

func (s *SQLStore) FindChannelHistory(ctx context.Context, channel domain.ChannelName, limit int) ([]domain.Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, channel, author, body, mentions, attachments, created_at
		FROM messages
		WHERE channel = ?
		ORDER BY id DESC
		LIMIT ?`, string(channel), limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("store: find channel history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: find channel history: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (s *SQLStore) InsertMessage(ctx context.Context, m *domain.Message) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("store: message failed validation: %w", err)
	}
	mentions, err := json.Marshal(nonNil(m.Mentions))
	if err != nil {
		return fmt.Errorf("store: encode mentions: %w", err)
	}
	attachments, err := json.Marshal(nonNil(m.Attachments))
	if err != nil {
		return fmt.Errorf("store: encode attachments: %w", err)
	}
	createdAt := s.now()
	res, err := s.DB.ExecContext(ctx,
		"INSERT INTO messages (channel, author, body, mentions, attachments, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		string(m.Channel), m.Author, m.Text, string(mentions), string(attachments), createdAt.Format(dbTimeLayout))
	if err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	m.ID, _ = res.LastInsertId()
	m.CreatedAt = createdAt
	return nil
}

func (s *SQLStore) DeleteMessage(ctx context.Context, id int64) (*domain.Message, error) {
	row := s.DB.QueryRowContext(ctx,
		"DELETE FROM messages WHERE id = ? RETURNING id, channel, author, body, mentions, attachments, created_at", id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ---- Direct messages ----

func (s *SQLStore) FindConversation(ctx context.Context, conversationID string, limit int) ([]domain.DirectMessage, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, conversation_id, sender, recipient, body, created_at
		FROM direct_messages
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?`, conversationID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("store: find conversation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]domain.DirectMessage, 0)
	for rows.Next() {
		var m domain.DirectMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.From, &m.To, &m.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan direct message: %w", err)
		}
		if m.CreatedAt, err = time.Parse(dbTimeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("store: scan direct message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: find conversation: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (s *SQLStore) InsertDirectMessage(ctx context.Context, m *domain.DirectMessage) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("store: direct message failed validation: %w", err)
	}
	createdAt := s.now()
	res, err := s.DB.ExecContext(ctx,
		"INSERT INTO direct_messages (conversation_id, sender, recipient, body, created_at) VALUES (?, ?, ?, ?, ?)",
		m.ConversationID, m.From, m.To, m.Text, createdAt.Format(dbTimeLayout))
	if err != nil {
		return fmt.Errorf("store: insert direct message: %w", err)
	}
	m.ID, _ = res.LastInsertId()
	m.CreatedAt = createdAt
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (domain.Message, error) {
	var m domain.Message
	var channel, mentions, attachments, createdAt string
	if err := row.Scan(&m.ID, &channel, &m.Author, &m.Text, &mentions, &attachments, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, err
		}
		return m, fmt.Errorf("store: scan message: %w", err)
	}
	m.Channel = domain.ChannelName(channel)
	if err := json.Unmarshal([]byte(mentions), &m.Mentions); err != nil {
		return m, fmt.Errorf("store: decode mentions: %w", err)
	}
	if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
		return m, fmt.Errorf("store: decode attachments: %w", err)
	}
	if len(m.Mentions) == 0 {
		m.Mentions = nil
	}
	if len(m.Attachments) == 0 {
		m.Attachments = nil
	}
	var err error
	if m.CreatedAt, err = time.Parse(dbTimeLayout, createdAt); err != nil {
		return m, fmt.Errorf("store: scan message: %w", err)
	}
	return m, nil
}

// limitOrAll maps a non-positive limit to SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
