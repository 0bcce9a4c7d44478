package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RichardoC/libelnet-chat/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("conversation not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    preview TEXT NOT NULL,
    date DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    conversation_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    PRIMARY KEY (conversation_id, position),
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);`

// Database keeps the chat client's conversations in a local SQLite file. It
// is the terminal counterpart of the browser's local storage; the relay
// server never opens it.
type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	// _foreign_keys applies the pragma to every pooled connection.
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

// SaveConversation writes the conversation and replaces its stored messages
// with conv.Messages, preserving their order.
func (db *Database) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, preview, date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, preview = excluded.preview, date = excluded.date
	`, conv.ID, conv.Title, conv.Preview, conv.Date.UTC()); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, position, id, role, content)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, msg := range conv.Messages {
		if _, err := stmt.ExecContext(ctx, conv.ID, i, msg.ID, string(msg.Role), msg.Content); err != nil {
			return fmt.Errorf("failed to save message %s: %w", msg.ID, err)
		}
	}

	return tx.Commit()
}

// GetConversation loads one conversation with its messages in order.
func (db *Database) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{ID: id}
	err := db.db.QueryRowContext(ctx,
		"SELECT title, preview, date FROM conversations WHERE id = ?", id,
	).Scan(&conv.Title, &conv.Preview, &conv.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.db.QueryContext(ctx, `
		SELECT id, role, content
		FROM messages
		WHERE conversation_id = ?
		ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conv.Messages = make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		var role string
		if err := rows.Scan(&msg.ID, &role, &msg.Content); err != nil {
			return nil, err
		}
		msg.Role = models.Role(role)
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, rows.Err()
}

// ListConversations returns conversation headers, newest first. Messages are
// not loaded.
func (db *Database) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, title, preview, date
        FROM conversations
        ORDER BY date DESC`)
	if err != nil {
		return []models.Conversation{}, err
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.Preview, &conv.Date); err != nil {
			return []models.Conversation{}, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (db *Database) DeleteConversation(ctx context.Context, id string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}
