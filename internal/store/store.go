// Package store persists identities and the append-only message log in a
// local SQLite file. All writes funnel through a single goroutine; SQLite
// handles concurrent reads but contends badly on concurrent writers.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"lanchat/pkg/types"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// IdentityStore is the persistence contract the session registry and the
// HTTP profile layer depend on. Consistency is last-write-wins per address.
type IdentityStore interface {
	FindByAddress(ctx context.Context, address string) (*types.Identity, error)
	Upsert(ctx context.Context, identity *types.Identity) (*types.Identity, error)
	TouchLastActive(ctx context.Context, address string) error
	All(ctx context.Context) ([]*types.Identity, error)
}

// MessageLog is the ordered, append-only store of accepted messages.
// Recent returns oldest first, newest last; append order is monotonic.
type MessageLog interface {
	Append(ctx context.Context, message *types.Message) error
	Recent(ctx context.Context, limit int) ([]*types.Message, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Manager implements IdentityStore and MessageLog on one SQLite database.
type Manager struct {
	db       *sql.DB
	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
}

// NewManager opens (and creates if necessary) the database at path and
// initializes the schema.
func NewManager(path string) (*Manager, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory failed")
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "open database failed")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping database failed")
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init schema failed")
	}

	m := &Manager{
		db:       db,
		writeCh:  make(chan writeOperation, 100),
		shutdown: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()
	return m, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS identities (
		address     TEXT PRIMARY KEY,
		username    TEXT NOT NULL,
		photo       TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL,
		last_active DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq       INTEGER PRIMARY KEY AUTOINCREMENT,
		id        TEXT UNIQUE NOT NULL,
		text      TEXT NOT NULL,
		crc       TEXT NOT NULL,
		address   TEXT NOT NULL,
		username  TEXT NOT NULL,
		photo     TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL,
		crc_valid INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_messages_address ON messages(address);
	`
	_, err := db.Exec(schema)
	return err
}

// writeLoop serializes all writes; a failed write is retried exactly once.
func (m *Manager) writeLoop() {
	defer m.wg.Done()
	for {
		select {
		case op := <-m.writeCh:
			err := op.operation(m.db)
			if err != nil {
				logger.WithError(err).Warn("database write failed, retrying once")
				err = op.operation(m.db)
				if err != nil {
					logger.WithError(err).Error("database write failed after retry")
				}
			}
			op.result <- err
		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errors.New("store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeCh <- writeOperation{operation: operation, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return errors.New("store is shutting down")
	}
}

// Close stops the write loop and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}

// FindByAddress returns the persisted identity for a normalized address, or
// ErrIdentityNotFound.
func (m *Manager) FindByAddress(ctx context.Context, address string) (*types.Identity, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT address, username, photo, created_at, last_active FROM identities WHERE address = ?`,
		address)

	identity := &types.Identity{Persisted: true}
	err := row.Scan(&identity.Address, &identity.Username, &identity.Photo, &identity.CreatedAt, &identity.LastActive)
	if err == sql.ErrNoRows {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query identity failed")
	}
	return identity, nil
}

// Upsert creates or updates the identity for its address and returns the
// stored row. The original creation time is preserved on update.
func (m *Manager) Upsert(ctx context.Context, identity *types.Identity) (*types.Identity, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO identities (address, username, photo, created_at, last_active)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(address) DO UPDATE SET
				username = excluded.username,
				photo = excluded.photo,
				last_active = excluded.last_active`,
			identity.Address, identity.Username, identity.Photo, now, now)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "upsert identity failed")
	}
	return m.FindByAddress(ctx, identity.Address)
}

// TouchLastActive bumps the last-active timestamp for an address. A missing
// row is not an error.
func (m *Manager) TouchLastActive(ctx context.Context, address string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE identities SET last_active = ? WHERE address = ?`,
			time.Now().UTC(), address)
		return err
	})
}

// All returns every persisted identity, newest activity first.
func (m *Manager) All(ctx context.Context) ([]*types.Identity, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT address, username, photo, created_at, last_active FROM identities ORDER BY last_active DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "query identities failed")
	}
	defer func() { _ = rows.Close() }()

	var identities []*types.Identity
	for rows.Next() {
		identity := &types.Identity{Persisted: true}
		if err := rows.Scan(&identity.Address, &identity.Username, &identity.Photo, &identity.CreatedAt, &identity.LastActive); err != nil {
			return nil, errors.Wrap(err, "scan identity failed")
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

// Append adds an accepted message to the end of the log.
func (m *Manager) Append(ctx context.Context, message *types.Message) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO messages (id, text, crc, address, username, photo, timestamp, crc_valid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			message.ID, message.Text, message.Checksum, message.Address,
			message.Username, message.Photo, message.Timestamp, message.Valid)
		return err
	})
}

// Recent returns the last limit accepted messages, oldest first. The stored
// integrity code is returned verbatim; replayed history is not re-validated.
func (m *Manager) Recent(ctx context.Context, limit int) ([]*types.Message, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, text, crc, address, username, photo, timestamp, crc_valid
		FROM messages ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query messages failed")
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		msg := &types.Message{}
		if err := rows.Scan(&msg.ID, &msg.Text, &msg.Checksum, &msg.Address,
			&msg.Username, &msg.Photo, &msg.Timestamp, &msg.Valid); err != nil {
			return nil, errors.Wrap(err, "scan message failed")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest first; the wire contract is oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Clear removes every message from the log.
func (m *Manager) Clear(ctx context.Context) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `DELETE FROM messages`)
		return err
	})
}

// Count returns the number of stored messages.
func (m *Manager) Count(ctx context.Context) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "count messages failed")
	}
	return count, nil
}
