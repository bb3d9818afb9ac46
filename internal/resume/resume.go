// Package resume persists playback positions so a media source can be
// reopened where it was left off.
package resume

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/lmoreau/ripple/internal/db"
)

const (
	appName      = "ripple"
	dbFileName   = "ripple.db"
	saveDebounce = 500 * time.Millisecond
)

type pendingSave struct {
	uri      string
	position time.Duration
}

// Store persists the last playback position per media URI. Saves are
// debounced so position updates during playback do not hammer the disk;
// Close flushes the pending save.
type Store struct {
	db        *sql.DB
	saveMu    sync.Mutex
	saveTimer *time.Timer
	pending   *pendingSave
}

// Open opens the store at the default XDG data path.
func Open() (*Store, error) {
	dbPath, err := xdg.DataFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return nil, err
	}
	return OpenAt(dbPath)
}

// OpenAt opens the store at an explicit database path.
func OpenAt(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := initSchema(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &Store{db: sqlDB}, nil
}

// Close flushes any pending save and closes the database.
func (s *Store) Close() error {
	s.saveMu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	pending := s.pending
	s.pending = nil
	s.saveMu.Unlock()

	if pending != nil {
		_ = s.save(pending.uri, pending.position)
	}

	return s.db.Close()
}

// SavePosition records the position for uri, debounced.
func (s *Store) SavePosition(uri string, position time.Duration) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.pending = &pendingSave{uri: uri, position: position}

	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}

	s.saveTimer = time.AfterFunc(saveDebounce, func() {
		s.saveMu.Lock()
		pending := s.pending
		s.pending = nil
		s.saveMu.Unlock()

		if pending != nil {
			_ = s.save(pending.uri, pending.position)
		}
	})
}

// Position returns the saved position for uri, or 0 when none exists.
func (s *Store) Position(uri string) (time.Duration, error) {
	var positionMs int64
	err := s.db.QueryRow(`
		SELECT position_ms FROM playback_positions WHERE uri = ?
	`, uri).Scan(&positionMs)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return time.Duration(positionMs) * time.Millisecond, nil
}

// Forget removes the saved position for uri.
func (s *Store) Forget(uri string) error {
	return db.WithTx(s.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM playback_positions WHERE uri = ?`, uri)
		return err
	})
}

func (s *Store) save(uri string, position time.Duration) error {
	return db.WithTx(s.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO playback_positions (uri, position_ms, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(uri) DO UPDATE SET
				position_ms = excluded.position_ms,
				updated_at = excluded.updated_at
		`, uri, position.Milliseconds(), time.Now().Unix())
		return err
	})
}

func initSchema(sqlDB *sql.DB) error {
	_, err := sqlDB.Exec(`
		CREATE TABLE IF NOT EXISTS playback_positions (
			uri TEXT PRIMARY KEY,
			position_ms INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}
