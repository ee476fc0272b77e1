package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const preferenceDBName = "prefs.db"

// EncryptedPreferenceStore implements domain.PreferenceStore with a
// SQLCipher encrypted SQLite database.
type EncryptedPreferenceStore struct {
	db     *sql.DB
	dbPath string
	logger *zap.Logger
}

// NewEncryptedPreferenceStore opens (or creates) the preference database in
// dataDir. key is used as the SQLCipher raw key.
func NewEncryptedPreferenceStore(dataDir string, key []byte, logger *zap.Logger) (*EncryptedPreferenceStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, preferenceDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedPreferenceStore{db: db, dbPath: dbPath, logger: logger}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *EncryptedPreferenceStore) createTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS preference (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		controller_kind TEXT NOT NULL,
		combined INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	`)
	return err
}

// Get returns the stored preference, or DefaultPreference when none is set.
func (s *EncryptedPreferenceStore) Get() (domain.Preference, error) {
	var kind string
	var combined int
	err := s.db.QueryRow(`SELECT controller_kind, combined FROM preference WHERE id = 1`).Scan(&kind, &combined)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultPreference, nil
	}
	if err != nil {
		return domain.DefaultPreference, fmt.Errorf("failed to read preference: %w", err)
	}

	parsed, err := domain.ParseControllerKind(kind)
	if err != nil {
		s.logger.Warn("stored controller kind is invalid, using default",
			zap.String("kind", kind))
		return domain.DefaultPreference, nil
	}
	return domain.Preference{Kind: parsed, Combined: combined != 0}, nil
}

// Set stores pref.
func (s *EncryptedPreferenceStore) Set(pref domain.Preference) error {
	if _, err := domain.ParseControllerKind(string(pref.Kind)); err != nil {
		return err
	}
	combined := 0
	if pref.Combined {
		combined = 1
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO preference (id, controller_kind, combined, updated_at)
		VALUES (1, ?, ?, ?)`,
		string(pref.Kind), combined, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}
	return nil
}

// Watch polls the store every interval. It emits the current preference
// first and then only changes. Read errors are logged and skipped.
func (s *EncryptedPreferenceStore) Watch(ctx context.Context, interval time.Duration) <-chan domain.Preference {
	return pollPreferences(ctx, s, interval, s.logger)
}

// Close closes the database.
func (s *EncryptedPreferenceStore) Close() error {
	return s.db.Close()
}

// DBPath returns the database file path.
func (s *EncryptedPreferenceStore) DBPath() string {
	return s.dbPath
}

func pollPreferences(ctx context.Context, store domain.PreferenceStore, interval time.Duration, logger *zap.Logger) <-chan domain.Preference {
	out := make(chan domain.Preference, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last *domain.Preference
		for {
			pref, err := store.Get()
			if err != nil {
				logger.Warn("failed to poll preference", zap.Error(err))
			} else if last == nil || *last != pref {
				select {
				case out <- pref:
					last = &pref
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Ensure EncryptedPreferenceStore implements domain.PreferenceStore.
var _ domain.PreferenceStore = (*EncryptedPreferenceStore)(nil)
