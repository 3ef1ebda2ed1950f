package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/deepakjacob/launchk/internal/codec"
	"github.com/deepakjacob/launchk/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const journalDBName = "journal.db"

// EncryptedJournal implements domain.Journal on a SQLCipher database.
// Each executed primitive is one row; the originating command is kept
// as deterministic CBOR.
type EncryptedJournal struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewEncryptedJournal opens (or creates) the journal database in dataDir.
func NewEncryptedJournal(dataDir string, key []byte) (*EncryptedJournal, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, journalDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key only surfaces on first read.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	j := &EncryptedJournal{db: db, dbPath: dbPath, now: time.Now}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return j, nil
}

func (j *EncryptedJournal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mutations (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		operation TEXT NOT NULL,
		domain INTEGER NOT NULL,
		session TEXT NOT NULL,
		succeeded INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		command BLOB,
		executed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS mutations_executed_at ON mutations (executed_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record appends one mutation outcome. Missing ID and timestamp are filled in.
func (j *EncryptedJournal) Record(rec domain.MutationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ExecutedAt == 0 {
		rec.ExecutedAt = j.now().UnixNano()
	}

	blob, err := codec.EncodeCommand(rec.Command)
	if err != nil {
		return err
	}

	succeeded := 0
	if rec.Succeeded {
		succeeded = 1
	}

	_, err = j.db.Exec(`
		INSERT INTO mutations (id, label, operation, domain, session, succeeded, error, command, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Label, string(rec.Operation), int(rec.Domain), rec.Session.String(),
		succeeded, rec.Error, blob, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record mutation: %w", err)
	}
	return nil
}

// Recent returns at most limit records, newest first. limit <= 0 means all.
func (j *EncryptedJournal) Recent(limit int) ([]domain.MutationRecord, error) {
	query := `SELECT id, label, operation, domain, session, succeeded, error, command, executed_at
		FROM mutations ORDER BY executed_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []domain.MutationRecord
	for rows.Next() {
		var (
			rec       domain.MutationRecord
			op        string
			dom       int
			session   string
			succeeded int
			blob      []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Label, &op, &dom, &session, &succeeded, &rec.Error, &blob, &rec.ExecutedAt); err != nil {
			return nil, err
		}
		rec.Operation = domain.MutationOp(op)
		rec.Domain = domain.DomainType(dom)
		rec.Session = domain.SessionTypeFromString(session)
		rec.Succeeded = succeeded == 1
		if len(blob) > 0 {
			cmd, err := codec.DecodeCommand(blob)
			if err != nil {
				return nil, err
			}
			rec.Command = cmd
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (j *EncryptedJournal) Path() string {
	return j.dbPath
}

// Close releases the database connection.
func (j *EncryptedJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ensure EncryptedJournal implements domain.Journal.
var _ domain.Journal = (*EncryptedJournal)(nil)

// OpenJournal opens the journal in dataDir with the key from
// JournalKeyProvider, generating a key file on first use.
func OpenJournal(dataDir string) (*EncryptedJournal, error) {
	key, err := EnsureKey(JournalKeyProvider(dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load journal key: %w", err)
	}
	return NewEncryptedJournal(dataDir, key)
}
