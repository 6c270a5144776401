// Package sqlite persists license records in a single SQLite file. A single
// file backs the whole record store so the retention manager can snapshot
// durable state with one file-level copy.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/Impto-dev/license-bot/internal/license"
	"github.com/Impto-dev/license-bot/internal/storage/sqlite/migrations"
)

// Store implements license.Store over a SQLite database file.
//
// Writes additionally hold a shared copy lock so the backup manager can
// briefly exclude them during a file-level snapshot. Reads never take the
// lock: validation traffic is not blocked by snapshot I/O.
type Store struct {
	sqlDB  *sql.DB
	path   string
	copyMu sync.RWMutex
}

// Open opens (creating if needed) the license store at path and applies
// bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, path: cleanPath}, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Path returns the durable database file path, the unit the retention
// manager copies.
func (s *Store) Path() string {
	return s.path
}

// Checkpoint flushes the write-ahead log into the main database file so a
// file-level copy of Path captures all committed state.
func (s *Store) Checkpoint(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// WithCopyLock runs fn while excluding every writer, so no write lands
// between reading live state and completing the copy.
func (s *Store) WithCopyLock(fn func() error) error {
	s.copyMu.Lock()
	defer s.copyMu.Unlock()
	return fn()
}

// isUniqueViolation detects the SQLite unique-constraint failure raised for
// duplicate license keys.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Insert persists a new license and returns the assigned row id.
func (s *Store) Insert(ctx context.Context, l *license.License) (int64, error) {
	meta, err := marshalMetadata(l.Metadata)
	if err != nil {
		return 0, err
	}

	s.copyMu.RLock()
	defer s.copyMu.RUnlock()

	res, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO licenses (license_key, product, owner_id, owner_name, email, issued_at, expires_at, is_active, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Key, l.Product, nullString(l.OwnerID), nullString(l.OwnerName), nullString(l.Email),
		l.IssuedAt, nullInt64(l.ExpiresAt), boolToInt(l.IsActive), meta)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, license.ErrDuplicateKey
		}
		return 0, fmt.Errorf("insert license: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert license id: %w", err)
	}
	return id, nil
}

const selectColumns = `id, license_key, product, owner_id, owner_name, email, issued_at, expires_at, is_active, metadata`

// GetByKey returns the license for an exact key match or license.ErrNotFound.
func (s *Store) GetByKey(ctx context.Context, key string) (*license.License, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM licenses WHERE license_key = ?`, key)

	lic, err := scanLicense(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, license.ErrNotFound
		}
		return nil, fmt.Errorf("get license by key: %w", err)
	}
	return lic, nil
}

// ListAll returns every extant license ordered by issue time, newest first.
func (s *Store) ListAll(ctx context.Context) ([]license.License, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM licenses ORDER BY issued_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()
	return collectLicenses(rows)
}

// ListByOwner returns the licenses assigned to one owner.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]license.License, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM licenses WHERE owner_id = ? ORDER BY issued_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list licenses by owner: %w", err)
	}
	defer rows.Close()
	return collectLicenses(rows)
}

// UpdateOwner overwrites the owner fields unconditionally.
func (s *Store) UpdateOwner(ctx context.Context, id int64, ownerID, ownerName string) error {
	s.copyMu.RLock()
	defer s.copyMu.RUnlock()

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE licenses SET owner_id = ?, owner_name = ? WHERE id = ?`, ownerID, ownerName, id)
	if err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	return requireRow(res)
}

// ClaimOwner assigns the owner only when the record is still unassigned.
// The affected-row count decides the race: zero rows means another claim
// landed first.
func (s *Store) ClaimOwner(ctx context.Context, id int64, ownerID, ownerName string) (bool, error) {
	s.copyMu.RLock()
	defer s.copyMu.RUnlock()

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE licenses SET owner_id = ?, owner_name = ? WHERE id = ? AND owner_id IS NULL`,
		ownerID, ownerName, id)
	if err != nil {
		return false, fmt.Errorf("claim owner: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim owner rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateActive toggles the is_active flag.
func (s *Store) UpdateActive(ctx context.Context, id int64, active bool) error {
	s.copyMu.RLock()
	defer s.copyMu.RUnlock()

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE licenses SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("update active: %w", err)
	}
	return requireRow(res)
}

// UpdateRenewal replaces expiration and metadata in one statement, keeping
// key, product, owner, email and issue date untouched.
func (s *Store) UpdateRenewal(ctx context.Context, id int64, expiresAt *int64, meta license.Metadata) error {
	encoded, err := marshalMetadata(meta)
	if err != nil {
		return err
	}

	s.copyMu.RLock()
	defer s.copyMu.RUnlock()

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE licenses SET expires_at = ?, metadata = ? WHERE id = ?`,
		nullInt64(expiresAt), encoded, id)
	if err != nil {
		return fmt.Errorf("update renewal: %w", err)
	}
	return requireRow(res)
}

// Delete removes the license row permanently.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.copyMu.RLock()
	defer s.copyMu.RUnlock()

	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM licenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete license: %w", err)
	}
	return requireRow(res)
}

// AppendLog writes one row to the append-only usage log.
func (s *Store) AppendLog(ctx context.Context, licenseID int64, action, details string) error {
	s.copyMu.RLock()
	defer s.copyMu.RUnlock()

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO usage_logs (license_id, action, timestamp, details) VALUES (?, ?, strftime('%s','now'), ?)`,
		licenseID, action, details)
	if err != nil {
		return fmt.Errorf("append usage log: %w", err)
	}
	return nil
}

// CountLicenses returns the number of extant license rows.
func (s *Store) CountLicenses(ctx context.Context) (int64, error) {
	var count int64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM licenses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count licenses: %w", err)
	}
	return count, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return license.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (*license.License, error) {
	var (
		lic       license.License
		ownerID   sql.NullString
		ownerName sql.NullString
		email     sql.NullString
		expiresAt sql.NullInt64
		isActive  int
		meta      sql.NullString
	)

	err := row.Scan(&lic.ID, &lic.Key, &lic.Product, &ownerID, &ownerName, &email,
		&lic.IssuedAt, &expiresAt, &isActive, &meta)
	if err != nil {
		return nil, err
	}

	lic.OwnerID = fromNullString(ownerID)
	lic.OwnerName = fromNullString(ownerName)
	lic.Email = fromNullString(email)
	lic.IsActive = isActive != 0
	if expiresAt.Valid {
		v := expiresAt.Int64
		lic.ExpiresAt = &v
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &lic.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &lic, nil
}

func collectLicenses(rows *sql.Rows) ([]license.License, error) {
	var out []license.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		out = append(out, *lic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate licenses: %w", err)
	}
	return out, nil
}

func marshalMetadata(meta license.Metadata) (string, error) {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(encoded), nil
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
