// Package backup snapshots the license store's durable file and manages
// snapshot retention. Snapshots are plain copies of the SQLite file under a
// time-stamped name, rotated by count; restore always takes a safety
// snapshot of the live state first.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSnapshotNotFound is returned by Restore for an unknown snapshot id.
var ErrSnapshotNotFound = errors.New("snapshot not found")

const (
	snapshotPrefix   = "licenses-backup-"
	preRestorePrefix = "pre-restore-"
	snapshotSuffix   = ".db"
)

// snapshotStamp renders a lexically sortable UTC timestamp for snapshot
// file names, millisecond precision, no characters unsafe for file systems.
func snapshotStamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%03dZ", t.Format("2006-01-02T15-04-05"), t.Nanosecond()/int(time.Millisecond))
}

// Source is the live store being protected. The copy lock excludes writers
// for the duration of a file-level copy; readers are unaffected.
type Source interface {
	Path() string
	Checkpoint(ctx context.Context) error
	WithCopyLock(fn func() error) error
}

// Snapshot describes one retained backup file.
type Snapshot struct {
	ID      string
	Path    string
	Size    int64
	Created time.Time
}

// Manager creates, lists, rotates, and restores snapshots of one Source.
type Manager struct {
	source     Source
	dir        string
	maxBackups int
	logger     *slog.Logger
	now        func() time.Time
}

// NewManager creates a retention manager writing snapshots to dir and
// keeping at most maxBackups of them.
func NewManager(source Source, dir string, maxBackups int, logger *slog.Logger) (*Manager, error) {
	if maxBackups < 1 {
		return nil, fmt.Errorf("max backups must be at least 1, got %d", maxBackups)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &Manager{
		source:     source,
		dir:        dir,
		maxBackups: maxBackups,
		logger:     logger.With(slog.String("component", "backup")),
		now:        time.Now,
	}, nil
}

// Snapshot copies the store's current durable state to a new time-stamped
// file and then rotates old snapshots. An unreachable live store fails the
// snapshot; rotation problems only log.
func (m *Manager) Snapshot(ctx context.Context) (string, error) {
	if _, err := os.Stat(m.source.Path()); err != nil {
		return "", fmt.Errorf("live store unreachable: %w", err)
	}

	id := snapshotPrefix + snapshotStamp(m.now()) + snapshotSuffix
	dest := filepath.Join(m.dir, id)

	if err := m.copyLive(ctx, dest); err != nil {
		return "", err
	}

	m.validate(ctx, id, dest)
	m.Rotate(ctx)

	m.logger.InfoContext(ctx, "snapshot created", slog.String("snapshot", id))
	return id, nil
}

// copyLive duplicates the live database file to dest with writers excluded,
// flushing the WAL first so the file alone carries all committed state.
func (m *Manager) copyLive(ctx context.Context, dest string) error {
	return m.source.WithCopyLock(func() error {
		if err := m.source.Checkpoint(ctx); err != nil {
			return fmt.Errorf("checkpoint before copy: %w", err)
		}
		if err := copyFile(m.source.Path(), dest); err != nil {
			return fmt.Errorf("copy live store: %w", err)
		}
		return nil
	})
}

// validate opens the freshly written snapshot read-only and counts rows.
// A failed validation is logged loudly but does not undo the snapshot.
func (m *Manager) validate(ctx context.Context, id, path string) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		m.logger.ErrorContext(ctx, "snapshot validation failed",
			slog.String("snapshot", id), slog.String("error", err.Error()))
		return
	}
	defer db.Close()

	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM licenses`).Scan(&count); err != nil {
		m.logger.ErrorContext(ctx, "snapshot validation failed",
			slog.String("snapshot", id), slog.String("error", err.Error()))
		return
	}
	m.logger.InfoContext(ctx, "snapshot validated",
		slog.String("snapshot", id), slog.Int64("licenses", count))
}

// Rotate deletes every snapshot beyond the retention count, newest first.
// Rotation is best-effort cleanup: deletion failures are logged and skipped.
func (m *Manager) Rotate(ctx context.Context) {
	snapshots, err := m.List()
	if err != nil {
		m.logger.ErrorContext(ctx, "rotation listing failed", slog.String("error", err.Error()))
		return
	}
	if len(snapshots) <= m.maxBackups {
		return
	}

	for _, old := range snapshots[m.maxBackups:] {
		if err := os.Remove(old.Path); err != nil {
			m.logger.ErrorContext(ctx, "failed to delete old snapshot",
				slog.String("snapshot", old.ID), slog.String("error", err.Error()))
			continue
		}
		m.logger.InfoContext(ctx, "deleted old snapshot", slog.String("snapshot", old.ID))
	}
}

// Restore copies the chosen snapshot over the live store, after first
// taking a pre-restore safety snapshot of the current live state.
// Pre-restore snapshots are outside the rotated set and never deleted
// automatically.
func (m *Manager) Restore(ctx context.Context, snapshotID string) error {
	// Snapshot ids are bare file names; reject anything path-like.
	if snapshotID != filepath.Base(snapshotID) || !strings.HasPrefix(snapshotID, snapshotPrefix) {
		return ErrSnapshotNotFound
	}

	src := filepath.Join(m.dir, snapshotID)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrSnapshotNotFound
		}
		return fmt.Errorf("stat snapshot: %w", err)
	}

	return m.source.WithCopyLock(func() error {
		if _, err := os.Stat(m.source.Path()); err == nil {
			if err := m.source.Checkpoint(ctx); err != nil {
				return fmt.Errorf("checkpoint before restore: %w", err)
			}
			preRestore := preRestorePrefix + snapshotStamp(m.now()) + snapshotSuffix
			if err := copyFile(m.source.Path(), filepath.Join(m.dir, preRestore)); err != nil {
				return fmt.Errorf("pre-restore snapshot: %w", err)
			}
			m.logger.InfoContext(ctx, "pre-restore snapshot created", slog.String("snapshot", preRestore))
		}

		if err := copyFile(src, m.source.Path()); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		m.logger.InfoContext(ctx, "store restored from snapshot", slog.String("snapshot", snapshotID))
		return nil
	})
}

// List returns the retained snapshots ordered newest first. Pre-restore
// safety copies are not part of the rotated set and are not listed.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat snapshot %s: %w", name, err)
		}
		snapshots = append(snapshots, Snapshot{
			ID:      name,
			Path:    filepath.Join(m.dir, name),
			Size:    info.Size(),
			Created: info.ModTime(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Created.Equal(snapshots[j].Created) {
			// The embedded stamp breaks mtime ties, still newest first.
			return snapshots[i].ID > snapshots[j].ID
		}
		return snapshots[i].Created.After(snapshots[j].Created)
	})
	return snapshots, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
