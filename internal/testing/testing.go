// package testing contains shared testing utilities: a fake [services.MusicProvider],
// an in-memory database and writers that fail on demand.
package testing

import (
	"database/sql"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/desertthunder/tunesync/internal/shared"
)

// ErrWrite is returned by [FailingWriter] and by [LimitWriter] once exhausted.
var ErrWrite = errors.New("write failed")

// FailingWriter rejects every write.
type FailingWriter struct{}

func (FailingWriter) Write(p []byte) (int, error) {
	return 0, ErrWrite
}

// LimitWriter forwards the first N writes to W and rejects the rest.
type LimitWriter struct {
	N int
	W io.Writer
}

func (l *LimitWriter) Write(p []byte) (int, error) {
	if l.N <= 0 {
		return 0, ErrWrite
	}
	l.N--
	return l.W.Write(p)
}

// NewTestDB opens a migrated in-memory database that is closed when t ends.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected file %s to exist", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(content)
}
