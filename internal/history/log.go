package history

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const filePermission = 0644

// Log is an append-only history file with an in-memory view that is reloaded
// from disk after every append. One writer at a time, many readers.
type Log struct {
	path   string
	logger *zap.Logger

	mutex   sync.RWMutex
	entries []Entry
	index   *index
}

// Open loads the history at path, creating it with a header if it does not exist.
// A malformed file is an error.
func Open(path string, logger *zap.Logger) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(Header+"\n"), filePermission); err != nil {
			return nil, fmt.Errorf("failed to create history file: %w", err)
		}
		logger.Info("Created history file", zap.String("path", path))
	}

	l := &Log{path: path, logger: logger}
	if err := l.Reload(); err != nil {
		return nil, err
	}

	logger.Info("Loaded history",
		zap.String("path", path),
		zap.Int("entries", len(l.entries)),
		zap.Int("successful", l.index.successCount))

	return l, nil
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

// LoadAll parses the backing file from scratch.
func (l *Log) LoadAll() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer f.Close()

	entries, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load history %s: %w", l.path, err)
	}
	return entries, nil
}

// Reload replaces the in-memory view with the file contents.
func (l *Log) Reload() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.reload()
}

func (l *Log) reload() error {
	entries, err := l.LoadAll()
	if err != nil {
		return err
	}
	l.entries = entries
	l.index = newIndex(entries)
	return nil
}

// Append writes e as one line and reloads the log. A missing id or timestamp is
// filled in; the stored entry is returned.
func (l *Log) Append(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	line, err := encode(e)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode history entry: %w", err)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if err := l.appendLine(line); err != nil {
		return Entry{}, err
	}

	l.logger.Debug("Appended history entry",
		zap.String("id", e.ID),
		zap.String("user", e.User),
		zap.String("result", e.Label()),
		zap.String("trackID", e.TrackID))

	if err := l.reload(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (l *Log) appendLine(line string) error {
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_APPEND|os.O_CREATE, filePermission)
	if err != nil {
		return fmt.Errorf("failed to open history for append: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat history: %w", err)
	}

	var buf bytes.Buffer
	if info.Size() == 0 {
		buf.WriteString(Header + "\n")
	} else {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err != nil {
			return fmt.Errorf("failed to read history tail: %w", err)
		}
		// older files were written without a trailing newline
		if last[0] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.WriteString(line)
	buf.WriteByte('\n')

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync history: %w", err)
	}
	return nil
}

// Entries returns a copy of every entry in file order.
func (l *Log) Entries() []Entry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// QuerySuccessful returns entries whose verdict put a track in the playlist.
func (l *Log) QuerySuccessful() []Entry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := make([]Entry, 0, l.index.successCount)
	for _, e := range l.entries {
		if e.WasSuccessful() {
			out = append(out, e)
		}
	}
	return out
}

// FirstSuccessful returns the earliest successful entry for trackID.
func (l *Log) FirstSuccessful(trackID string) (Entry, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	positions := l.index.successful(trackID)
	if len(positions) == 0 {
		return Entry{}, false
	}
	return l.entries[positions[0]], true
}

// SuccessfulFor returns every successful entry for trackID, oldest first.
func (l *Log) SuccessfulFor(trackID string) []Entry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	positions := l.index.successful(trackID)
	out := make([]Entry, 0, len(positions))
	for _, p := range positions {
		out = append(out, l.entries[p])
	}
	return out
}

// Find returns the entry with the given id.
func (l *Log) Find(id string) (Entry, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	p, ok := l.index.byID[id]
	if !ok {
		return Entry{}, false
	}
	return l.entries[p], true
}

// SuccessCount is the number of tracks that made it into the playlist.
func (l *Log) SuccessCount() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.index.successCount
}

// UserSuccessCount is the number of successful entries credited to user.
func (l *Log) UserSuccessCount(user string) int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.index.successByUser[user]
}

// WriteTo copies the raw history file to w. The lock only covers taking the
// snapshot size; the file is append-only so that prefix never changes, and a
// slow writer does not hold up Append.
func (l *Log) WriteTo(w io.Writer) (int64, error) {
	f, size, err := l.snapshot()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return io.Copy(w, io.LimitReader(f, size))
}

func (l *Log) snapshot() (*os.File, int64, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open history: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("failed to stat history: %w", err)
	}
	return f, info.Size(), nil
}
