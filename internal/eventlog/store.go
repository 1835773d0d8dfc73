package eventlog

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"roomlog/internal/metrics"
)

// Header is the first row of the log file. It is written once on creation
// and skipped on every read. Older installs carry older headers; readers
// never interpret it.
const Header = "Name,Year,Teacher,Reason,Room,DateTime,Type"

// Store is the append-only persistence layer for attendance events. Rows
// are comma-separated text, one event per line, newline terminated. The
// file is never rewritten in place; the only destructive operation is
// whole-file removal via Clear.
//
// Appends are serialized by a mutex so that concurrent callers cannot
// interleave mid-row.
type Store struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// NewStore creates a store writing to path. The file is created lazily on
// the first append.
func NewStore(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log}
}

// Path returns the log file location.
func (s *Store) Path() string { return s.path }

// Append serializes one event as a seven-column row and appends it. The
// header row is written first if the file does not exist yet. Prior rows
// are never touched.
func (s *Store) Append(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log: %w", err)
	}
	if st.Size() == 0 {
		if _, err := f.WriteString(Header + "\n"); err != nil {
			return fmt.Errorf("write log header: %w", err)
		}
	}

	if _, err := f.WriteString(formatRow(e)); err != nil {
		return fmt.Errorf("append log row: %w", err)
	}
	metrics.LogAppends.WithLabelValues(string(e.Room)).Inc()
	return nil
}

// ReadAll returns every row except the header, preserving file order. A
// missing file reads as zero rows; any other failure is returned so the
// caller can surface a safety warning while still treating the data as
// empty.
func (s *Store) ReadAll() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	rows := make([]string, 0, len(lines))
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, line)
	}
	return rows, nil
}

// RowCount reports the number of data rows currently in the log.
func (s *Store) RowCount() (int, error) {
	rows, err := s.ReadAll()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Export returns the raw file contents, header included. Missing file
// exports as just the header so downloads are always well formed.
func (s *Store) Export() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Header + "\n", nil
		}
		return "", fmt.Errorf("read log: %w", err)
	}
	return string(data), nil
}

// Clear deletes the log file. Used only by the explicit clear-data action.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove log: %w", err)
	}
	s.log.Info("event log cleared", zap.String("path", s.path))
	return nil
}

func formatRow(e Event) string {
	return fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s\n",
		e.StudentName, e.Year, e.Teacher, e.Reason,
		e.Room, e.Timestamp.Format(TimeLayout), e.Action)
}
