// Package roster is the keyed record store for enrolled students. Identity
// is the (first, last, year, teacher) tuple; there is no generated key, so
// two students with identical fields are indistinguishable downstream.
package roster

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const csvHeader = "Name,Surname,Year,Teacher,Image"

// Student is one roster record. Image is an optional base64 payload, raw or
// as a data URL.
type Student struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Year      string `json:"year"`
	Teacher   string `json:"teacher"`
	Image     string `json:"image,omitempty"`
}

// FullName is the display name and the only key the event log carries.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Same reports structural identity, image excluded.
func (s Student) Same(o Student) bool {
	return s.FirstName == o.FirstName && s.LastName == o.LastName &&
		s.Year == o.Year && s.Teacher == o.Teacher
}

// Store persists the roster as a five-column CSV file.
type Store struct {
	mu   sync.RWMutex
	path string
	log  *zap.Logger
}

// NewStore creates a store over path; the file is created on first write.
func NewStore(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log}
}

// List returns every student in file order. A missing file is an empty
// roster.
func (st *Store) List() ([]Student, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return parseCSV(string(data)), nil
}

// ReplaceAll rewrites the roster file with the given students.
func (st *Store) ReplaceAll(students []Student) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.write(students)
}

// ImportCSV parses an uploaded roster document and replaces the stored
// roster with its contents. Returns the imported students.
func (st *Store) ImportCSV(data string) ([]Student, error) {
	students := parseCSV(data)
	if len(students) == 0 {
		return nil, fmt.Errorf("roster import: no valid rows")
	}
	if err := st.ReplaceAll(students); err != nil {
		return nil, err
	}
	st.log.Info("roster imported", zap.Int("students", len(students)))
	return students, nil
}

// ExportCSV renders the stored roster, header included.
func (st *Store) ExportCSV() (string, error) {
	students, err := st.List()
	if err != nil {
		return "", err
	}
	return renderCSV(students), nil
}

// Add appends one student unless an identical record already exists.
func (st *Store) Add(s Student) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	students := st.readLocked()
	for _, existing := range students {
		if existing.Same(s) {
			return fmt.Errorf("student already on roster")
		}
	}
	return st.write(append(students, s))
}

// Remove deletes every record structurally identical to s.
func (st *Store) Remove(s Student) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	students := st.readLocked()
	kept := students[:0]
	for _, existing := range students {
		if !existing.Same(s) {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(students) {
		return fmt.Errorf("student not on roster")
	}
	return st.write(kept)
}

// Clear removes the roster file.
func (st *Store) Clear() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := os.Remove(st.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove roster: %w", err)
	}
	return nil
}

func (st *Store) readLocked() []Student {
	data, err := os.ReadFile(st.path)
	if err != nil {
		return nil
	}
	return parseCSV(string(data))
}

func (st *Store) write(students []Student) error {
	if err := os.WriteFile(st.path, []byte(renderCSV(students)), 0o644); err != nil {
		return fmt.Errorf("save roster: %w", err)
	}
	return nil
}

// parseCSV tolerates both the Name,Surname and FirstName,LastName header
// variants. Base64 image payloads can carry embedded commas, so columns
// five onward are rejoined into a single image field instead of being
// treated as extra columns.
func parseCSV(data string) []Student {
	lines := strings.Split(data, "\n")
	var students []Student
	for i, line := range lines {
		if i == 0 {
			continue // header, either variant
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, ",")
		if len(cols) < 5 {
			continue
		}
		students = append(students, Student{
			FirstName: strings.TrimSpace(cols[0]),
			LastName:  strings.TrimSpace(cols[1]),
			Year:      strings.TrimSpace(cols[2]),
			Teacher:   strings.TrimSpace(cols[3]),
			Image:     strings.TrimSpace(strings.Join(cols[4:], ",")),
		})
	}
	return students
}

func renderCSV(students []Student) string {
	var b strings.Builder
	b.WriteString(csvHeader + "\n")
	for _, s := range students {
		b.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s\n",
			s.FirstName, s.LastName, s.Year, s.Teacher, s.Image))
	}
	return b.String()
}
