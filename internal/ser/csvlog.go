package ser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

var csvHeader = []string{"utime", "isotime", "frame", "hop", "symbols", "errors", "ser"}

// CSVLog appends one row per measured frame. The file name is an strftime
// pattern expanded with the current UTC time, so "ser-%Y-%m-%d.csv" rolls over
// daily. A header is written when a file is created.
type CSVLog struct {
	mu      sync.Mutex
	pattern *strftime.Strftime
	now     func() time.Time

	f    *os.File
	w    *csv.Writer
	name string
}

// NewCSVLog parses pattern; no file is opened until the first Write.
func NewCSVLog(pattern string) (*CSVLog, error) {
	if pattern == "" {
		return nil, errors.New("csv log: empty file pattern")
	}
	p, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("csv log pattern %q: %w", pattern, err)
	}
	return &CSVLog{pattern: p, now: time.Now}, nil
}

// Name returns the file currently open, empty before the first Write.
func (l *CSVLog) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

// Write appends r, switching files when the expanded name changes.
func (l *CSVLog) Write(r Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	name := l.pattern.FormatString(now)
	if l.f != nil && name != l.name {
		if err := l.closeLocked(); err != nil {
			return err
		}
	}
	if l.f == nil {
		if err := l.open(name); err != nil {
			return err
		}
	}

	row := []string{
		strconv.FormatInt(now.Unix(), 10),
		now.Format("2006-01-02T15:04:05Z"),
		strconv.FormatInt(r.Frame, 10),
		strconv.FormatInt(r.Hop, 10),
		strconv.Itoa(r.Symbols),
		strconv.Itoa(r.Errors),
		strconv.FormatFloat(r.SER, 'g', 6, 64),
	}
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("csv log %s: %w", l.name, err)
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *CSVLog) open(name string) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("csv log dir: %w", err)
		}
	}
	_, statErr := os.Stat(name)
	existed := statErr == nil

	f, err := os.OpenFile(name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open csv log: %w", err)
	}
	l.f = f
	l.w = csv.NewWriter(f)
	l.name = name
	if !existed {
		if err := l.w.Write(csvHeader); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the current file.
func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *CSVLog) closeLocked() error {
	if l.f == nil {
		return nil
	}
	l.w.Flush()
	err := errors.Join(l.w.Error(), l.f.Close())
	l.f = nil
	l.w = nil
	return err
}
