package logger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"camwatch/internal/model"
)

// DetectionLog appends one line per logged detection result, e.g.
//
//	[02/01/2006 15:04:05] Person: 1 | Bicycle: 0 | Car: 2 | ...
type DetectionLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

// OpenDetectionLog opens path for appending, creating parent directories.
func OpenDetectionLog(path string) (*DetectionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create detection log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open detection log: %w", err)
	}
	return &DetectionLog{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the file the log writes to.
func (d *DetectionLog) Path() string {
	return d.path
}

// FormatDetectionLine renders counts for every label in declaration order.
func FormatDetectionLine(at time.Time, counts map[model.Label]int) string {
	parts := make([]string, 0, len(model.AllLabels()))
	for _, l := range model.AllLabels() {
		parts = append(parts, fmt.Sprintf("%s: %d", l.Title(), counts[l]))
	}
	return fmt.Sprintf("[%s] %s", at.Format("02/01/2006 15:04:05"), strings.Join(parts, " | "))
}

// Append writes one line for the result and flushes it.
func (d *DetectionLog) Append(at time.Time, res *model.DetectionResult) error {
	line := FormatDetectionLine(at, res.Counts())

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return os.ErrClosed
	}
	if _, err := d.w.WriteString(line + "\n"); err != nil {
		return err
	}
	return d.w.Flush()
}

// Truncate empties the log file.
func (d *DetectionLog) Truncate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return os.ErrClosed
	}
	d.w.Reset(d.f)
	return d.f.Truncate(0)
}

// Close flushes and closes the file. Further appends fail with os.ErrClosed.
func (d *DetectionLog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	flushErr := d.w.Flush()
	err := d.f.Close()
	d.f = nil
	if flushErr != nil {
		return flushErr
	}
	return err
}
