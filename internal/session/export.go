package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNothingToExport is returned by WriteExport when the history is empty.
var ErrNothingToExport = errors.New("no conversation to export")

// WriteExport writes Export(now) to dir under ExportFilename(now) and
// returns the file path.
func (s *State) WriteExport(dir string, now time.Time) (string, error) {
	if len(s.history) == 0 {
		return "", ErrNothingToExport
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	path := filepath.Join(dir, ExportFilename(now))
	if err := os.WriteFile(path, []byte(s.Export(now)), 0o600); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	return path, nil
}
