package files

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Archive subdirectories of the inbox
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Manager moves inbox files once they have been handled
type Manager struct {
	inbox  string
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates a manager for the inbox directory
func NewManager(inbox string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		inbox:  inbox,
		now:    time.Now,
		logger: logger.With(slog.String("component", "inbox_manager")),
	}
}

// Archive moves path into processed/ or failed/ under the inbox and
// returns the new location. Existing names get a timestamp suffix.
func (m *Manager) Archive(path string, ok bool) (string, error) {
	sub := ProcessedDir
	if !ok {
		sub = FailedDir
	}
	dir := filepath.Join(m.inbox, sub)

	dst := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(dst)
		stem := strings.TrimSuffix(filepath.Base(dst), ext)
		dst = filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, m.now().Format("20060102_150405.000"), ext))
	}

	if err := m.MoveFile(path, dst); err != nil {
		return "", err
	}
	m.logger.Debug("inbox file archived",
		slog.String("src", path),
		slog.String("dst", dst))
	return dst, nil
}

// MoveFile moves a file from source to destination
func (m *Manager) MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	// rename is atomic on the same filesystem
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	return dstFile.Sync()
}
