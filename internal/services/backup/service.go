// Package backup copies files into a dated backup directory before they are
// moved. Every copy is verified against the source digest.
package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/zeebo/blake3"
)

// Service writes backups under <dir>/<YYYY-MM-DD>/<relative path>
type Service struct {
	dir    string
	root   string
	now    func() time.Time
	logger arbor.ILogger
}

// NewService creates a backup service. dir is absolute or relative to root.
func NewService(dir, root string, logger arbor.ILogger) *Service {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, filepath.FromSlash(dir))
	}
	return &Service{
		dir:    dir,
		root:   root,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source used to name the dated directory
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Backup copies the project-relative file and returns the backup path
// relative to the project root. An existing backup of the same file from
// the same day is kept and the new copy gets a time suffix.
func (s *Service) Backup(relPath string) (string, error) {
	now := s.now()
	src := filepath.Join(s.root, filepath.FromSlash(relPath))
	dst := filepath.Join(s.dir, now.Format("2006-01-02"), filepath.FromSlash(relPath))
	if _, err := os.Stat(dst); err == nil {
		dst = dst + "." + now.Format("150405.000000000")
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	sum, err := copyFile(src, dst)
	if err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", relPath, err)
	}

	check, err := Digest(dst)
	if err != nil {
		return "", fmt.Errorf("failed to verify backup of %s: %w", relPath, err)
	}
	if !bytes.Equal(sum, check) {
		os.Remove(dst)
		return "", fmt.Errorf("backup of %s does not match the source", relPath)
	}

	rel, err := filepath.Rel(s.root, dst)
	if err != nil {
		rel = dst
	}
	rel = filepath.ToSlash(rel)

	s.logger.Debug().Str("file", relPath).Str("backup", rel).Msg("Backup written")
	return rel, nil
}

// Digest returns the BLAKE3 digest of a file
func Digest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}

// copyFile copies src to dst preserving the mode and modification time and
// returns the digest of the bytes read
func copyFile(src, dst string) ([]byte, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, &fs.PathError{Op: "copy", Path: src, Err: errors.New("not a regular file")}
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return nil, err
	}

	hasher := blake3.New()
	if _, err := io.Copy(io.MultiWriter(out, hasher), in); err != nil {
		out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}
