package remediation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/canon/internal/models"
)

// DefaultMigrations move the legacy flat layout under .claude/
func DefaultMigrations() []models.Migration {
	return []models.Migration{
		{From: "memory/*-memory.json", To: ".claude/memory"},
		{From: "agents/*.md", To: ".claude/agents"},
		{From: "context/*.yaml", To: ".claude/context"},
		{From: "config/canonical-structure.yaml", To: ".claude/config"},
	}
}

// expandMigration lists the files a migration applies to. From is a file, a
// directory (its direct files) or a directory plus a wildcard base name.
// To is always a directory.
func (s *Service) expandMigration(migration models.Migration) ([]moveItem, error) {
	from := models.CleanRelDir(migration.From)
	to := models.CleanRelDir(migration.To)
	if from == "." {
		return nil, fmt.Errorf("migration source must not be the project root")
	}

	dir, pattern := path.Dir(from), path.Base(from)
	if !hasMeta(pattern) {
		info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(from)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return []moveItem{s.migrationItem(from, to)}, nil
		}
		dir, pattern = from, "*"
	}
	if hasMeta(dir) {
		return nil, fmt.Errorf("wildcards are only supported in the file name: %s", migration.From)
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(dir)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []moveItem
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ok, _ := path.Match(pattern, entry.Name()); ok {
			items = append(items, s.migrationItem(path.Join(dir, entry.Name()), to))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].source < items[j].source })
	return items, nil
}

func (s *Service) migrationItem(source, toDir string) moveItem {
	return moveItem{
		source:      source,
		destination: path.Join(toDir, path.Base(source)),
		rule:        "migration",
	}
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, `*?[\`)
}
