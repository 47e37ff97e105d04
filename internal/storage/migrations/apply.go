package migrations

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// script is one migration file.
type script struct {
	name string
	sql  string
}

// load returns the .sql files of dir in lexical order. Blank files are skipped.
func load(fsys fs.FS, dir string) ([]script, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list %s migrations: %w", dir, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no %s migrations embedded", dir)
	}
	sort.Strings(names)

	scripts := make([]script, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		scripts = append(scripts, script{name: path.Base(name), sql: string(data)})
	}
	return scripts, nil
}

// apply runs every script of dir through exec, stopping at the first failure.
// Scripts must be idempotent: they run on every start.
func apply(fsys fs.FS, dir string, exec func(sql string) error) error {
	scripts, err := load(fsys, dir)
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if err := exec(s.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", s.name, err)
		}
	}
	return nil
}
