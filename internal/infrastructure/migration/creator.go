package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

var skeleton = template.Must(template.New("migration").Parse(`-- {{.Entry.Version | printf "%06d"}} {{.Entry.Name}} ({{.Direction}})
-- Created: {{.Created}}
{{- if .Description}}
-- {{.Description}}
{{- end}}

`))

// Entry is one migration pair in a directory
type Entry struct {
	Version uint64
	Name    string
}

// Base is the file name shared by both halves of the pair
func (e Entry) Base() string {
	return fmt.Sprintf("%06d_%s", e.Version, e.Name)
}

// Created is the file pair written by Create
type Created struct {
	Entry
	UpPath   string
	DownPath string
}

// Create writes an empty up/down pair numbered after the highest version in
// dir. name is reduced to lower case words joined by underscores.
func Create(dir, name, description string) (*Created, error) {
	slug := slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("invalid migration name %q", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	entries, err := List(dir)
	if err != nil {
		return nil, err
	}
	entry := Entry{Version: 1, Name: slug}
	if len(entries) > 0 {
		entry.Version = entries[len(entries)-1].Version + 1
	}

	created := &Created{
		Entry:    entry,
		UpPath:   filepath.Join(dir, entry.Base()+upSuffix),
		DownPath: filepath.Join(dir, entry.Base()+downSuffix),
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := writeSkeleton(created.UpPath, entry, "up", stamp, description); err != nil {
		return nil, err
	}
	if err := writeSkeleton(created.DownPath, entry, "down", stamp, description); err != nil {
		_ = os.Remove(created.UpPath)
		return nil, err
	}
	return created, nil
}

func writeSkeleton(path string, entry Entry, direction, created, description string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	return skeleton.Execute(f, map[string]any{
		"Entry":       entry,
		"Direction":   direction,
		"Created":     created,
		"Description": description,
	})
}

// slugify keeps ASCII letters and digits, lower cased, and turns runs of
// spaces, dashes and underscores into a single underscore
func slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		case r == ' ' || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}

// List returns the migrations in dir ordered by version. Files without a
// numeric version prefix are ignored; a missing dir is empty.
func List(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var entries []Entry
	for _, f := range files {
		base, ok := strings.CutSuffix(f.Name(), upSuffix)
		if f.IsDir() || !ok {
			continue
		}
		prefix, name, _ := strings.Cut(base, "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Version: version, Name: name})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return entries, nil
}
