// Package curriculum holds the static, read-only subject catalog.
package curriculum

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a subject, unit or lesson ID is not in the catalog.
var ErrNotFound = errors.New("not found")

//go:embed subjects/*.yaml
var builtin embed.FS

// Catalog maps subject IDs to their unit/lesson trees. It is never mutated after
// construction and is safe to share between learners.
type Catalog struct {
	subjects map[string]Subject
	mu       sync.RWMutex
}

// NewCatalog loads the built-in subjects and then any subject YAML under rootDir.
// Files under rootDir replace built-in subjects with the same ID. An empty or
// missing rootDir only yields the built-in subjects.
func NewCatalog(rootDir string) (*Catalog, error) {
	c := &Catalog{subjects: make(map[string]Subject)}

	if err := c.loadFS(builtin, "subjects"); err != nil {
		return nil, fmt.Errorf("loading built-in subjects: %w", err)
	}

	if rootDir != "" {
		if _, err := os.Stat(rootDir); err == nil {
			if err := c.loadFS(os.DirFS(rootDir), "."); err != nil {
				return nil, fmt.Errorf("loading curriculum from %s: %w", rootDir, err)
			}
		} else {
			slog.Warn("curriculum path not found, using built-in subjects", "path", rootDir)
		}
	}

	slog.Info("curriculum loaded", "subjects", len(c.subjects))
	return c, nil
}

// NewCatalogFromSubjects builds a catalog from in-memory subjects. Every subject
// must satisfy ValidateSubject.
func NewCatalogFromSubjects(subjects ...Subject) (*Catalog, error) {
	c := &Catalog{subjects: make(map[string]Subject, len(subjects))}
	for _, s := range subjects {
		if err := ValidateSubject(s); err != nil {
			return nil, err
		}
		c.subjects[s.ID] = s.Clone()
	}
	return c, nil
}

// GetSubject returns a copy of the subject with the given ID.
func (c *Catalog) GetSubject(id string) (Subject, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.subjects[id]
	if !ok {
		return Subject{}, fmt.Errorf("subject %q: %w", id, ErrNotFound)
	}
	return s.Clone(), nil
}

// Subjects returns copies of all subjects ordered by title.
func (c *Catalog) Subjects() []Subject {
	c.mu.RLock()
	out := make([]Subject, 0, len(c.subjects))
	for _, s := range c.subjects {
		out = append(out, s.Clone())
	}
	c.mu.RUnlock()

	col := collate.New(language.English, collate.IgnoreCase)
	sort.Slice(out, func(i, j int) bool {
		return col.CompareString(out[i].Title, out[j].Title) < 0
	})
	return out
}

// LookupLesson finds a lesson by subject, unit and lesson ID.
func (c *Catalog) LookupLesson(subjectID, unitID, lessonID string) (Lesson, error) {
	s, err := c.GetSubject(subjectID)
	if err != nil {
		return Lesson{}, err
	}
	u, ok := s.Unit(unitID)
	if !ok {
		return Lesson{}, fmt.Errorf("unit %q: %w", unitID, ErrNotFound)
	}
	l, ok := u.Lesson(lessonID)
	if !ok {
		return Lesson{}, fmt.Errorf("lesson %q: %w", lessonID, ErrNotFound)
	}
	return l, nil
}

// ValidateSubject checks the structural invariants of a subject: contiguous unit
// ordinals starting at 1, non-empty lesson lists, one identified checkpoint per
// unit and unique IDs throughout.
func ValidateSubject(s Subject) error {
	if s.ID == "" {
		return fmt.Errorf("subject id is required")
	}
	if len(s.Units) == 0 {
		return fmt.Errorf("subject %s: no units", s.ID)
	}

	seen := make(map[string]bool)
	ordinals := make(map[int]bool, len(s.Units))
	for _, u := range s.Units {
		if u.ID == "" {
			return fmt.Errorf("subject %s: unit id is required", s.ID)
		}
		if seen[u.ID] {
			return fmt.Errorf("subject %s: duplicate id %s", s.ID, u.ID)
		}
		seen[u.ID] = true

		if u.Ordinal < 1 || u.Ordinal > len(s.Units) || ordinals[u.Ordinal] {
			return fmt.Errorf("subject %s: unit %s has ordinal %d, want contiguous 1..%d", s.ID, u.ID, u.Ordinal, len(s.Units))
		}
		ordinals[u.Ordinal] = true

		if len(u.Lessons) == 0 {
			return fmt.Errorf("subject %s: unit %s has no lessons", s.ID, u.ID)
		}
		for _, l := range u.Lessons {
			if l.ID == "" {
				return fmt.Errorf("subject %s: unit %s: lesson id is required", s.ID, u.ID)
			}
			if seen[l.ID] {
				return fmt.Errorf("subject %s: duplicate id %s", s.ID, l.ID)
			}
			seen[l.ID] = true
		}

		if u.Checkpoint.ID == "" {
			return fmt.Errorf("subject %s: unit %s has no checkpoint", s.ID, u.ID)
		}
		if seen[u.Checkpoint.ID] {
			return fmt.Errorf("subject %s: duplicate id %s", s.ID, u.Checkpoint.ID)
		}
		seen[u.Checkpoint.ID] = true
	}
	return nil
}

func (c *Catalog) loadFS(fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		return c.loadSubject(fsys, path)
	})
}

func (c *Catalog) loadSubject(fsys fs.FS, path string) error {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return err
	}

	var subject Subject
	if err := yaml.Unmarshal(data, &subject); err != nil {
		slog.Warn("skipping invalid subject YAML", "path", path, "error", err)
		return nil
	}

	if subject.ID == "" {
		return nil // Not a subject file
	}

	sort.SliceStable(subject.Units, func(i, j int) bool {
		return subject.Units[i].Ordinal < subject.Units[j].Ordinal
	})

	if err := ValidateSubject(subject); err != nil {
		slog.Warn("skipping subject", "path", filepath.ToSlash(path), "error", err)
		return nil
	}

	c.mu.Lock()
	c.subjects[subject.ID] = subject
	c.mu.Unlock()

	return nil
}
