package corpus

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/failrag/internal/domain"
)

// RootCategory is assigned to sources directly under the corpus root.
const RootCategory = "general"

// sourceDoc is the on-disk YAML shape of one knowledge entry.
type sourceDoc struct {
	Title           string  `yaml:"title"`
	Summary         string  `yaml:"summary"`
	RootCauses      string  `yaml:"root_causes"`
	ResolutionSteps string  `yaml:"resolution_steps"`
	Tags            tagList `yaml:"tags"`
	Content         string  `yaml:"content"`
}

// tagList accepts either a YAML sequence or a comma-separated string.
type tagList []string

func (t *tagList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var s string
		if err := n.Decode(&s); err != nil {
			return err
		}
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				*t = append(*t, p)
			}
		}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := n.Decode(&items); err != nil {
			return err
		}
		for _, it := range items {
			if p := strings.TrimSpace(it); p != "" {
				*t = append(*t, p)
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: tags must be a list or a string", n.Line)
	}
}

// LoadDir reads every *.yaml / *.yml file under root. A file may hold several
// YAML documents separated by "---". Entries are returned in path order.
func LoadDir(root string) ([]domain.DocumentEntry, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)

	var entries []domain.DocumentEntry
	for _, path := range paths {
		docs, err := LoadFile(root, path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, docs...)
	}
	return entries, nil
}

// LoadFile parses one source file. Category derives from its directory relative to root.
func LoadFile(root, path string) ([]domain.DocumentEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	category := categoryFor(root, path)
	dec := yaml.NewDecoder(f)

	var entries []domain.DocumentEntry
	for i := 0; ; i++ {
		var src sourceDoc
		if err := dec.Decode(&src); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if src.empty() {
			continue
		}
		entry, err := src.entry(category)
		if err != nil {
			return nil, fmt.Errorf("%s (document %d): %w", path, i+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s sourceDoc) empty() bool {
	return s.Title == "" && s.Content == "" && s.Summary == "" && s.RootCauses == "" &&
		s.ResolutionSteps == "" && len(s.Tags) == 0
}

func (s sourceDoc) entry(category string) (domain.DocumentEntry, error) {
	if strings.TrimSpace(s.Title) == "" {
		return domain.DocumentEntry{}, fmt.Errorf("%w: title is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(s.Content) == "" {
		return domain.DocumentEntry{}, fmt.Errorf("%w: content is required", domain.ErrInvalidArgument)
	}
	return domain.DocumentEntry{
		Category:        category,
		Title:           strings.TrimSpace(s.Title),
		Content:         strings.TrimSpace(s.Content),
		Summary:         strings.TrimSpace(s.Summary),
		RootCauses:      strings.TrimSpace(s.RootCauses),
		ResolutionSteps: strings.TrimSpace(s.ResolutionSteps),
		Tags:            strings.Join(s.Tags, ", "),
	}, nil
}

func categoryFor(root, path string) string {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." || rel == "" {
		return RootCategory
	}
	return filepath.ToSlash(rel)
}
