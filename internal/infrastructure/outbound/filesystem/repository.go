package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/codec"
)

var _ expectation.Repository = (*Repository)(nil)

// Repository loads expectations from YAML or JSON initializer files. The
// location is a file, a directory (walked recursively) or a doublestar glob.
type Repository struct {
	pattern  string
	rootDir  string
	glob     bool
	resolver *IncludeResolver
}

// NewRepository creates a repository for location.
func NewRepository(location string) (*Repository, error) {
	if strings.TrimSpace(location) == "" {
		return nil, errors.New("initializer location is empty")
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve initializer location: %w", err)
	}

	r := &Repository{pattern: abs}
	if hasMeta(abs) {
		if !doublestar.ValidatePathPattern(abs) {
			return nil, fmt.Errorf("invalid initializer pattern %q", location)
		}
		base, _ := doublestar.SplitPattern(filepath.ToSlash(abs))
		r.rootDir = filepath.FromSlash(base)
		r.glob = true
	} else if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		r.rootDir = filepath.Dir(abs)
	} else {
		r.rootDir = abs
	}
	r.resolver = NewIncludeResolver(r.rootDir)
	return r, nil
}

// Root returns the directory the files live under. @root includes resolve
// against it.
func (r *Repository) Root() string { return r.rootDir }

// Matches reports whether path is an initializer file this repository reads.
func (r *Repository) Matches(path string) bool {
	if !isStructuredFile(path) {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	switch {
	case r.glob:
		ok, _ := doublestar.PathMatch(r.pattern, abs)
		return ok
	case r.rootDir == r.pattern:
		rel, err := filepath.Rel(r.rootDir, abs)
		return err == nil && !strings.HasPrefix(rel, "..")
	default:
		return abs == r.pattern
	}
}

// LoadAll reads every matching file in lexical path order. Expectations without
// an id get "<relative path>#<index>" so reloading the same file replaces them.
func (r *Repository) LoadAll(ctx context.Context) ([]*expectation.Expectation, error) {
	files, err := r.files()
	if err != nil {
		return nil, err
	}

	var out []*expectation.Expectation
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(r.rootDir, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		exps, err := r.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", rel, err)
		}
		for i, exp := range exps {
			if exp.ID == "" {
				exp.ID = rel + "#" + strconv.Itoa(i)
			}
		}
		out = append(out, exps...)
	}
	return out, nil
}

func (r *Repository) files() ([]string, error) {
	var files []string
	switch {
	case r.glob:
		matches, err := doublestar.FilepathGlob(r.pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to expand %q: %w", r.pattern, err)
		}
		for _, m := range matches {
			if isStructuredFile(m) {
				files = append(files, m)
			}
		}

	case r.rootDir == r.pattern:
		err := filepath.WalkDir(r.rootDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isStructuredFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk initializer directory: %w", err)
		}

	default:
		if _, err := os.Stat(r.pattern); err != nil {
			return nil, fmt.Errorf("failed to read initializer file: %w", err)
		}
		files = []string{r.pattern}
	}
	sort.Strings(files)
	return files, nil
}

func (r *Repository) loadFile(path string) ([]*expectation.Expectation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// JSON is parsed as YAML too so both formats share !include handling.
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	if root.Kind == 0 {
		return nil, nil
	}
	if err := r.resolver.ResolveIncludes(&root, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to resolve includes: %w", err)
	}

	doc, err := nodeToJSON(&root)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to JSON: %w", err)
	}
	return codec.DecodeExpectations(doc)
}

func hasMeta(path string) bool {
	return strings.ContainsAny(filepath.ToSlash(path), "*?[{")
}
