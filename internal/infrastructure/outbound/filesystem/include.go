package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	includeTag      = "!include"
	maxIncludeDepth = 10
)

// IncludeResolver replaces !include tagged nodes with the referenced file.
// YAML and JSON files are spliced in as documents, anything else becomes a
// string scalar. References may not leave rootDir.
type IncludeResolver struct {
	rootDir string
}

// NewIncludeResolver creates a resolver bound to rootDir for @root references.
func NewIncludeResolver(rootDir string) *IncludeResolver {
	return &IncludeResolver{rootDir: rootDir}
}

// ResolveIncludes walks node and resolves every !include relative to currentDir.
func (r *IncludeResolver) ResolveIncludes(node *yaml.Node, currentDir string) error {
	return r.walk(node, currentDir, nil)
}

func (r *IncludeResolver) walk(node *yaml.Node, currentDir string, chain []string) error {
	if node == nil {
		return nil
	}
	if node.Tag == includeTag {
		return r.include(node, currentDir, chain)
	}
	for _, child := range node.Content {
		if err := r.walk(child, currentDir, chain); err != nil {
			return err
		}
	}
	return nil
}

func (r *IncludeResolver) include(node *yaml.Node, currentDir string, chain []string) error {
	ref := strings.TrimSpace(node.Value)
	if ref == "" {
		return fmt.Errorf("%s tag has empty value", includeTag)
	}
	if len(chain) >= maxIncludeDepth {
		return fmt.Errorf("%s depth exceeds maximum of %d", includeTag, maxIncludeDepth)
	}

	resolved, err := r.resolvePath(ref, currentDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s %q: %w", includeTag, ref, err)
	}
	if err := r.validatePath(resolved); err != nil {
		return fmt.Errorf("%s path %q is not allowed: %w", includeTag, ref, err)
	}
	if slices.Contains(chain, resolved) {
		return fmt.Errorf("%s cycle: %s", includeTag, strings.Join(append(chain, resolved), " -> "))
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("failed to read included file %q: %w", resolved, err)
	}

	if !isStructuredFile(resolved) {
		*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(data)}
		return nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse included file %q: %w", resolved, err)
	}
	if err := r.walk(&doc, filepath.Dir(resolved), append(slices.Clone(chain), resolved)); err != nil {
		return err
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		*node = *doc.Content[0]
		return nil
	}
	*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	return nil
}

func (r *IncludeResolver) resolvePath(ref, currentDir string) (string, error) {
	var p string
	switch {
	case strings.HasPrefix(ref, "@root/"):
		p = filepath.Join(r.rootDir, ref[len("@root/"):])
	case strings.HasPrefix(ref, "@here/"):
		p = filepath.Join(currentDir, ref[len("@here/"):])
	case filepath.IsAbs(ref):
		return "", fmt.Errorf("absolute paths are not allowed in %s", includeTag)
	default:
		p = filepath.Join(currentDir, ref)
	}
	return filepath.Abs(p)
}

func (r *IncludeResolver) validatePath(resolved string) error {
	real, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		real = resolved
	}
	root, err := filepath.Abs(r.rootDir)
	if err != nil {
		return err
	}
	if evaluated, err := filepath.EvalSymlinks(root); err == nil {
		root = evaluated
	}

	rel, err := filepath.Rel(root, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes root directory")
	}
	return nil
}

func isStructuredFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
