package template

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
)

var _ ports.TemplateRenderer = (*Registry)(nil)

const compiledCacheSize = 512

type renderer interface {
	render(ctx context.Context, rc renderContext) ([]byte, error)
}

type engine interface {
	compile(source string) (renderer, error)
}

type cacheKey struct {
	engine string
	source string
}

// Registry maps template engine names to engines and caches compiled templates.
// JAVASCRIPT templates run on Expr, VELOCITY templates on pongo2.
type Registry struct {
	engines map[string]engine
	clock   ports.Clock

	mu    sync.Mutex
	cache *lru.Cache
}

// NewRegistry creates a registry with the built-in engines.
func NewRegistry(clock ports.Clock) *Registry {
	return &Registry{
		engines: map[string]engine{
			"expr":   exprEngine{},
			"jinja2": jinja2Engine{},
		},
		clock: clock,
		cache: lru.New(compiledCacheSize),
	}
}

// engineName resolves the wire engine name or one of its aliases.
func engineName(e expectation.TemplateEngine) (string, bool) {
	switch strings.ToLower(string(e)) {
	case "", "javascript", "expr":
		return "expr", true
	case "velocity", "jinja2":
		return "jinja2", true
	}
	return "", false
}

// Compile resolves the engine and compiles source, reusing a cached template
// when the same source was compiled before.
func (r *Registry) Compile(e expectation.TemplateEngine, source string) (ports.Template, error) {
	name, ok := engineName(e)
	if !ok {
		return nil, fmt.Errorf("unknown template engine: %q (supported: JAVASCRIPT, VELOCITY)", e)
	}
	key := cacheKey{engine: name, source: source}

	r.mu.Lock()
	cached, hit := r.cache.Get(key)
	r.mu.Unlock()
	if hit {
		return cached.(*compiled), nil
	}

	rd, err := r.engines[name].compile(source)
	if err != nil {
		return nil, err
	}
	t := &compiled{renderer: rd, clock: r.clock}

	r.mu.Lock()
	r.cache.Add(key, t)
	r.mu.Unlock()
	return t, nil
}

// Len returns the number of cached templates.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

type compiled struct {
	renderer renderer
	clock    ports.Clock
}

func (t *compiled) Render(ctx context.Context, req *expectation.Request) ([]byte, error) {
	now := time.Now().UTC()
	if t.clock != nil {
		now = t.clock.Now()
	}
	return t.renderer.render(ctx, renderContext{req: req, now: now})
}
