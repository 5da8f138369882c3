package usecases

import (
	"context"
	"fmt"
	"sync"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
	"github.com/sophialabs/expectmock/internal/infrastructure/services"
)

// LoadResult summarizes one initializer load.
type LoadResult struct {
	Loaded  int
	Failed  int
	Removed int
}

// LoadExpectationsUseCase registers the expectations of an initializer source.
// Reloading replaces what the previous load registered: expectations that are
// gone from the files are removed, ones added through the API are untouched.
type LoadExpectationsUseCase struct {
	repo     expectation.Repository
	compiler *services.Compiler
	registry *services.Registry
	clock    ports.Clock
	logger   ports.Logger

	mu     sync.Mutex
	loaded map[string]bool
}

// NewLoadExpectationsUseCase creates a new use case.
func NewLoadExpectationsUseCase(
	repo expectation.Repository,
	compiler *services.Compiler,
	registry *services.Registry,
	clock ports.Clock,
	logger ports.Logger,
) *LoadExpectationsUseCase {
	return &LoadExpectationsUseCase{
		repo:     repo,
		compiler: compiler,
		registry: registry,
		clock:    clock,
		logger:   logger,
		loaded:   make(map[string]bool),
	}
}

// Execute loads, compiles and registers every expectation of the source.
// Expectations that fail to compile are skipped with a warning; a source that
// cannot be read or holds duplicate ids leaves the registry unchanged.
func (uc *LoadExpectationsUseCase) Execute(ctx context.Context) (LoadResult, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	exps, err := uc.repo.LoadAll(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to load expectations: %w", err)
	}
	uc.logger.Info("loaded expectations from initializer", "count", len(exps))

	ids := make(map[string]bool, len(exps))
	for _, exp := range exps {
		if ids[exp.ID] {
			return LoadResult{}, fmt.Errorf("duplicate expectation ID: %q", exp.ID)
		}
		ids[exp.ID] = true
	}

	now := uc.clock.Now()
	var result LoadResult
	compiled := make([][]*match.CompiledExpectation, 0, len(exps))
	for _, exp := range exps {
		exp.Created = now
		ces, err := uc.compiler.Compile(ctx, exp)
		if err != nil {
			result.Failed++
			uc.logger.Warn("failed to compile expectation", "id", exp.ID, "error", err)
			continue
		}
		compiled = append(compiled, ces)
	}

	var stale []string
	for id := range uc.loaded {
		if !ids[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		result.Removed = uc.registry.Remove(stale...)
	}

	for _, ces := range compiled {
		uc.registry.Upsert(ces)
		uc.logger.Debug("compiled expectation", "id", ces[0].ID, "matchers", len(ces))
	}
	result.Loaded = len(compiled)
	uc.loaded = ids

	if result.Failed > 0 {
		uc.logger.Warn("some expectations failed to compile", "errors", result.Failed)
	}
	uc.logger.Info("initializer applied", "loaded", result.Loaded, "removed", result.Removed)
	return result, nil
}
