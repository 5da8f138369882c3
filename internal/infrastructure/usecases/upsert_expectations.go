package usecases

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
	"github.com/sophialabs/expectmock/internal/infrastructure/services"
)

// UpsertExpectationsUseCase compiles expectations and registers them. A batch
// is registered only when every expectation in it compiles.
type UpsertExpectationsUseCase struct {
	compiler *services.Compiler
	registry *services.Registry
	clock    ports.Clock
	logger   ports.Logger
	newID    func() string
}

// NewUpsertExpectationsUseCase creates a new use case.
func NewUpsertExpectationsUseCase(compiler *services.Compiler, registry *services.Registry, clock ports.Clock, logger ports.Logger) *UpsertExpectationsUseCase {
	return &UpsertExpectationsUseCase{
		compiler: compiler,
		registry: registry,
		clock:    clock,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Execute assigns ids to anonymous expectations, stamps their creation time
// and registers them in order. It returns the registered ids.
func (uc *UpsertExpectationsUseCase) Execute(ctx context.Context, exps []*expectation.Expectation) ([]string, error) {
	now := uc.clock.Now()

	compiled := make([][]*match.CompiledExpectation, 0, len(exps))
	seen := make(map[string]bool, len(exps))
	for _, exp := range exps {
		if exp.ID == "" {
			exp.ID = uc.newID()
		}
		if seen[exp.ID] {
			return nil, fmt.Errorf("duplicate expectation id %q in request", exp.ID)
		}
		seen[exp.ID] = true
		exp.Created = now

		ces, err := uc.compiler.Compile(ctx, exp)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, ces)
	}

	ids := make([]string, 0, len(compiled))
	for _, ces := range compiled {
		uc.registry.Upsert(ces)
		ids = append(ids, ces[0].ID)
		uc.logger.Debug("expectation registered", "id", ces[0].ID, "priority", ces[0].Priority, "matchers", len(ces))
	}
	uc.logger.Info("expectations upserted", "count", len(ids))
	return ids, nil
}

// OpenAPIExpectationUseCase expands an OpenAPI document into one expectation
// per selected operation and registers them.
type OpenAPIExpectationUseCase struct {
	resolver ports.OpenAPIResolver
	upsert   *UpsertExpectationsUseCase
}

// NewOpenAPIExpectationUseCase creates a new use case.
func NewOpenAPIExpectationUseCase(resolver ports.OpenAPIResolver, upsert *UpsertExpectationsUseCase) *OpenAPIExpectationUseCase {
	return &OpenAPIExpectationUseCase{resolver: resolver, upsert: upsert}
}

// Execute expands oe and registers the result.
func (uc *OpenAPIExpectationUseCase) Execute(ctx context.Context, oe *expectation.OpenAPIExpectation) ([]string, error) {
	exps, err := uc.resolver.Expand(ctx, oe)
	if err != nil {
		return nil, fmt.Errorf("failed to expand OpenAPI expectation: %w", err)
	}
	return uc.upsert.Execute(ctx, exps)
}
