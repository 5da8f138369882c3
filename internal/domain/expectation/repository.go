package expectation

import "context"

// Repository is the port for loading expectations from an initializer source.
type Repository interface {
	// LoadAll loads every expectation the source defines, in file order.
	LoadAll(ctx context.Context) ([]*Expectation, error)
}
