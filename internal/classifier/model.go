package classifier

import "context"

// Model is a loaded classifier artifact. Run maps the input tensor to one
// score per class.
type Model interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
	Close() error
}

// Loader acquires a Model for a single classification call. The caller owns
// the returned model and must Close it.
type Loader interface {
	Load(ctx context.Context) (Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (Model, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context) (Model, error) {
	return f(ctx)
}
