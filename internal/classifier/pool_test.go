package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingLoader struct {
	created []*stubModel
	scores  []float32
}

func (c *countingLoader) Load(ctx context.Context) (Model, error) {
	m := &stubModel{scores: c.scores}
	c.created = append(c.created, m)
	return m, nil
}

func TestPoolReusesReleasedModel(t *testing.T) {
	loader := &countingLoader{scores: []float32{1}}
	pool := NewPool(loader, 2)

	first, err := pool.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	second, err := pool.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer second.Close()

	if len(loader.created) != 1 {
		t.Fatalf("expected a single underlying model, got %d", len(loader.created))
	}
	if loader.created[0].closed != 0 {
		t.Fatal("pooled model must not be destroyed on release")
	}
}

func TestPoolDestroysBrokenModel(t *testing.T) {
	loader := &countingLoader{}
	pool := NewPool(loader, 1)

	m, err := pool.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loader.created[0].runErr = errors.New("bad session")
	if _, err := m.Run(context.Background(), nil); err == nil {
		t.Fatal("expected run error")
	}
	m.Close()

	if loader.created[0].closed != 1 {
		t.Fatalf("expected broken model to be destroyed, got %d closes", loader.created[0].closed)
	}
	next, err := pool.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer next.Close()
	if len(loader.created) != 2 {
		t.Fatalf("expected a fresh model, got %d created", len(loader.created))
	}
}

func TestPoolBlocksWhenExhausted(t *testing.T) {
	pool := NewPool(&countingLoader{}, 1)

	held, err := pool.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer held.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Load(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPoolCloseDestroysIdleModels(t *testing.T) {
	loader := &countingLoader{}
	pool := NewPool(loader, 1)

	m, err := pool.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Close()

	if err := pool.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loader.created[0].closed != 1 {
		t.Fatalf("expected idle model to be destroyed, got %d", loader.created[0].closed)
	}
	if _, err := pool.Load(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestClassifierWithPoolReleasesSlot(t *testing.T) {
	loader := &countingLoader{scores: []float32{0.3, 0.6}}
	pool := NewPool(loader, 1)
	c := New(pool, mustParse(t, "0 a", "1 b"), Options{}, zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := c.Classify(context.Background(), "req", nil); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	if len(loader.created) != 1 {
		t.Fatalf("expected model reuse across calls, got %d loads", len(loader.created))
	}
}
