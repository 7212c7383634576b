package classifier

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Load after Close.
var ErrPoolClosed = errors.New("model pool closed")

// Pool hands out at most size loaded models at a time and keeps released
// ones for reuse. Loading a model is the expensive step, so instances are
// only created when no idle one is available.
type Pool struct {
	loader Loader
	slots  chan struct{}
	idle   chan Model

	mu     sync.Mutex
	closed bool
}

// NewPool wraps loader. A size below one is treated as one.
func NewPool(loader Loader, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		loader: loader,
		slots:  make(chan struct{}, size),
		idle:   make(chan Model, size),
	}
}

// Load blocks until a slot is free or ctx is done.
func (p *Pool) Load(ctx context.Context) (Model, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.isClosed() {
		<-p.slots
		return nil, ErrPoolClosed
	}

	select {
	case m := <-p.idle:
		return &pooledModel{pool: p, model: m}, nil
	default:
	}

	m, err := p.loader.Load(ctx)
	if err != nil {
		<-p.slots
		return nil, err
	}
	return &pooledModel{pool: p, model: m}, nil
}

// Close destroys idle models. Models still checked out are destroyed when
// they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for {
		select {
		case m := <-p.idle:
			if err := m.Close(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) release(m Model, broken bool) error {
	defer func() { <-p.slots }()

	if !broken {
		p.mu.Lock()
		pooled := false
		if !p.closed {
			select {
			case p.idle <- m:
				pooled = true
			default:
			}
		}
		p.mu.Unlock()
		if pooled {
			return nil
		}
	}
	return m.Close()
}

type pooledModel struct {
	pool   *Pool
	model  Model
	broken bool
	once   sync.Once
}

func (m *pooledModel) Run(ctx context.Context, input []float32) ([]float32, error) {
	out, err := m.model.Run(ctx, input)
	if err != nil {
		m.broken = true
	}
	return out, err
}

func (m *pooledModel) Close() error {
	var err error
	m.once.Do(func() {
		err = m.pool.release(m.model, m.broken)
	})
	return err
}
