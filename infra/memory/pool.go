package memory

import "sync"

// Pool is a typed object pool. Values are reset on Put so a recycled
// object never carries state from its previous life.
type Pool[T any] struct {
	p     *sync.Pool
	reset func(*T)
}

func NewPool[T any](ctor func() *T, reset func(*T)) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
		reset: reset,
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

// Put returns v. The caller must not keep any reference to v.
func (p *Pool[T]) Put(v *T) {
	if v == nil {
		return
	}
	if p.reset != nil {
		p.reset(v)
	}
	p.p.Put(v)
}
