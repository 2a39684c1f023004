package engine

import "sync"

// registrar is the engine-scoped map from processor id to processor.
// Lookups are wait-free; insert and remove are safe from any goroutine.
type registrar struct {
	procs sync.Map // id -> *Processor
}

// register inserts p only if its id is absent, reporting whether the
// insertion occurred.
func (r *registrar) register(p *Processor) bool {
	_, loaded := r.procs.LoadOrStore(p.id, p)
	return !loaded
}

// unregister removes any entry for id.
func (r *registrar) unregister(id string) {
	r.procs.Delete(id)
}

// get returns the processor registered under id, or nil.
func (r *registrar) get(id string) *Processor {
	v, ok := r.procs.Load(id)
	if !ok {
		return nil
	}
	return v.(*Processor)
}

// count returns the number of registered processors.
func (r *registrar) count() int {
	n := 0
	r.procs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
