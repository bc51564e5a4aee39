package alloc

import "unsafe"

// GlobalHook is the thin seam a caller uses to park one Dispatcher as
// process-wide state. Wiring that state into an actual language-level
// global allocation hook (a custom runtime allocator, a linked C malloc
// override, or similar) is the caller's job, not this package's; this
// type only satisfies the "usable as global state" half of the façade's
// contract, not the "safe to share across threads" half. A caller that
// installs a GlobalHook behind a real global allocator hook is
// responsible for its own synchronization; GlobalHook itself adds none.
type GlobalHook struct {
	d *Dispatcher
}

// SetGlobalHook installs d as the hook's backing dispatcher. Calling it a
// second time is a precondition violation: the hook is meant to be
// installed once, during process startup, not swapped at runtime.
func (h *GlobalHook) SetGlobalHook(d *Dispatcher) {
	debugAssert(h.d == nil, "SetGlobalHook: hook already installed")
	h.d = d
}

// Allocate delegates to the installed Dispatcher. Calling it before
// SetGlobalHook is a precondition violation.
func (h *GlobalHook) Allocate(layout Layout) (unsafe.Pointer, error) {
	debugAssert(h.d != nil, "Allocate: hook has no installed dispatcher")
	return h.d.Allocate(layout)
}

// Deallocate delegates to the installed Dispatcher.
func (h *GlobalHook) Deallocate(ptr unsafe.Pointer, layout Layout) {
	debugAssert(h.d != nil, "Deallocate: hook has no installed dispatcher")
	h.d.Deallocate(ptr, layout)
}

var _ Allocator = (*GlobalHook)(nil)
