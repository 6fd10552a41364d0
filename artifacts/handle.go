package artifacts

import "sync/atomic"

// Handle holds the pair currently serving predictions. Readers snapshot it
// with a single load and keep using that snapshot for the whole request;
// training installs a complete new pair with a single swap, so no reader
// can observe a half-updated detector/scaler combination.
type Handle struct {
	ptr atomic.Pointer[Pair]
}

func NewHandle() *Handle {
	return &Handle{}
}

// Current returns the active pair, or nil when nothing is trained yet.
func (h *Handle) Current() *Pair {
	return h.ptr.Load()
}

// Swap installs p as the active pair.
func (h *Handle) Swap(p *Pair) {
	h.ptr.Store(p)
}
