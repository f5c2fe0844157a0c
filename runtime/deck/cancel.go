package deck

import "sync/atomic"

// CancelToken requests a cooperative stop of a deck run. The orchestrator
// inspects it only between slides, so a worker that has already started is
// allowed to finish. All methods are safe on a nil receiver.
type CancelToken struct {
	canceled atomic.Bool
}

// NewCancelToken returns a token in the not-canceled state.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel flips the token. It is idempotent and safe to call from any
// goroutine.
func (t *CancelToken) Cancel() {
	if t != nil {
		t.canceled.Store(true)
	}
}

// Canceled reports whether Cancel has been called.
func (t *CancelToken) Canceled() bool {
	return t != nil && t.canceled.Load()
}
