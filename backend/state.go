package backend

import (
	"github.com/anovik/eventflow"
)

// AggregateState is the materialised state of a stream.
// While folding succeeds the state is valid at Version. If folding an event
// produces rejections the state becomes conflicted - State freezes at the
// last good value, OnEvent points at the offending event and Errors carries
// the fold rejections. Once conflicted, no later event of the stream can
// make the state valid again
type AggregateState[S, E, R any] struct {
	State   S
	Version int64

	OnEvent *eventflow.StoredEvent
	Errors  []R
}

// Conflicted reports whether folding hit an inapplicable event
func (st AggregateState[S, E, R]) Conflicted() bool { return len(st.Errors) > 0 }
