// Package decision provides the pure algebra used to express command
// handling outcomes. A Decision is three-valued - it either accepts a
// command by emitting events, rejects it with reasons, or stays indecisive
// (no events, no rejection). Decisions compose monadically which is what
// lets validate-only logic chain with event-emitting logic without either
// side pretending to be the other.
//
// Since Go methods cannot introduce type parameters, the combinators that
// change the result type (Map, FlatMap, TailRec) are package functions.
package decision

// Decision represents the outcome of running a command against state.
// R is the rejection reason type, E the event type and A the result type.
// The zero value is Indecisive with a zero result
type Decision[R, E, A any] struct {
	rejections []R
	events     []E
	result     A
}

// Pure returns an indecisive decision carrying the given result
func Pure[R, E, A any](a A) Decision[R, E, A] {
	return Decision[R, E, A]{result: a}
}

// Accept returns a decision that accepts by emitting the given events,
// in order. At least one event is required
func Accept[R, E any](first E, rest ...E) Decision[R, E, struct{}] {
	return AcceptReturn[R](struct{}{}, first, rest...)
}

// AcceptReturn is Accept with a result value attached
func AcceptReturn[R, E, A any](a A, first E, rest ...E) Decision[R, E, A] {
	return Decision[R, E, A]{
		events: append([]E{first}, rest...),
		result: a,
	}
}

// Reject returns a decision that rejects with the given reasons.
// At least one reason is required
func Reject[E, A, R any](first R, rest ...R) Decision[R, E, A] {
	return Decision[R, E, A]{
		rejections: append([]R{first}, rest...),
	}
}

// Rejected reports whether the decision is a rejection
func (d Decision[R, E, A]) Rejected() bool { return len(d.rejections) > 0 }

// Accepted reports whether the decision emits at least one event
func (d Decision[R, E, A]) Accepted() bool { return !d.Rejected() && len(d.events) > 0 }

// Indecisive reports whether the decision neither emits events nor rejects
func (d Decision[R, E, A]) Indecisive() bool { return !d.Rejected() && len(d.events) == 0 }

// Events returns the emitted events, in emission order.
// Empty for rejected and indecisive decisions
func (d Decision[R, E, A]) Events() []E {
	if d.Rejected() {
		return nil
	}

	return d.events
}

// Rejections returns the rejection reasons, empty unless rejected
func (d Decision[R, E, A]) Rejections() []R { return d.rejections }

// Result returns the carried result. For rejected decisions it is the
// zero value of A
func (d Decision[R, E, A]) Result() A {
	if d.Rejected() {
		var zero A
		return zero
	}

	return d.result
}

// Map applies f to the result, preserving events and rejections
func Map[R, E, A, B any](d Decision[R, E, A], f func(A) B) Decision[R, E, B] {
	if d.Rejected() {
		return Decision[R, E, B]{rejections: d.rejections}
	}

	return Decision[R, E, B]{
		events: d.events,
		result: f(d.result),
	}
}

// FlatMap sequences two decisions:
//   - a rejected d short-circuits, f is not run (rejection is sticky)
//   - an indecisive d continues with f(result)
//   - an accepted d prepends its events to whatever f(result) accepts;
//     if f(result) rejects, the events of d are discarded - rejection wins
func FlatMap[R, E, A, B any](d Decision[R, E, A], f func(A) Decision[R, E, B]) Decision[R, E, B] {
	if d.Rejected() {
		return Decision[R, E, B]{rejections: d.rejections}
	}

	next := f(d.result)

	if next.Rejected() {
		return next
	}

	return Decision[R, E, B]{
		events: concat(d.events, next.events),
		result: next.result,
	}
}

// Then sequences two decisions discarding the first result
func Then[R, E, A, B any](d Decision[R, E, A], next Decision[R, E, B]) Decision[R, E, B] {
	return FlatMap(d, func(A) Decision[R, E, B] {
		return next
	})
}

// Step is the control value of TailRec - either continue with the next
// accumulator or finish with an output
type Step[A, B any] struct {
	done bool
	next A
	out  B
}

// Continue yields a Step that makes TailRec iterate again
func Continue[B, A any](a A) Step[A, B] {
	return Step[A, B]{next: a}
}

// Done yields a Step that terminates TailRec with the given output
func Done[A, B any](b B) Step[A, B] {
	return Step[A, B]{done: true, out: b}
}

// TailRec repeatedly applies f starting from init until it yields Done,
// accumulating events across iterations with FlatMap semantics. It runs in
// constant stack space regardless of the number of iterations
func TailRec[R, E, A, B any](init A, f func(A) Decision[R, E, Step[A, B]]) Decision[R, E, B] {
	var events []E

	a := init

	for {
		d := f(a)

		if d.Rejected() {
			return Decision[R, E, B]{rejections: d.rejections}
		}

		events = append(events, d.events...)

		if d.result.done {
			return Decision[R, E, B]{
				events: events,
				result: d.result.out,
			}
		}

		a = d.result.next
	}
}

func concat[T any](left, right []T) []T {
	if len(left) == 0 {
		return right
	}

	if len(right) == 0 {
		return left
	}

	out := make([]T, 0, len(left)+len(right))
	out = append(out, left...)

	return append(out, right...)
}
