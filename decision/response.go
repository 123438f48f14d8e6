package decision

// Response layers an outbound notification log over a Decision.
// Notifications are the side-effects a command intends to publish to the
// outside world (via the outbox) once its events are durably committed.
// N is the notification type
type Response[R, E, N, A any] struct {
	Decision      Decision[R, E, A]
	Notifications []N
}

// Of wraps a decision into a response with no notifications
func Of[N, R, E, A any](d Decision[R, E, A]) Response[R, E, N, A] {
	return Response[R, E, N, A]{Decision: d}
}

// Publish appends the given notifications unconditionally
func (r Response[R, E, N, A]) Publish(ns ...N) Response[R, E, N, A] {
	r.Notifications = concat(r.Notifications, ns)

	return r
}

// PublishOnRejection appends the given notifications only when the current
// decision is rejected
func (r Response[R, E, N, A]) PublishOnRejection(ns ...N) Response[R, E, N, A] {
	if !r.Decision.Rejected() {
		return r
	}

	return r.Publish(ns...)
}

// Reset clears the notification log, keeping the decision
func (r Response[R, E, N, A]) Reset() Response[R, E, N, A] {
	r.Notifications = nil

	return r
}

// MapResponse applies f to the result of the underlying decision
func MapResponse[R, E, N, A, B any](r Response[R, E, N, A], f func(A) B) Response[R, E, N, B] {
	return Response[R, E, N, B]{
		Decision:      Map(r.Decision, f),
		Notifications: r.Notifications,
	}
}

// FlatMapResponse sequences two responses:
//   - a rejected left side is returned unchanged, f is not run
//   - otherwise decisions compose with FlatMap; notifications accumulate
//     left-to-right, unless the right side rejects - in that case only the
//     right side's notifications survive (a rejection erases prior
//     side-effect intent within the same transaction)
func FlatMapResponse[R, E, N, A, B any](r Response[R, E, N, A], f func(A) Response[R, E, N, B]) Response[R, E, N, B] {
	if r.Decision.Rejected() {
		return Response[R, E, N, B]{
			Decision:      Decision[R, E, B]{rejections: r.Decision.rejections},
			Notifications: r.Notifications,
		}
	}

	next := f(r.Decision.Result())

	d := FlatMap(r.Decision, func(A) Decision[R, E, B] {
		return next.Decision
	})

	if next.Decision.Rejected() {
		return Response[R, E, N, B]{
			Decision:      d,
			Notifications: next.Notifications,
		}
	}

	return Response[R, E, N, B]{
		Decision:      d,
		Notifications: concat(r.Notifications, next.Notifications),
	}
}

// ThenResponse sequences two responses discarding the first result
func ThenResponse[R, E, N, A, B any](r Response[R, E, N, A], next Response[R, E, N, B]) Response[R, E, N, B] {
	return FlatMapResponse(r, func(A) Response[R, E, N, B] {
		return next
	})
}
