package triage

import "context"

// Outcome is the tagged result of a Retry run. Exactly one of Value or Err is
// meaningful: Err is nil on success.
type Outcome[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// OK reports whether the run succeeded.
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Retry calls do up to attempts times. After each failure, next derives the
// input for the following attempt from the current input and the error.
// A done context ends the loop early with the context error.
func Retry[In, Out any](
	ctx context.Context,
	attempts int,
	input In,
	do func(context.Context, In) (Out, error),
	next func(In, error) In,
) Outcome[Out] {
	var zero Out
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return Outcome[Out]{Value: zero, Err: err, Attempts: i - 1}
		}

		out, err := do(ctx, input)
		if err == nil {
			return Outcome[Out]{Value: out, Attempts: i}
		}
		last = err
		if i < attempts && next != nil {
			input = next(input, err)
		}
	}
	return Outcome[Out]{Value: zero, Err: last, Attempts: attempts}
}
