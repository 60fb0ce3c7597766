package live

import "context"

// Map applies fn to every value received from in. The returned channel is
// closed when in is closed or ctx is done.
func Map[A, B any](ctx context.Context, in <-chan A, fn func(A) B) <-chan B {
	out := make(chan B, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case a, ok := <-in:
				if !ok {
					return
				}
				Offer(out, fn(a))
			}
		}
	}()
	return out
}

// Combine2 re-runs fn whenever either input produces a value, once both have
// produced at least one. Bursts may be coalesced; the result for the latest
// pair of inputs is always delivered. The returned channel is closed when
// either input is closed or ctx is done.
func Combine2[A, B, R any](ctx context.Context, a <-chan A, b <-chan B, fn func(A, B) R) <-chan R {
	out := make(chan R, 1)
	go func() {
		defer close(out)
		var (
			lastA A
			lastB B
			haveA bool
			haveB bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-a:
				if !ok {
					return
				}
				lastA, haveA = v, true
			case v, ok := <-b:
				if !ok {
					return
				}
				lastB, haveB = v, true
			}
			if haveA && haveB {
				Offer(out, fn(lastA, lastB))
			}
		}
	}()
	return out
}
