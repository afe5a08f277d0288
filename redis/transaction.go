package redis

import (
	"context"

	"github.com/meanphil/redis-client/protocol"
)

// Transaction extends a Pipeline with a pre-appended MULTI and a
// trailing EXEC (spec §4.4 "Transaction"). If watch is non-empty, the
// Session issues WATCH as a synchronous call before build runs.
//
// If build itself fails, the Session issues UNWATCH and re-signals
// build's failure without ever dispatching MULTI/EXEC; if UNWATCH
// itself fails, its error is returned in place of build's. Per spec §9's
// open question, UNWATCH is issued only on this path — not if the
// subsequent EXEC dispatch itself fails — and that asymmetry is
// preserved here deliberately, not an oversight.
//
// The returned value is EXEC's own reply: an array whose elements
// correspond to the queued commands in order, or a null array if a
// watched key changed first.
func (s *Session) Transaction(ctx context.Context, watch []string, build func(p *Pipeline) error) (*protocol.Value, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	if len(watch) > 0 {
		args := append([]string{"WATCH"}, watch...)
		if _, err := s.call(args...); err != nil {
			return nil, err
		}
	}

	p := &Pipeline{}
	p.Command("MULTI")
	if err := build(p); err != nil {
		if _, unwatchErr := s.call("UNWATCH"); unwatchErr != nil {
			return nil, unwatchErr
		}
		return nil, err
	}
	p.Command("EXEC")

	results, err := s.dispatch(p)
	if err != nil {
		return nil, err
	}
	return results[len(results)-1], nil
}
