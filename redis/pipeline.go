package redis

import (
	"context"
	"time"

	"github.com/meanphil/redis-client/protocol"
)

// Pipeline accumulates encoded commands and their count; the Session
// writes the whole buffer in one flush, then decodes exactly that
// many replies in order (spec §4.4 "Pipeline").
type Pipeline struct {
	buf   []byte
	count int

	// overrides holds a per-slot read-timeout override, keyed by slot
	// index, for slots added via CommandWithTimeout. A missing entry
	// means the slot decodes under the Stream's own configured
	// deadline; a present entry with a nil duration means "block
	// indefinitely" for that slot, per spec §4.2's with_timeout
	// semantics — the two are not the same thing, hence the map
	// rather than a plain slice of *time.Duration.
	overrides map[int]*time.Duration
}

// Command appends one command to the pipeline, decoded under the
// Session's own configured read deadline.
func (p *Pipeline) Command(args ...string) *Pipeline {
	p.buf = protocol.EncodeStrings(p.buf, args...)
	p.count++
	return p
}

// CommandWithTimeout appends one command whose reply is decoded under
// a scoped read-timeout override, honored at this slot's granularity
// (spec §4.4: "Per-command read-timeout overrides are honored at the
// slot granularity"). A nil timeout blocks indefinitely for this slot
// alone; every other slot is unaffected.
func (p *Pipeline) CommandWithTimeout(timeout *time.Duration, args ...string) *Pipeline {
	p.buf = protocol.EncodeStrings(p.buf, args...)
	if p.overrides == nil {
		p.overrides = make(map[int]*time.Duration)
	}
	p.overrides[p.count] = timeout
	p.count++
	return p
}

// Pipeline dispatches p: writes its entire buffer, decodes p.count
// replies in order. If any slot holds a command-error, the first such
// error (lowest index) is raised; otherwise the ordered results are
// returned, per spec §4.4 and the "Pipeline error surfacing" testable
// property in §8.
func (s *Session) Pipeline(ctx context.Context, build func(p *Pipeline)) ([]*protocol.Value, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	p := &Pipeline{}
	build(p)
	return s.dispatch(p)
}

// dispatch writes p's buffer and decodes its replies. It is shared by
// Pipeline and Transaction, which differ only in how the buffer is
// built (Transaction brackets it with MULTI/EXEC).
func (s *Session) dispatch(p *Pipeline) ([]*protocol.Value, error) {
	if p.count == 0 {
		return nil, nil
	}

	if _, err := s.stream.Write(p.buf); err != nil {
		return nil, s.fault(err)
	}
	if err := s.stream.Flush(); err != nil {
		return nil, s.fault(err)
	}

	results := make([]*protocol.Value, p.count)
	var firstErr error
	for i := 0; i < p.count; i++ {
		v, err := s.decodeSlot(p, i)
		if err != nil {
			return nil, s.fault(err)
		}
		results[i] = v
		if v.IsError() && firstErr == nil {
			firstErr = raiseCommandError(v)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// decodeSlot decodes the i-th reply, honoring that slot's timeout
// override, if any.
func (s *Session) decodeSlot(p *Pipeline, i int) (*protocol.Value, error) {
	timeout, overridden := p.overrides[i]
	if !overridden {
		v, err := s.decode.Decode(s.stream)
		s.log.Log(context.Background(), traceLevel, "pipeline slot", "index", i, "reply", v, "err", err)
		return v, err
	}

	var v *protocol.Value
	err := s.stream.WithTimeout(timeout, func() error {
		var decodeErr error
		v, decodeErr = s.decode.Decode(s.stream)
		return decodeErr
	})
	s.log.Log(context.Background(), traceLevel, "pipeline slot", "index", i, "timeout", timeout, "reply", v, "err", err)
	return v, err
}
