package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meanphil/redis-client/errs"
	"github.com/meanphil/redis-client/protocol"
	"github.com/meanphil/redis-client/stream"
)

// PubSub transfers ownership of a Session's stream (spec §4.4 "Pub/Sub
// handoff"). Once transferred, the originating Session holds no
// reference to the stream and lazily opens a fresh transport on its
// next use — the move is expressed by nulling the Session's field in
// the same call that constructs the PubSub, not by sharing a pointer.
type PubSub struct {
	stream *stream.Stream
	decode *protocol.Decoder
	log    *slog.Logger
}

// PubSub converts s into a publish/subscribe handle, moving ownership
// of its current stream. s reverts to behaving as if fresh.
func (s *Session) PubSub() *PubSub {
	ps := &PubSub{
		stream: s.stream,
		decode: s.decode,
		log:    slog.With("comp", "pubsub"),
	}
	s.stream = nil
	s.state = stateHandedOff
	return ps
}

// Call writes and flushes args without decoding a reply: subscription
// commands acknowledge asynchronously as ordinary push events, so
// there is nothing to correlate a synchronous reply with.
func (ps *PubSub) Call(args ...string) error {
	buf := protocol.EncodeStrings(nil, args...)
	_, err := ps.stream.Write(buf)
	if err == nil {
		err = ps.stream.Flush()
	}
	ps.log.Log(context.Background(), traceLevel, "pubsub call", "args", args, "err", err)
	return err
}

// NextEvent decodes one value from the stream, honoring a scoped read
// timeout if timeout is non-nil. A nil timeout blocks indefinitely. A
// timeout returns (nil, nil) rather than signaling — spec §4.4: "a
// timeout returns null rather than signaling" — and, because the
// with_timeout scope intercepts it, does not close the stream.
func (ps *PubSub) NextEvent(timeout *time.Duration) (*protocol.Value, error) {
	var v *protocol.Value
	err := ps.stream.WithTimeout(timeout, func() error {
		var decodeErr error
		v, decodeErr = ps.decode.Decode(ps.stream)
		return decodeErr
	})
	ps.log.Log(context.Background(), traceLevel, "pubsub next_event", "timeout", timeout, "reply", v, "err", err)
	if err != nil {
		var rt *errs.ReadTimeoutError
		if errors.As(err, &rt) {
			return nil, nil
		}
		ps.stream.Close()
		return nil, err
	}
	return v, nil
}

// Close releases the handle's stream.
func (ps *PubSub) Close() error {
	return ps.stream.Close()
}
