// Package redis implements the session state machine that drives a
// BufferedStream through the handshake, single-call dispatch,
// pipelining, transactions, cursor scans, and pub/sub handoff
// described in spec §4.4.
package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meanphil/redis-client/errs"
	"github.com/meanphil/redis-client/protocol"
	"github.com/meanphil/redis-client/stream"
	"github.com/meanphil/redis-client/transport"
)

// state is the Session's position in the state machine from spec
// §4.4: fresh (no stream) -> connected (handshake complete) ->
// faulted (any transport-level failure) -> handed-off (stream
// transferred to a PubSub handle).
type state int

const (
	stateFresh state = iota
	stateConnected
	stateFaulted
	stateHandedOff
)

// Session is not internally synchronized: one logical caller at a
// time, per spec §5. Wrapping it behind a connection pool or a mutex
// is the collaborator's responsibility.
type Session struct {
	opts   Options
	log    *slog.Logger
	decode *protocol.Decoder

	state  state
	stream *stream.Stream
}

// New returns a Session parameterized by opts. No network activity
// happens until the first call.
func New(opts Options) *Session {
	return &Session{
		opts:   opts.Default(),
		log:    slog.With("comp", "session"),
		decode: protocol.NewDecoder(),
		state:  stateFresh,
	}
}

// Call serializes one command, writes, flushes, and decodes one
// reply. A decoded command-error is raised, typed by its code prefix
// (spec §4.4 "Single call").
func (s *Session) Call(ctx context.Context, args ...string) (*protocol.Value, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return s.call(args...)
}

// BlockingCall is like Call, but bounds the read with timeout. A
// read-timeout is translated to a nil result rather than surfaced,
// the documented behavior for commands that block server-side (spec
// §4.4 "Blocking call"): the client treats "no data yet" as an
// ordinary outcome, not a failure.
//
// A nil timeout blocks indefinitely; spec §9's open question about
// whether a read-timeout here should instead close the stream is left
// as the source documents it — unresolved, not silently changed.
func (s *Session) BlockingCall(ctx context.Context, timeout *time.Duration, args ...string) (*protocol.Value, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	buf := protocol.EncodeStrings(nil, args...)
	if _, err := s.stream.Write(buf); err != nil {
		return nil, s.fault(err)
	}
	if err := s.stream.Flush(); err != nil {
		return nil, s.fault(err)
	}

	var v *protocol.Value
	err := s.stream.WithTimeout(timeout, func() error {
		var decodeErr error
		v, decodeErr = s.decode.Decode(s.stream)
		return decodeErr
	})
	s.log.Log(ctx, traceLevel, "blocking_call", "args", args, "reply", v, "err", err)
	if err != nil {
		var rt *errs.ReadTimeoutError
		if errors.As(err, &rt) {
			// Inside this with_timeout scope the server may still
			// produce the pending reply, so the stream is left open.
			return nil, nil
		}
		return nil, s.fault(err)
	}
	if v.IsError() {
		return nil, raiseCommandError(v)
	}
	return v, nil
}

// call is the unguarded core of Call, used directly by pipeline and
// transaction dispatch once the Session is already connected.
func (s *Session) call(args ...string) (*protocol.Value, error) {
	buf := protocol.EncodeStrings(nil, args...)
	if _, err := s.stream.Write(buf); err != nil {
		return nil, s.fault(err)
	}
	if err := s.stream.Flush(); err != nil {
		return nil, s.fault(err)
	}
	v, err := s.decode.Decode(s.stream)
	s.log.Log(context.Background(), traceLevel, "call", "args", args, "reply", v, "err", err)
	if err != nil {
		return nil, s.fault(err)
	}
	if v.IsError() {
		return nil, raiseCommandError(v)
	}
	return v, nil
}

// ensureConnected lazily performs the fresh->connected transition,
// opening a transport and running the HELLO/SELECT handshake. It is a
// no-op once connected, and re-runs the whole handshake after a
// faulted or handed-off transition, on a fresh transport.
func (s *Session) ensureConnected(ctx context.Context) error {
	switch s.state {
	case stateConnected:
		return nil
	case stateFresh, stateFaulted, stateHandedOff:
		return s.connect(ctx)
	default:
		return fmt.Errorf("redis: unreachable session state %d", s.state)
	}
}

func (s *Session) connect(ctx context.Context) error {
	tr, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.stream = stream.New(tr, s.opts.ReadTimeout, s.opts.WriteTimeout)
	s.state = stateConnected

	if err := s.handshake(); err != nil {
		s.closeStream()
		return err
	}
	return nil
}

func (s *Session) dial(ctx context.Context) (transport.Transport, error) {
	if s.opts.Path != "" {
		return transport.DialUnix(ctx, s.opts.Path)
	}
	if s.opts.SSL {
		cfg, err := s.tlsConfig()
		if err != nil {
			return nil, err
		}
		return transport.DialTLS(ctx, s.opts.Addr(), s.opts.ConnectTimeout, cfg)
	}
	return transport.DialTCP(ctx, s.opts.Addr(), s.opts.ConnectTimeout)
}

func (s *Session) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         s.opts.SSLParams.ServerName,
		InsecureSkipVerify: s.opts.SSLParams.InsecureSkipVerify,
	}
	if len(s.opts.SSLParams.RootCAs) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(s.opts.SSLParams.RootCAs) {
			return nil, fmt.Errorf("redis: no valid certificates in ssl_params.RootCAs")
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// handshake issues HELLO 3 (with AUTH if a password is configured)
// and, if a database index is configured, a following SELECT (spec
// §4.4 "Handshake"). A command-error here is surfaced with its
// authentication/permission sub-kind intact.
func (s *Session) handshake() error {
	hello := []string{"HELLO", "3"}
	if s.opts.Password != "" {
		hello = append(hello, "AUTH", s.opts.Username, s.opts.Password)
	}
	if _, err := s.call(hello...); err != nil {
		return err
	}

	if s.opts.DB != 0 {
		if _, err := s.call("SELECT", fmt.Sprint(s.opts.DB)); err != nil {
			return err
		}
	}
	s.log.Debug("handshake complete", "addr", s.opts.Addr(), "db", s.opts.DB)
	return nil
}

// fault transitions the Session to faulted and closes its stream for
// every failure path that reaches it: connection-error, connect-
// timeout, and write-timeout close unconditionally per spec §7, and so
// does a read-timeout. BlockingCall intercepts the read-timeout of its
// own with_timeout scope before it gets this far, so that one leaves
// the stream open; a read-timeout inside a pipeline slot's
// CommandWithTimeout scope is not intercepted, reaches here, and
// closes the stream like an unscoped one.
func (s *Session) fault(err error) error {
	s.closeStream()
	return err
}

func (s *Session) closeStream() {
	if s.stream != nil {
		s.stream.Close()
	}
	s.stream = nil
	s.state = stateFaulted
}

// Close releases the Session's transport, if any.
func (s *Session) Close() error {
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	s.state = stateFresh
	return err
}

func raiseCommandError(v *protocol.Value) error {
	return &errs.CommandError{CodePrefix: v.CodePrefix, Message: v.Str}
}
