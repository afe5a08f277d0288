// Package transport provides the raw byte-stream abstraction a
// session's BufferedStream sits on top of: TCP, Unix-domain sockets,
// and TLS layered over either, each with a bounded connect deadline.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"

	"github.com/meanphil/redis-client/errs"
)

// Transport is a full-duplex byte stream with independently settable
// read and write deadlines. A net.Conn already satisfies this
// directly; that is the only implementation in this package other
// than the TLS wrapper, which is itself a net.Conn.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// noDelaySetter is implemented by transports layered directly over
// TCP. Disabling Nagle's algorithm matters here specifically because
// pipelines and transactions otherwise suffer an extra round trip
// (spec §4.1); it is applied once, right after connecting.
type noDelaySetter interface {
	SetNoDelay(bool) error
}

// SetNoDelay disables Nagle's algorithm on t if the underlying
// transport supports it (TCP does; Unix-domain sockets don't).
func SetNoDelay(t Transport, enabled bool) error {
	if nd, ok := t.(noDelaySetter); ok {
		return nd.SetNoDelay(enabled)
	}
	return nil
}

// DialTCP opens a TCP transport, failing with a ConnectTimeoutError if
// connectTimeout elapses first, and disables Nagle coalescing on
// success.
func DialTCP(ctx context.Context, addr string, connectTimeout time.Duration) (Transport, error) {
	conn, err := dialTCPConn(ctx, addr, connectTimeout)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// dialTCPConn is the net.Conn-typed core of DialTCP, kept separate so
// DialTLS can layer tls.Client over the same concrete connection
// without downcasting out of the Transport interface.
func dialTCPConn(ctx context.Context, addr string, connectTimeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(err)
	}
	if err := SetNoDelay(conn, true); err != nil {
		conn.Close()
		return nil, &errs.ConnectionError{Err: err}
	}
	return conn, nil
}

// DialUnix opens a Unix-domain socket transport. It has no connect
// deadline of its own — the socket either exists and accepts
// immediately, or the dial fails — per spec §4.1 "Unix-domain
// transports open unconditionally".
func DialUnix(ctx context.Context, path string) (Transport, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, &errs.ConnectionError{Err: err}
	}
	return conn, nil
}

// DialTLS opens a TCP transport and drives a TLS handshake to
// completion over it. The TCP connect and the handshake are each
// bounded by connectTimeout on their own, so the whole exchange can
// take up to twice that. Server name indication is set to the dialed host
// unless cfg already specifies one.
//
// The spec describes the handshake as an explicit non-blocking loop
// that alternates between a handshake step and waiting on the
// descriptor for readability or writability. tls.Conn.HandshakeContext
// is the idiomatic Go expression of exactly that loop: it performs the
// same alternation internally and honors ctx cancellation on every
// wait, so there is no separate poll loop to write by hand.
func DialTLS(ctx context.Context, addr string, connectTimeout time.Duration, cfg *tls.Config) (Transport, error) {
	raw, err := dialTCPConn(ctx, addr, connectTimeout)
	if err != nil {
		return nil, err
	}

	conf := cfg.Clone()
	if conf == nil {
		conf = &tls.Config{}
	}
	if conf.ServerName == "" {
		if host, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
			conf.ServerName = host
		} else {
			conf.ServerName = addr
		}
	}

	hctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	tlsConn := tls.Client(raw, conf)
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		raw.Close()
		if hctx.Err() != nil {
			return nil, &errs.ConnectTimeoutError{Err: err}
		}
		return nil, &errs.ConnectionError{Err: err}
	}
	return tlsConn, nil
}

func classifyDialError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &errs.ConnectTimeoutError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.ConnectTimeoutError{Err: err}
	}
	return &errs.ConnectionError{Err: err}
}
