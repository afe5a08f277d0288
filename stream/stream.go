// Package stream implements the framing-aware, timeout-bounded byte
// stream (spec §4.2, "BufferedStream") that a Session drives a
// transport.Transport through. It wraps a read buffer sized to the
// typical protocol frame over a raw transport, the way
// protocol/conn.go wrapped a net.Conn in a bufio.ReadWriter, and adds
// the per-operation and scoped deadlines the teacher's Conn never
// needed because it never dealt with blocking commands or pub/sub.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/meanphil/redis-client/errs"
	"github.com/meanphil/redis-client/transport"
)

// initialReadBufferSize is the suggested starting size from spec §4.2;
// bufio.Reader grows its internal buffer as needed beyond it.
const initialReadBufferSize = 8 * 1024

// override represents a with_timeout scope: active says whether one is
// currently installed, and duration distinguishes its two special
// values from spec §4.2 — nil means "no deadline, block indefinitely",
// and a pointed-to zero means "do not wait past available data".
type override struct {
	active   bool
	duration *time.Duration
}

// Stream is a BufferedStream: a framing-aware byte stream with
// independent read and write deadlines, and a write buffer that lets a
// pipeline batch many encoded commands behind one Flush.
type Stream struct {
	conn transport.Transport
	r    *bufio.Reader
	w    *bufio.Writer

	readTimeout  time.Duration
	writeTimeout time.Duration
	override     override
}

// New wraps conn in a Stream using readTimeout/writeTimeout as the
// default (unscoped) deadlines for every operation. A zero duration
// means no deadline.
func New(conn transport.Transport, readTimeout, writeTimeout time.Duration) *Stream {
	return &Stream{
		conn:         conn,
		r:            bufio.NewReaderSize(conn, initialReadBufferSize),
		w:            bufio.NewWriter(conn),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Close releases the underlying transport.
func (s *Stream) Close() error {
	return s.conn.Close()
}

// Write appends bytes to the outgoing buffer; bytes that fit in the
// buffer do not reach the transport until Flush is called, while a
// write larger than the buffer's free space is passed through to the
// transport at once. It fails with a WriteTimeoutError if the write
// deadline elapses first.
func (s *Stream) Write(b []byte) (int, error) {
	if err := s.conn.SetWriteDeadline(s.writeDeadline()); err != nil {
		return 0, &errs.ConnectionError{Err: err}
	}
	n, err := s.w.Write(b)
	if err != nil {
		return n, classifyIOError(err, writeSide)
	}
	return n, nil
}

// Flush forces any buffered outgoing bytes to the transport.
func (s *Stream) Flush() error {
	if err := s.conn.SetWriteDeadline(s.writeDeadline()); err != nil {
		return &errs.ConnectionError{Err: err}
	}
	if err := s.w.Flush(); err != nil {
		return classifyIOError(err, writeSide)
	}
	return nil
}

// ReadLine returns the bytes up to (and excluding) the next CRLF,
// consuming the CRLF. It fails with a ReadTimeoutError if the deadline
// elapses before a terminator is found. Reads interrupted by a signal
// are retried transparently by the Go runtime's syscall layer; only a
// genuine deadline expiry surfaces here.
func (s *Stream) ReadLine() ([]byte, error) {
	if err := s.conn.SetReadDeadline(s.readDeadline()); err != nil {
		return nil, &errs.ConnectionError{Err: err}
	}
	line, err := s.r.ReadBytes('\n')
	if err != nil {
		return nil, classifyIOError(err, readSide)
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, &errs.ConnectionError{Err: fmt.Errorf("stream: line missing CRLF: %q", line)}
	}
	return line[:len(line)-2], nil
}

// ReadExact returns exactly n bytes, not including any trailing CRLF
// the caller expects to consume separately with ReadLine.
func (s *Stream) ReadExact(n int) ([]byte, error) {
	if err := s.conn.SetReadDeadline(s.readDeadline()); err != nil {
		return nil, &errs.ConnectionError{Err: err}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, classifyIOError(err, readSide)
	}
	return buf, nil
}

// WithTimeout scopes the read and write deadlines to d for the
// duration of fn, restoring the previous deadlines — whether that was
// the Stream's base configuration or an outer WithTimeout scope — on
// every exit path, including a panic or an error return from fn.
//
// d == nil means "no deadline, block indefinitely"; a pointer to a
// zero duration means "do not wait past available data". Both differ
// from not calling WithTimeout at all, which leaves the Stream's own
// configured deadlines in effect.
func (s *Stream) WithTimeout(d *time.Duration, fn func() error) error {
	prev := s.override
	s.override = override{active: true, duration: d}
	defer func() { s.override = prev }()
	return fn()
}

func (s *Stream) readDeadline() time.Time  { return deadlineFor(s.override, s.readTimeout) }
func (s *Stream) writeDeadline() time.Time { return deadlineFor(s.override, s.writeTimeout) }

func deadlineFor(o override, base time.Duration) time.Time {
	d := base
	if o.active {
		if o.duration == nil {
			return time.Time{}
		}
		d = *o.duration
	}
	if d == 0 {
		if o.active {
			// "do not wait past available data": a deadline already
			// passed forces the next I/O call to return immediately
			// with whatever is already buffered, or a timeout.
			return time.Now()
		}
		return time.Time{}
	}
	return time.Now().Add(d)
}

type ioSide int

const (
	readSide ioSide = iota
	writeSide
)

// classifyIOError maps a transport-level failure to the read-timeout,
// write-timeout, or connection-error kinds in spec §7. A plain EOF
// (the peer closed the connection) is a connection error, not a
// timeout, regardless of which side detected it.
func classifyIOError(err error, side ioSide) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if side == readSide {
			return &errs.ReadTimeoutError{Err: err}
		}
		return &errs.WriteTimeoutError{Err: err}
	}
	return &errs.ConnectionError{Err: err}
}
