package redis_test

import (
	"bufio"
	"io"
	"net"

	"github.com/meanphil/redis-client/protocol"
)

// connReader adapts a bufio.Reader to protocol.FrameReader so the
// fake server can consume one command at a time with the same codec
// the Session uses, instead of hand-parsing RESP arrays.
type connReader struct{ r *bufio.Reader }

func (c connReader) ReadLine() ([]byte, error) {
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 {
		return nil, io.ErrUnexpectedEOF
	}
	return line[:len(line)-2], nil
}

func (c connReader) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// fakeServer accepts one connection and, for each scripted reply,
// decodes the next command the client sends before writing that
// reply's raw bytes back. It lets the redis package specs drive a
// real Session against canned wire responses without a real server.
type fakeServer struct {
	ln net.Listener
}

func newFakeServer(replies ...string) (*fakeServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	fs := &fakeServer{ln: ln}
	go fs.serve(replies)
	return fs, nil
}

func (fs *fakeServer) serve(replies []string) {
	conn, err := fs.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := connReader{r: bufio.NewReader(conn)}
	dec := protocol.NewDecoder()
	for _, reply := range replies {
		if _, err := dec.Decode(r); err != nil {
			return
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

func (fs *fakeServer) Addr() string { return fs.ln.Addr().String() }
func (fs *fakeServer) Close() error { return fs.ln.Close() }
