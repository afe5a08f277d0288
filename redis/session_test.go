package redis_test

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"

	. "github.com/bsm/ginkgo/v2"
	. "github.com/bsm/gomega"

	"github.com/meanphil/redis-client/errs"
	"github.com/meanphil/redis-client/protocol"
	"github.com/meanphil/redis-client/redis"
)

func optionsFor(fs *fakeServer) redis.Options {
	host, port, err := net.SplitHostPort(fs.Addr())
	Expect(err).NotTo(HaveOccurred())
	p, err := strconv.Atoi(port)
	Expect(err).NotTo(HaveOccurred())
	return redis.Options{Host: host, Port: p, Timeout: time.Second}
}

var _ = Describe("Session", func() {
	ctx := context.Background()

	It("PING: result equals the string PONG", func() {
		fs, err := newFakeServer("+OK\r\n", "+PONG\r\n")
		Expect(err).NotTo(HaveOccurred())
		defer fs.Close()

		s := redis.New(optionsFor(fs))
		defer s.Close()

		v, err := s.Call(ctx, "PING")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Str).To(Equal("PONG"))
	})

	It("GET missing: result is null, distinguished from empty string", func() {
		fs, err := newFakeServer("+OK\r\n", "$-1\r\n")
		Expect(err).NotTo(HaveOccurred())
		defer fs.Close()

		s := redis.New(optionsFor(fs))
		defer s.Close()

		v, err := s.Call(ctx, "GET", "nope")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.IsNull()).To(BeTrue())
		Expect(v.Str).To(Equal(""))
	})

	It("raises a CommandError with the server's code prefix on a single call", func() {
		fs, err := newFakeServer("+OK\r\n", "-WRONGTYPE Operation against a wrong kind of value\r\n")
		Expect(err).NotTo(HaveOccurred())
		defer fs.Close()

		s := redis.New(optionsFor(fs))
		defer s.Close()

		_, err = s.Call(ctx, "INCR", "k")
		var ce *errs.CommandError
		Expect(err).To(BeAssignableToTypeOf(ce))
		Expect(err.(*errs.CommandError).CodePrefix).To(Equal("WRONGTYPE"))
	})

	It("pipeline with a mid-sequence error raises the first error after decoding every slot", func() {
		fs, err := newFakeServer(
			"+OK\r\n", // HELLO
			"+OK\r\n", ":2\r\n", "-WRONGTYPE Operation against a wrong kind of value\r\n",
		)
		Expect(err).NotTo(HaveOccurred())
		defer fs.Close()

		s := redis.New(optionsFor(fs))
		defer s.Close()

		_, err = s.Pipeline(ctx, func(p *redis.Pipeline) {
			p.Command("SET", "k", "1")
			p.Command("INCR", "k")
			p.Command("LPUSH", "k", "x")
		})

		var ce *errs.CommandError
		Expect(err).To(BeAssignableToTypeOf(ce))
		Expect(err.(*errs.CommandError).CodePrefix).To(Equal("WRONGTYPE"))
	})

	It("CommandWithTimeout honors a read-timeout override at one slot's granularity", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			r := connReader{r: bufio.NewReader(conn)}
			dec := protocol.NewDecoder()
			dec.Decode(r) // HELLO
			conn.Write([]byte("+OK\r\n"))
			dec.Decode(r) // GET a (slow slot)
			dec.Decode(r) // GET b (fast slot)
			time.Sleep(50 * time.Millisecond)
			conn.Write([]byte("$1\r\nA\r\n$1\r\nB\r\n"))
		}()

		host, port, err := net.SplitHostPort(ln.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		p, _ := strconv.Atoi(port)

		s := redis.New(redis.Options{Host: host, Port: p, Timeout: time.Second})
		defer s.Close()

		short := 5 * time.Millisecond
		_, err = s.Pipeline(context.Background(), func(p *redis.Pipeline) {
			p.CommandWithTimeout(&short, "GET", "a")
			p.Command("GET", "b")
		})
		var rt *errs.ReadTimeoutError
		Expect(err).To(BeAssignableToTypeOf(rt))
	})

	It("MULTI/EXEC returns EXEC's own reply", func() {
		fs, err := newFakeServer(
			"+OK\r\n", // HELLO
			"+OK\r\n", "+QUEUED\r\n", "+QUEUED\r\n",
			"*2\r\n+OK\r\n:2\r\n",
		)
		Expect(err).NotTo(HaveOccurred())
		defer fs.Close()

		s := redis.New(optionsFor(fs))
		defer s.Close()

		v, err := s.Transaction(ctx, nil, func(p *redis.Pipeline) error {
			p.Command("SET", "a", "1")
			p.Command("INCR", "a")
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Kind).To(Equal(protocol.Array))
		Expect(v.Array).To(HaveLen(2))
		Expect(v.Array[0].Str).To(Equal("OK"))
		Expect(v.Array[1].Int).To(Equal(int64(2)))
	})

	It("raises an authentication sub-kind of CommandError on a bad handshake password", func() {
		fs, err := newFakeServer("-WRONGPASS invalid username-password pair\r\n")
		Expect(err).NotTo(HaveOccurred())
		defer fs.Close()

		opts := optionsFor(fs)
		opts.Password = "wrong"
		s := redis.New(opts)
		defer s.Close()

		_, err = s.Call(ctx, "PING")
		ce, ok := errs.AsCommandError(err)
		Expect(ok).To(BeTrue())
		Expect(ce.IsAuthentication()).To(BeTrue())
	})

	It("scans every element exactly once and stops on a textual \"0\" cursor", func() {
		fs, err := newFakeServer(
			"+OK\r\n", // HELLO
			"*2\r\n$2\r\n42\r\n*2\r\n$1\r\na\r\n$1\r\nb\r\n",
			"*2\r\n$1\r\n0\r\n*1\r\n$1\r\nc\r\n",
		)
		Expect(err).NotTo(HaveOccurred())
		defer fs.Close()

		s := redis.New(optionsFor(fs))
		defer s.Close()

		var got []string
		for v, err := range s.ScanEach(ctx, "SCAN") {
			Expect(err).NotTo(HaveOccurred())
			got = append(got, v.Str)
		}
		Expect(got).To(Equal([]string{"a", "b", "c"}))
	})
})

var _ = Describe("PubSub", func() {
	It("NextEvent returns nil on an idle channel without closing the stream", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			r := connReader{r: bufio.NewReader(conn)}
			dec := protocol.NewDecoder()
			dec.Decode(r) // HELLO
			conn.Write([]byte("+OK\r\n"))
			dec.Decode(r) // SUBSCRIBE
			conn.Write([]byte(">3\r\n$9\r\nsubscribe\r\n$3\r\nfoo\r\n:1\r\n"))
			time.Sleep(100 * time.Millisecond)
			conn.Write([]byte(">3\r\n$7\r\nmessage\r\n$3\r\nfoo\r\n$2\r\nhi\r\n"))
		}()

		host, port, err := net.SplitHostPort(ln.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		p, _ := strconv.Atoi(port)

		s := redis.New(redis.Options{Host: host, Port: p, Timeout: time.Second})
		_, err = s.Call(context.Background(), "SUBSCRIBE", "foo")
		Expect(err).NotTo(HaveOccurred())

		ps := s.PubSub()
		defer ps.Close()

		short := 10 * time.Millisecond
		v, err := ps.NextEvent(&short)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeNil())

		v, err = ps.NextEvent(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Array[0].Str).To(Equal("message"))
	})
})
