package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"golang.org/x/sync/errgroup"

	"github.com/meanphil/redis-client/redis"
)

// config mirrors server/config.go's shape: a flat struct of arg/env/
// default tags parsed once at startup.
type config struct {
	Host     string `arg:"--host" env:"RESCLI_HOST" help:"server host" default:"localhost"`
	Port     int    `arg:"--port" env:"RESCLI_PORT" help:"server port" default:"6379"`
	Path     string `arg:"--path" env:"RESCLI_PATH" help:"unix socket path, overrides host/port"`
	Username string `arg:"--username" env:"RESCLI_USERNAME" default:"default"`
	Password string `arg:"--password" env:"RESCLI_PASSWORD"`
	DB       int    `arg:"--db" env:"RESCLI_DB"`
	Timeout  time.Duration `arg:"--timeout" env:"RESCLI_TIMEOUT" default:"3s"`

	Channel   string        `arg:"--channel" help:"pub/sub channel to subscribe to, if any"`
	Heartbeat time.Duration `arg:"--heartbeat" help:"PING interval" default:"5s"`
}

func (c config) options() redis.Options {
	return redis.Options{
		Host:     c.Host,
		Port:     c.Port,
		Path:     c.Path,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
		Timeout:  c.Timeout,
	}
}

func main() {
	var c config
	arg.MustParse(&c)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, c); err != nil {
		slog.Error("rescli: exiting", "err", err)
		os.Exit(1)
	}
}

// run drives a Session in a heartbeat loop that PINGs on an interval,
// and, if --channel is set, a concurrent pub/sub listener fed by a
// second Session handed off to PubSub. Both loops run under the same
// errgroup.Group so either's failure cancels the other, mirroring
// anarchoredis/txn.go's use of errgroup for its concurrent
// upstream/replication loops.
func run(ctx context.Context, c config) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return heartbeat(ctx, c)
	})

	if c.Channel != "" {
		g.Go(func() error {
			return listen(ctx, c)
		})
	}

	return g.Wait()
}

func heartbeat(ctx context.Context, c config) error {
	s := redis.New(c.options())
	defer s.Close()

	ticker := time.NewTicker(c.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			v, err := s.Call(ctx, "PING")
			if err != nil {
				return fmt.Errorf("rescli: heartbeat: %w", err)
			}
			slog.Debug("heartbeat", "reply", v.String())
		}
	}
}

func listen(ctx context.Context, c config) error {
	s := redis.New(c.options())
	if _, err := s.Call(ctx, "SUBSCRIBE", c.Channel); err != nil {
		return fmt.Errorf("rescli: subscribe: %w", err)
	}
	ps := s.PubSub()
	defer ps.Close()

	poll := 500 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v, err := ps.NextEvent(&poll)
		if err != nil {
			return fmt.Errorf("rescli: pubsub: %w", err)
		}
		if v == nil {
			continue
		}
		fmt.Println(v.String())
	}
}
