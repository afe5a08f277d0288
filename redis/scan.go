package redis

import (
	"context"
	"fmt"
	"iter"

	"github.com/meanphil/redis-client/protocol"
)

// ScanEach issues verb repeatedly with an evolving cursor (starting
// at "0"), yielding each element of every (next-cursor, elements)
// reply until the returned cursor is exactly the string "0" (spec
// §4.4 "Scans"; cursor comparison is textual, not numeric, per §9's
// "cursor comparison" design note — a server returning "00" keeps the
// sequence going).
//
// The sequence is not restartable: each range over it performs a
// fresh server-side iteration starting from cursor "0".
func (s *Session) ScanEach(ctx context.Context, verb string, args ...string) iter.Seq2[*protocol.Value, error] {
	return s.scanEach(ctx, func(cursor string) []string {
		return append([]string{verb, cursor}, args...)
	})
}

// ScanKeyEach is ScanEach for the key-scoped scan commands (HSCAN,
// SSCAN, ZSCAN), whose cursor argument follows the key rather than the
// verb.
func (s *Session) ScanKeyEach(ctx context.Context, verb, key string, args ...string) iter.Seq2[*protocol.Value, error] {
	return s.scanEach(ctx, func(cursor string) []string {
		return append([]string{verb, key, cursor}, args...)
	})
}

func (s *Session) scanEach(ctx context.Context, command func(cursor string) []string) iter.Seq2[*protocol.Value, error] {
	return func(yield func(*protocol.Value, error) bool) {
		cursor := "0"
		for {
			reply, err := s.Call(ctx, command(cursor)...)
			if err != nil {
				yield(nil, err)
				return
			}
			next, elements, err := splitScanReply(reply)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, e := range elements {
				if !yield(e, nil) {
					return
				}
			}
			if next == "0" {
				return
			}
			cursor = next
		}
	}
}

func splitScanReply(v *protocol.Value) (cursor string, elements []*protocol.Value, err error) {
	if v.Kind != protocol.Array || len(v.Array) != 2 {
		return "", nil, fmt.Errorf("redis: malformed scan reply %v", v)
	}
	return v.Array[0].Str, v.Array[1].Array, nil
}
