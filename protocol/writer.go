package protocol

import (
	"strconv"

	"github.com/meanphil/redis-client/protocol/kind"
)

// EncodeCommand appends the wire encoding of a command — an array
// header followed by each argument as a bulk string — to buf and
// returns the extended slice. Every argument is serialized as a bulk
// string regardless of its originating scalar type (spec §3).
//
// Appending to a caller-supplied buffer, rather than writing directly
// to an io.Writer, is what lets a pipeline concatenate many commands
// into one payload without an intermediate copy per command.
func EncodeCommand(buf []byte, args ...[]byte) []byte {
	buf = append(buf, byte(kind.Array))
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = append(buf, kind.EOL...)
	for _, arg := range args {
		buf = append(buf, byte(kind.BulkString))
		buf = strconv.AppendInt(buf, int64(len(arg)), 10)
		buf = append(buf, kind.EOL...)
		buf = append(buf, arg...)
		buf = append(buf, kind.EOL...)
	}
	return buf
}

// EncodeStrings is a convenience wrapper over EncodeCommand for
// callers holding string arguments rather than []byte.
func EncodeStrings(buf []byte, args ...string) []byte {
	b := make([][]byte, len(args))
	for i, a := range args {
		b[i] = []byte(a)
	}
	return EncodeCommand(buf, b...)
}
