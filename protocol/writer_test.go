package protocol

import (
	"strconv"
	"testing"

	"gotest.tools/v3/assert"
)

func TestEncodeCommand(t *testing.T) {
	got := EncodeCommand(nil, []byte("SET"), []byte("k"), []byte("v"))
	assert.Equal(t, string(got), "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
}

func TestEncodeCommand_AppendsIntoPipeline(t *testing.T) {
	var buf []byte
	buf = EncodeStrings(buf, "SET", "k", "1")
	buf = EncodeStrings(buf, "INCR", "k")

	assert.Equal(t, string(buf), "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\n1\r\n*2\r\n$4\r\nINCR\r\n$1\r\nk\r\n")
}

// TestRoundTrip exercises the codec round-trip property: decoding a
// server echo of an encoded command yields a value equal
// element-for-element to the original command.
func TestRoundTrip(t *testing.T) {
	args := []string{"SET", "mykey", "myvalue"}
	wire := EncodeStrings(nil, args...)

	echoed := "*3\r\n"
	for _, a := range args {
		echoed += "$" + strconv.Itoa(len(a)) + "\r\n" + a + "\r\n"
	}
	assert.Equal(t, string(wire), echoed)

	result, err := NewDecoder().Decode(newFakeStream(string(wire)))
	assert.NilError(t, err)
	assert.Equal(t, len(result.Array), len(args))
	for i, a := range args {
		assert.Equal(t, result.Array[i].Str, a)
	}
}
