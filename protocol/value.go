// Package protocol implements the RESP3 wire codec: encoding commands
// and decoding any protocol value, including the streaming/aggregate
// framing rules.
package protocol

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/meanphil/redis-client/protocol/kind"
)

type Kind = kind.Kind

const (
	SimpleString   = kind.SimpleString
	SimpleError    = kind.SimpleError
	Int            = kind.Int
	BulkString     = kind.BulkString
	Array          = kind.Array
	Null           = kind.Null
	Bool           = kind.Bool
	Double         = kind.Double
	BigNumber      = kind.BigNumber
	BulkError      = kind.BulkError
	VerbatimString = kind.VerbatimString
	Map            = kind.Map
	Attribute      = kind.Attribute
	Set            = kind.Set
	Push           = kind.Push

	// CommandError is not a wire indicator; it is the Kind a decoded
	// SimpleError or BulkError frame is normalized to, per spec: "Simple
	// and blob errors are decoded into a command-error value ... they
	// are returned, not raised, from the decoder."
	CommandError kind.Kind = 0
)

// Pair is a decoded (key, value) entry of a Map or Attribute.
type Pair [2]*Value

// Value is the decoded form of one RESP3 frame. It is a tagged struct
// rather than a sum type (Go has no sum types); Kind says which of the
// remaining fields are meaningful.
//
// Attributes, when present, are metadata that prefixed this value on
// the wire (spec §3, §4.3); folding them into the value they annotate
// rather than returning a separate wrapper type means callers that
// don't care about attributes can ignore the field and use the value
// exactly as if it were undecorated.
type Value struct {
	Kind Kind

	Str       string   // simple string / bulk string / verbatim payload body
	Int       int64    // Int
	Bool      bool     // Bool
	Double    float64  // Double: also holds +Inf/-Inf/NaN
	BigNumber *big.Int // BigNumber

	// Null distinguishes an explicit null bulk ($-1) or null array
	// (*-1) from a zero-length bulk/array. It is also set on the
	// top-level Null kind for uniformity.
	Null bool

	VerbatimTag string // VerbatimString: three-character content-type tag

	Array []*Value // Array, Set, Push (first element of Push is the event tag)
	Map   []Pair   // Map

	// CodePrefix and Str (the message) are populated when Kind ==
	// CommandError: the first whitespace-delimited token of the error
	// line, and the remainder.
	CodePrefix string

	// Attributes carries any metadata map that prefixed this value on
	// the wire. Nil when no attribute frame preceded this value.
	Attributes []Pair
}

// String renders a Value for logs and test failure output.
func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case SimpleString, BulkString, VerbatimString:
		return v.Str
	case CommandError:
		return fmt.Sprintf("%s %s", v.CodePrefix, v.Str)
	case Int:
		return fmt.Sprintf("%d", v.Int)
	case Bool:
		return fmt.Sprintf("%t", v.Bool)
	case Double:
		return fmt.Sprintf("%v", v.Double)
	case BigNumber:
		return v.BigNumber.String()
	case Null:
		return "<null>"
	case Array, Set, Push:
		parts := make([]string, len(v.Array))
		for i, e := range v.Array {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	case Map:
		parts := make([]string, len(v.Map))
		for i, p := range v.Map {
			parts[i] = p[0].String() + ":" + p[1].String()
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return fmt.Sprintf("<%s>", v.Kind)
	}
}

// IsNull reports whether v denotes a null bulk, null array, or the
// top-level null value.
func (v *Value) IsNull() bool {
	return v != nil && (v.Kind == Null || v.Null)
}

// IsError reports whether v is a decoded command-error value.
func (v *Value) IsError() bool {
	return v != nil && v.Kind == CommandError
}
