package protocol

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/meanphil/redis-client/errs"
	"github.com/meanphil/redis-client/protocol/kind"
)

// FrameReader is the read side a Decoder needs: a line up to (and
// excluding) CRLF, with CRLF consumed, and an exact byte count. A
// stream.Stream satisfies this directly.
type FrameReader interface {
	ReadLine() ([]byte, error)
	ReadExact(n int) ([]byte, error)
}

// errStreamEnd signals that a streamed aggregate's terminator ("."),
// rather than another element, was read. It never escapes Decode.
var errStreamEnd = errors.New("protocol: stream end")

// Decoder reads one RESP3 value at a time from a FrameReader.
type Decoder struct{}

func NewDecoder() *Decoder { return &Decoder{} }

// Decode reads and returns exactly one top-level protocol value,
// including any attribute frames that precede it (folded into the
// returned value's Attributes field) and any streaming chunks that
// compose it.
func (d *Decoder) Decode(r FrameReader) (*Value, error) {
	v, err := d.decodeFrame(r)
	if err == errStreamEnd {
		return nil, fmt.Errorf("protocol: unexpected stream terminator")
	}
	return v, err
}

func (d *Decoder) decodeFrame(r FrameReader) (*Value, error) {
	line, err := r.ReadLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("protocol: empty frame header")
	}

	k := kind.Kind(line[0])
	if k == kind.StreamEnd {
		return nil, errStreamEnd
	}
	body := string(line[1:])

	switch k {
	case SimpleString:
		return &Value{Kind: SimpleString, Str: body}, nil
	case SimpleError:
		code, msg := splitCommandError(body)
		return &Value{Kind: CommandError, CodePrefix: code, Str: msg}, nil
	case Int:
		n, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("protocol: integer: %w", err)
		}
		return &Value{Kind: Int, Int: n}, nil
	case Null:
		if body != "" {
			return nil, fmt.Errorf("protocol: non-empty null frame %q", body)
		}
		return &Value{Kind: Null, Null: true}, nil
	case Bool:
		switch body {
		case "t":
			return &Value{Kind: Bool, Bool: true}, nil
		case "f":
			return &Value{Kind: Bool, Bool: false}, nil
		default:
			return nil, fmt.Errorf("protocol: invalid boolean %q", body)
		}
	case Double:
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return nil, fmt.Errorf("protocol: double: %w", err)
		}
		return &Value{Kind: Double, Double: f}, nil
	case BigNumber:
		n, ok := new(big.Int).SetString(body, 10)
		if !ok {
			return nil, fmt.Errorf("protocol: invalid big number %q", body)
		}
		return &Value{Kind: BigNumber, BigNumber: n}, nil
	case BulkString:
		return d.decodeBulk(r, body, BulkString)
	case BulkError:
		v, err := d.decodeBulk(r, body, BulkError)
		if err != nil {
			return nil, err
		}
		if v.IsNull() {
			return v, nil
		}
		code, msg := splitCommandError(v.Str)
		return &Value{Kind: CommandError, CodePrefix: code, Str: msg}, nil
	case VerbatimString:
		return d.decodeVerbatim(r, body)
	case Array:
		return d.decodeAggregate(r, body, Array)
	case Set:
		return d.decodeAggregate(r, body, Set)
	case Push:
		return d.decodeAggregate(r, body, Push)
	case Map:
		return d.decodeMap(r, body, Map)
	case Attribute:
		attrs, err := d.decodeMap(r, body, Attribute)
		if err != nil {
			return nil, err
		}
		next, err := d.Decode(r)
		if err != nil {
			return nil, err
		}
		next.Attributes = attrs.Map
		return next, nil
	default:
		return nil, &errs.ConnectionError{Err: fmt.Errorf("protocol: unknown type indicator %q", string(line[0]))}
	}
}

// decodeBulk reads a bulk-shaped body: a null ("-1"), a fixed-length
// run, or a streamed run ("?" followed by ";N" chunks).
func (d *Decoder) decodeBulk(r FrameReader, lenStr string, k Kind) (*Value, error) {
	if lenStr == "?" {
		data, err := d.readStreamedBulk(r)
		if err != nil {
			return nil, err
		}
		return &Value{Kind: k, Str: string(data)}, nil
	}

	n, err := strconv.ParseInt(lenStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("protocol: bulk length: %w", err)
	}
	if n < 0 {
		return &Value{Kind: k, Null: true}, nil
	}

	data, err := r.ReadExact(int(n))
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadLine(); err != nil {
		return nil, err
	}
	return &Value{Kind: k, Str: string(data)}, nil
}

func (d *Decoder) readStreamedBulk(r FrameReader) ([]byte, error) {
	var buf []byte
	for {
		line, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 || kind.Kind(line[0]) != kind.StreamChunk {
			return nil, fmt.Errorf("protocol: expected bulk chunk, got %q", line)
		}
		n, err := strconv.ParseInt(string(line[1:]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("protocol: chunk length: %w", err)
		}
		if n == 0 {
			return buf, nil
		}
		chunk, err := r.ReadExact(int(n))
		if err != nil {
			return nil, err
		}
		if _, err := r.ReadLine(); err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
	}
}

func (d *Decoder) decodeVerbatim(r FrameReader, lenStr string) (*Value, error) {
	v, err := d.decodeBulk(r, lenStr, VerbatimString)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return v, nil
	}
	if len(v.Str) < 4 || v.Str[3] != ':' {
		return nil, fmt.Errorf("protocol: malformed verbatim string %q", v.Str)
	}
	v.VerbatimTag = v.Str[:3]
	v.Str = v.Str[4:]
	return v, nil
}

// decodeAggregate reads an Array/Set/Push: null, fixed-length, or
// streamed (terminated by a "." frame).
func (d *Decoder) decodeAggregate(r FrameReader, lenStr string, k Kind) (*Value, error) {
	if lenStr == "?" {
		var elems []*Value
		for {
			v, err := d.decodeFrame(r)
			if err == errStreamEnd {
				break
			}
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		return &Value{Kind: k, Array: elems}, nil
	}

	n, err := strconv.ParseInt(lenStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("protocol: %s length: %w", k, err)
	}
	if n < 0 {
		return &Value{Kind: k, Null: true}, nil
	}

	elems := make([]*Value, 0, n)
	for i := int64(0); i < n; i++ {
		v, err := d.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding element %d of %s", err, i, k)
		}
		elems = append(elems, v)
	}
	return &Value{Kind: k, Array: elems}, nil
}

// decodeMap reads a Map/Attribute: fixed-length or streamed pairs.
func (d *Decoder) decodeMap(r FrameReader, lenStr string, k Kind) (*Value, error) {
	if lenStr == "?" {
		var pairs []Pair
		for {
			key, err := d.decodeFrame(r)
			if err == errStreamEnd {
				break
			}
			if err != nil {
				return nil, err
			}
			val, err := d.Decode(r)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{key, val})
		}
		return &Value{Kind: k, Map: pairs}, nil
	}

	n, err := strconv.ParseInt(lenStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("protocol: %s length: %w", k, err)
	}
	pairs := make([]Pair, 0, n)
	for i := int64(0); i < n; i++ {
		key, err := d.Decode(r)
		if err != nil {
			return nil, err
		}
		val, err := d.Decode(r)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{key, val})
	}
	return &Value{Kind: k, Map: pairs}, nil
}

// splitCommandError splits a server error line into its leading
// whitespace-delimited code prefix and the remaining message.
func splitCommandError(line string) (code, message string) {
	line = strings.TrimSpace(line)
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return line, ""
	}
	return line[:idx], line[idx+1:]
}
