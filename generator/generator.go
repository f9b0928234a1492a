// Package generator produces randomized D-Bus values for the fuzz loop and
// decides how many iterations a method gets.
package generator

import (
	"math"
	"math/rand"
	"strings"
	"time"

	fuzz "github.com/google/gofuzz"
	"github.com/pkg/errors"

	"github.com/busfuzz/busfuzz/dbusvalue"
)

const (
	// MaxSignatureLength is the D-Bus limit for signature strings.
	MaxSignatureLength = 255

	defaultIterations      = 200
	defaultNoArgIterations = 10
	defaultLengthSteps     = 32
	unscheduledMaxLength   = 64
)

var ErrUnknownCode = errors.New("no generator for type code")

// Generator is the randomness capability consumed by the fuzz loop.
type Generator interface {
	// Reset prepares the generator for a new method.
	Reset(maxBufferSize int)
	// Next returns a random value for the elementary type code. String-like
	// values are at most maxLen bytes long.
	Next(code byte, maxLen int) (dbusvalue.Value, error)
	// Continue advances to the next iteration and reports whether it should
	// run.
	Continue(variableLength bool, argCount int) bool
}

type Options struct {
	// Seed of the random source; zero picks one from the clock.
	Seed int64
	// Iterations for methods whose arguments are all fixed-size.
	Iterations int
	// NoArgIterations for methods without arguments.
	NoArgIterations int
	// LengthSteps is the number of iterations over which string lengths grow
	// to the buffer size.
	LengthSteps int
}

// Random is the default Generator.
type Random struct {
	opts   Options
	rnd    *rand.Rand
	fuzzer *fuzz.Fuzzer

	maxLen    int
	iteration int
	strLen    int
}

func New(opts Options) *Random {
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Iterations <= 0 {
		opts.Iterations = defaultIterations
	}
	if opts.NoArgIterations <= 0 {
		opts.NoArgIterations = defaultNoArgIterations
	}
	if opts.LengthSteps <= 0 {
		opts.LengthSteps = defaultLengthSteps
	}
	src := rand.NewSource(opts.Seed)
	return &Random{
		opts: opts,
		rnd:  rand.New(src), // #nosec G404
		fuzzer: fuzz.New().
			RandSource(src).
			NilChance(0).
			Funcs(fuzzDouble),
	}
}

func (r *Random) Reset(maxBufferSize int) {
	r.maxLen = maxBufferSize
	r.iteration = 0
	r.strLen = 0
}

func (r *Random) Continue(variableLength bool, argCount int) bool {
	r.iteration++
	switch {
	case argCount == 0:
		return r.iteration <= r.opts.NoArgIterations
	case variableLength:
		if r.strLen >= r.maxLen {
			return false
		}
		step := (r.maxLen + r.opts.LengthSteps - 1) / r.opts.LengthSteps
		if step < 1 {
			step = 1
		}
		r.strLen = r.iteration * step
		if r.strLen > r.maxLen {
			r.strLen = r.maxLen
		}
		return true
	default:
		return r.iteration <= r.opts.Iterations
	}
}

// StringLength is the length scheduled for string values of this iteration.
func (r *Random) StringLength() int {
	return r.strLen
}

func (r *Random) Next(code byte, maxLen int) (dbusvalue.Value, error) {
	switch code {
	case dbusvalue.TypeByte:
		var v uint8
		r.fuzzer.Fuzz(&v)
		return dbusvalue.Byte(v), nil
	case dbusvalue.TypeBoolean:
		var v bool
		r.fuzzer.Fuzz(&v)
		return dbusvalue.Boolean(v), nil
	case dbusvalue.TypeInt16:
		var v int16
		r.fuzzer.Fuzz(&v)
		return dbusvalue.Int16(r.signedEdge(int64(v), math.MinInt16, math.MaxInt16)), nil
	case dbusvalue.TypeUint16:
		var v uint16
		r.fuzzer.Fuzz(&v)
		return dbusvalue.Uint16(r.unsignedEdge(uint64(v), math.MaxUint16)), nil
	case dbusvalue.TypeInt32:
		var v int32
		r.fuzzer.Fuzz(&v)
		return dbusvalue.Int32(r.signedEdge(int64(v), math.MinInt32, math.MaxInt32)), nil
	case dbusvalue.TypeUint32:
		var v uint32
		r.fuzzer.Fuzz(&v)
		return dbusvalue.Uint32(r.unsignedEdge(uint64(v), math.MaxUint32)), nil
	case dbusvalue.TypeInt64:
		var v int64
		r.fuzzer.Fuzz(&v)
		return dbusvalue.Int64(r.signedEdge(v, math.MinInt64, math.MaxInt64)), nil
	case dbusvalue.TypeUint64:
		var v uint64
		r.fuzzer.Fuzz(&v)
		return dbusvalue.Uint64(r.unsignedEdge(v, math.MaxUint64)), nil
	case dbusvalue.TypeDouble:
		var v float64
		r.fuzzer.Fuzz(&v)
		return dbusvalue.Double(v), nil
	case dbusvalue.TypeString:
		return dbusvalue.String(r.text(r.length(maxLen))), nil
	case dbusvalue.TypeObjectPath:
		return dbusvalue.ObjectPath(r.objectPath(r.length(maxLen))), nil
	case dbusvalue.TypeSignature:
		n := r.length(maxLen)
		if n > MaxSignatureLength {
			n = MaxSignatureLength
		}
		return dbusvalue.Signature(r.signature(n)), nil
	case dbusvalue.TypeVariant:
		return dbusvalue.Variant{Value: dbusvalue.String(r.text(r.length(maxLen)))}, nil
	case dbusvalue.TypeUnixFD:
		return dbusvalue.UnixFD(r.rnd.Intn(3)), nil
	}
	return nil, errors.Wrapf(ErrUnknownCode, "%q", code)
}

// length picks the byte length of the next string-like value.
func (r *Random) length(maxLen int) int {
	n := r.strLen
	if n == 0 {
		n = r.rnd.Intn(unscheduledMaxLength + 1)
	}
	if maxLen > 0 && n > maxLen {
		n = maxLen
	}
	return n
}

func (r *Random) signedEdge(v, min, max int64) int64 {
	if r.rnd.Intn(8) != 0 {
		return v
	}
	edges := []int64{0, -1, 1, min, max}
	return edges[r.rnd.Intn(len(edges))]
}

func (r *Random) unsignedEdge(v, max uint64) uint64 {
	if r.rnd.Intn(8) != 0 {
		return v
	}
	edges := []uint64{0, 1, max, max - 1}
	return edges[r.rnd.Intn(len(edges))]
}

func fuzzDouble(f *float64, c fuzz.Continue) {
	switch c.Intn(12) {
	case 0:
		*f = math.NaN()
	case 1:
		*f = math.Inf(1)
	case 2:
		*f = math.Inf(-1)
	case 3:
		*f = math.Copysign(0, -1)
	case 4:
		*f = math.MaxFloat64
	case 5:
		*f = -math.SmallestNonzeroFloat64
	default:
		*f = c.NormFloat64() * math.Pow(10, float64(c.Intn(20)))
	}
}

var (
	interesting = []string{"%s", "%n", "%x", "%%", "\\", "'", "\"", "../", "\t", "\n", "é", "中", "‮", "😀"}
	asciiChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 -_.:;,/@#$&*()[]{}<>=+!?~|"
	pathChars   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"
)

// text returns valid UTF-8 of exactly n bytes without NUL characters.
func (r *Random) text(n int) string {
	var b strings.Builder
	b.Grow(n)
	for b.Len() < n {
		if r.rnd.Intn(6) == 0 {
			piece := interesting[r.rnd.Intn(len(interesting))]
			if b.Len()+len(piece) <= n {
				b.WriteString(piece)
				continue
			}
		}
		b.WriteByte(asciiChars[r.rnd.Intn(len(asciiChars))])
	}
	return b.String()
}

// objectPath returns a syntactically valid object path of at most n bytes
// (at least "/").
func (r *Random) objectPath(n int) string {
	if n < 2 {
		return "/"
	}
	buf := make([]byte, 1, n)
	buf[0] = '/'
	for len(buf) < n {
		last := buf[len(buf)-1]
		if last != '/' && len(buf) < n-1 && r.rnd.Intn(8) == 0 {
			buf = append(buf, '/')
			continue
		}
		buf = append(buf, pathChars[r.rnd.Intn(len(pathChars))])
	}
	if buf[len(buf)-1] == '/' {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

// signature returns a valid signature of complete elementary or array types
// of at most n bytes.
func (r *Random) signature(n int) string {
	var b strings.Builder
	for b.Len() < n {
		code := dbusvalue.ElementaryCodes[r.rnd.Intn(len(dbusvalue.ElementaryCodes))]
		if b.Len()+2 <= n && r.rnd.Intn(4) == 0 {
			b.WriteByte('a')
		}
		b.WriteByte(code)
	}
	return b.String()
}
