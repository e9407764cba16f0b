// Package value implements the point-value type taxonomy: a
// closed sum type over null, numeric, textual, composite, and enveloped
// variants.
package value

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Kind tags which case of Value is populated. New kinds are appended
// only, so serialized tags stay stable.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt64
	KindDouble
	KindBool
	KindDecimal
	KindRational
	KindBigRational
	KindComplex
	KindString
	KindBytes
	KindTuple
	KindDict
	KindEncrypted
	KindSigned
)

// DictEntry is one key/value pair of an ordered Dict value.
type DictEntry struct {
	Key   string
	Value Value
}

// Value is a closed sum type; exactly the field(s) matching Kind are
// meaningful. Constructed through the New* helpers, never built literal,
// so new cases can add fields without breaking call sites.
type Value struct {
	kind Kind

	i64 int64
	f64 float64
	b   bool
	dec decimal.Decimal
	rat *big.Rat
	// bigRat is an arbitrary-precision rational pair distinct from Rational
	// (big.Rat already is arbitrary precision; BigRational keeps the
	// numerator and denominator exactly as given, unnormalized, and has its
	// own wire tag).
	bigRatNum   *big.Int
	bigRatDenom *big.Int
	cplx        complex128
	str         string
	bytes       []byte
	tuple       []Value
	dict        []DictEntry

	// Encrypted/Signed envelopes wrap an inner Value.
	inner   *Value
	keyID   string
	sig     []byte
}

// Kind reports which case of v is populated.
func (v Value) Kind() Kind { return v.kind }

// Null is the null value.
var Null = Value{kind: KindNull}

// NewInt64 builds an Int64 value.
func NewInt64(n int64) Value { return Value{kind: KindInt64, i64: n} }

// Int64 returns the Int64 payload; ok is false if Kind() != KindInt64.
func (v Value) Int64() (int64, bool) { return v.i64, v.kind == KindInt64 }

// NewDouble builds a Double value.
func NewDouble(f float64) Value { return Value{kind: KindDouble, f64: f} }

// Double returns the Double payload; ok is false if Kind() != KindDouble.
func (v Value) Double() (float64, bool) { return v.f64, v.kind == KindDouble }

// NewBool builds a Bool value.
func NewBool(b bool) Value { return Value{kind: KindBool, b: b} }

// Bool returns the Bool payload; ok is false if Kind() != KindBool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// NewDecimal builds a Decimal value.
func NewDecimal(d decimal.Decimal) Value { return Value{kind: KindDecimal, dec: d} }

// Decimal returns the Decimal payload; ok is false if Kind() != KindDecimal.
func (v Value) Decimal() (decimal.Decimal, bool) { return v.dec, v.kind == KindDecimal }

// NewRational builds a Rational value from a big.Rat.
func NewRational(r *big.Rat) Value { return Value{kind: KindRational, rat: r} }

// Rational returns the Rational payload; ok is false if Kind() != KindRational.
func (v Value) Rational() (*big.Rat, bool) { return v.rat, v.kind == KindRational }

// NewBigRational builds a BigRational value from an explicit numerator and
// denominator, kept apart from Rational so the wire codec's tag table can
// distinguish the two independently of how big.Rat happens to normalize.
func NewBigRational(num, denom *big.Int) Value {
	return Value{kind: KindBigRational, bigRatNum: num, bigRatDenom: denom}
}

// BigRational returns the numerator and denominator; ok is false if
// Kind() != KindBigRational.
func (v Value) BigRational() (num, denom *big.Int, ok bool) {
	return v.bigRatNum, v.bigRatDenom, v.kind == KindBigRational
}

// NewComplex builds a Complex value.
func NewComplex(c complex128) Value { return Value{kind: KindComplex, cplx: c} }

// Complex returns the Complex payload; ok is false if Kind() != KindComplex.
func (v Value) Complex() (complex128, bool) { return v.cplx, v.kind == KindComplex }

// NewString builds a String value.
func NewString(s string) Value { return Value{kind: KindString, str: s} }

// StringValue returns the String payload; ok is false if Kind() != KindString.
func (v Value) StringValue() (string, bool) { return v.str, v.kind == KindString }

// NewBytes builds a byte-string value.
func NewBytes(b []byte) Value { return Value{kind: KindBytes, bytes: b} }

// Bytes returns the byte-string payload; ok is false if Kind() != KindBytes.
func (v Value) Bytes() ([]byte, bool) { return v.bytes, v.kind == KindBytes }

// NewTuple builds an ordered Tuple value.
func NewTuple(items []Value) Value { return Value{kind: KindTuple, tuple: items} }

// Tuple returns the Tuple payload; ok is false if Kind() != KindTuple.
func (v Value) Tuple() ([]Value, bool) { return v.tuple, v.kind == KindTuple }

// NewDict builds an ordered Dict value.
func NewDict(entries []DictEntry) Value { return Value{kind: KindDict, dict: entries} }

// Dict returns the Dict payload; ok is false if Kind() != KindDict.
func (v Value) Dict() ([]DictEntry, bool) { return v.dict, v.kind == KindDict }

// NewEncrypted wraps inner in an Encrypted envelope identified by keyID.
// Cipher wiring is left to the key management layer; this module models
// the envelope shape only.
func NewEncrypted(inner Value, keyID string) Value {
	return Value{kind: KindEncrypted, inner: &inner, keyID: keyID}
}

// Encrypted returns the wrapped value and key id; ok is false if
// Kind() != KindEncrypted.
func (v Value) Encrypted() (inner Value, keyID string, ok bool) {
	if v.kind != KindEncrypted {
		return Value{}, "", false
	}
	return *v.inner, v.keyID, true
}

// NewSigned wraps inner in a Signed envelope carrying sig.
func NewSigned(inner Value, sig []byte) Value {
	return Value{kind: KindSigned, inner: &inner, sig: sig}
}

// Signed returns the wrapped value and signature; ok is false if
// Kind() != KindSigned.
func (v Value) Signed() (inner Value, sig []byte, ok bool) {
	if v.kind != KindSigned {
		return Value{}, nil, false
	}
	return *v.inner, v.sig, true
}

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Numeric extracts a float64 magnitude from v, for filters and
// interpolation that compare values by distance. Supported kinds: Int64,
// Double, Decimal. Any other kind reports ok=false.
func Numeric(v Value) (float64, bool) {
	if n, ok := v.Int64(); ok {
		return float64(n), true
	}
	if n, ok := v.Double(); ok {
		return n, true
	}
	if d, ok := v.Decimal(); ok {
		f, _ := d.Float64()
		return f, true
	}
	return 0, false
}

// Equal reports deep equality between v and other across all kinds.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInt64:
		return v.i64 == other.i64
	case KindDouble:
		return v.f64 == other.f64
	case KindBool:
		return v.b == other.b
	case KindDecimal:
		return v.dec.Equal(other.dec)
	case KindRational:
		return v.rat.Cmp(other.rat) == 0
	case KindBigRational:
		return v.bigRatNum.Cmp(other.bigRatNum) == 0 && v.bigRatDenom.Cmp(other.bigRatDenom) == 0
	case KindComplex:
		return v.cplx == other.cplx
	case KindString:
		return v.str == other.str
	case KindBytes:
		return string(v.bytes) == string(other.bytes)
	case KindTuple:
		if len(v.tuple) != len(other.tuple) {
			return false
		}
		for i := range v.tuple {
			if !v.tuple[i].Equal(other.tuple[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(v.dict) != len(other.dict) {
			return false
		}
		for i := range v.dict {
			if v.dict[i].Key != other.dict[i].Key || !v.dict[i].Value.Equal(other.dict[i].Value) {
				return false
			}
		}
		return true
	case KindEncrypted:
		return v.keyID == other.keyID && v.inner.Equal(*other.inner)
	case KindSigned:
		return string(v.sig) == string(other.sig) && v.inner.Equal(*other.inner)
	default:
		return false
	}
}
