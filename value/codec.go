package value

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xapiens/rvpf/datetime"
)

// wireTag is the wire codec's append-only tag table. Values already
// shipped keep their tag forever; only new tags are added at the end.
type wireTag byte

const (
	tagNull wireTag = iota
	tagInt64
	tagDouble
	tagBool
	tagDecimal
	tagRational
	tagBigRational
	tagComplex
	tagString
	tagBytes
	tagTuple
	tagDict
	tagEncrypted
	tagSigned
)

// EncodeValue appends the tagged wire encoding of v to buf and returns the
// extended slice.
func EncodeValue(buf []byte, v Value) []byte {
	switch v.kind {
	case KindNull:
		return append(buf, byte(tagNull))
	case KindInt64:
		buf = append(buf, byte(tagInt64))
		return appendUint64(buf, uint64(v.i64))
	case KindDouble:
		buf = append(buf, byte(tagDouble))
		return appendUint64(buf, math.Float64bits(v.f64))
	case KindBool:
		b := byte(0)
		if v.b {
			b = 1
		}
		return append(buf, byte(tagBool), b)
	case KindDecimal:
		buf = append(buf, byte(tagDecimal))
		return appendBytes(buf, []byte(v.dec.String()))
	case KindRational:
		buf = append(buf, byte(tagRational))
		buf = appendBigInt(buf, v.rat.Num())
		return appendBigInt(buf, v.rat.Denom())
	case KindBigRational:
		buf = append(buf, byte(tagBigRational))
		buf = appendBigInt(buf, v.bigRatNum)
		return appendBigInt(buf, v.bigRatDenom)
	case KindComplex:
		buf = append(buf, byte(tagComplex))
		buf = appendUint64(buf, math.Float64bits(real(v.cplx)))
		return appendUint64(buf, math.Float64bits(imag(v.cplx)))
	case KindString:
		buf = append(buf, byte(tagString))
		return appendBytes(buf, []byte(v.str))
	case KindBytes:
		buf = append(buf, byte(tagBytes))
		return appendBytes(buf, v.bytes)
	case KindTuple:
		buf = append(buf, byte(tagTuple))
		buf = appendUint64(buf, uint64(len(v.tuple)))
		for _, item := range v.tuple {
			buf = EncodeValue(buf, item)
		}
		return buf
	case KindDict:
		buf = append(buf, byte(tagDict))
		buf = appendUint64(buf, uint64(len(v.dict)))
		for _, entry := range v.dict {
			buf = appendBytes(buf, []byte(entry.Key))
			buf = EncodeValue(buf, entry.Value)
		}
		return buf
	case KindEncrypted:
		buf = append(buf, byte(tagEncrypted))
		buf = appendBytes(buf, []byte(v.keyID))
		return EncodeValue(buf, *v.inner)
	case KindSigned:
		buf = append(buf, byte(tagSigned))
		buf = appendBytes(buf, v.sig)
		return EncodeValue(buf, *v.inner)
	default:
		panic(fmt.Sprintf("value: unknown kind %d", v.kind))
	}
}

// DecodeValue decodes one tagged Value from buf, returning the remaining
// unread tail.
func DecodeValue(buf []byte) (Value, []byte, error) {
	if len(buf) == 0 {
		return Value{}, nil, fmt.Errorf("value: decode: empty buffer")
	}
	tag := wireTag(buf[0])
	rest := buf[1:]
	switch tag {
	case tagNull:
		return Null, rest, nil
	case tagInt64:
		n, rest, err := readUint64(rest)
		return NewInt64(int64(n)), rest, err
	case tagDouble:
		n, rest, err := readUint64(rest)
		return NewDouble(math.Float64frombits(n)), rest, err
	case tagBool:
		if len(rest) < 1 {
			return Value{}, nil, fmt.Errorf("value: decode bool: short buffer")
		}
		return NewBool(rest[0] != 0), rest[1:], nil
	case tagDecimal:
		raw, rest, err := readBytes(rest)
		if err != nil {
			return Value{}, nil, err
		}
		d, err := decimal.NewFromString(string(raw))
		if err != nil {
			return Value{}, nil, fmt.Errorf("value: decode decimal: %w", err)
		}
		return NewDecimal(d), rest, nil
	case tagRational:
		num, rest, err := readBigInt(rest)
		if err != nil {
			return Value{}, nil, err
		}
		denom, rest, err := readBigInt(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return NewRational(new(big.Rat).SetFrac(num, denom)), rest, nil
	case tagBigRational:
		num, rest, err := readBigInt(rest)
		if err != nil {
			return Value{}, nil, err
		}
		denom, rest, err := readBigInt(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return NewBigRational(num, denom), rest, nil
	case tagComplex:
		re, rest, err := readUint64(rest)
		if err != nil {
			return Value{}, nil, err
		}
		im, rest, err := readUint64(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return NewComplex(complex(math.Float64frombits(re), math.Float64frombits(im))), rest, nil
	case tagString:
		raw, rest, err := readBytes(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return NewString(string(raw)), rest, nil
	case tagBytes:
		raw, rest, err := readBytes(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return NewBytes(raw), rest, nil
	case tagTuple:
		n, rest, err := readUint64(rest)
		if err != nil {
			return Value{}, nil, err
		}
		items := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			var item Value
			item, rest, err = DecodeValue(rest)
			if err != nil {
				return Value{}, nil, err
			}
			items = append(items, item)
		}
		return NewTuple(items), rest, nil
	case tagDict:
		n, rest, err := readUint64(rest)
		if err != nil {
			return Value{}, nil, err
		}
		entries := make([]DictEntry, 0, n)
		for i := uint64(0); i < n; i++ {
			var key []byte
			key, rest, err = readBytes(rest)
			if err != nil {
				return Value{}, nil, err
			}
			var v Value
			v, rest, err = DecodeValue(rest)
			if err != nil {
				return Value{}, nil, err
			}
			entries = append(entries, DictEntry{Key: string(key), Value: v})
		}
		return NewDict(entries), rest, nil
	case tagEncrypted:
		keyID, rest, err := readBytes(rest)
		if err != nil {
			return Value{}, nil, err
		}
		inner, rest, err := DecodeValue(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return NewEncrypted(inner, string(keyID)), rest, nil
	case tagSigned:
		sig, rest, err := readBytes(rest)
		if err != nil {
			return Value{}, nil, err
		}
		inner, rest, err := DecodeValue(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return NewSigned(inner, sig), rest, nil
	default:
		return Value{}, nil, fmt.Errorf("value: decode: unknown tag %d", tag)
	}
}

func appendUint64(buf []byte, n uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], n)
	return append(buf, tmp[:]...)
}

func readUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("value: decode uint64: short buffer")
	}
	return binary.BigEndian.Uint64(buf[:8]), buf[8:], nil
}

func appendBytes(buf, b []byte) []byte {
	buf = appendUint64(buf, uint64(len(b)))
	return append(buf, b...)
}

func readBytes(buf []byte) ([]byte, []byte, error) {
	n, rest, err := readUint64(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, fmt.Errorf("value: decode bytes: short buffer")
	}
	return rest[:n], rest[n:], nil
}

func appendBigInt(buf []byte, n *big.Int) []byte {
	raw := n.Bytes()
	sign := byte(0)
	if n.Sign() < 0 {
		sign = 1
	}
	buf = append(buf, sign)
	return appendBytes(buf, raw)
}

func readBigInt(buf []byte) (*big.Int, []byte, error) {
	if len(buf) < 1 {
		return nil, nil, fmt.Errorf("value: decode bigint: short buffer")
	}
	sign := buf[0]
	raw, rest, err := readBytes(buf[1:])
	if err != nil {
		return nil, nil, err
	}
	n := new(big.Int).SetBytes(raw)
	if sign == 1 {
		n.Neg(n)
	}
	return n, rest, nil
}

// EncodePointValue encodes a PointValue (without version) for the notifier/
// listener wire protocol: point_uuid, stamp, nullable state,
// tagged value.
func EncodePointValue(pv PointValue) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, pv.Point[:]...)
	buf = appendUint64(buf, uint64(pv.Stamp))
	if pv.State == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = appendBytes(buf, pv.State)
	}
	buf = EncodeValue(buf, pv.Value)
	return buf
}

// DecodePointValue decodes a PointValue encoded by EncodePointValue.
func DecodePointValue(buf []byte) (PointValue, error) {
	if len(buf) < 16 {
		return PointValue{}, fmt.Errorf("value: decode point value: short buffer")
	}
	var id uuid.UUID
	copy(id[:], buf[:16])
	rest := buf[16:]
	stampRaw, rest, err := readUint64(rest)
	if err != nil {
		return PointValue{}, err
	}
	if len(rest) < 1 {
		return PointValue{}, fmt.Errorf("value: decode point value: missing state marker")
	}
	hasState := rest[0] == 1
	rest = rest[1:]
	var state []byte
	if hasState {
		state, rest, err = readBytes(rest)
		if err != nil {
			return PointValue{}, err
		}
	}
	v, _, err := DecodeValue(rest)
	if err != nil {
		return PointValue{}, err
	}
	return PointValue{
		Point: id,
		Stamp: datetime.DateTime(int64(stampRaw)),
		State: state,
		Value: v,
	}, nil
}

// EncodeVersionedValue encodes a VersionedValue: the point value payload
// followed by its version.
func EncodeVersionedValue(vv VersionedValue) []byte {
	buf := EncodePointValue(vv.PointValue)
	return appendUint64(buf, uint64(vv.Version))
}

// DecodeVersionedValue decodes a VersionedValue encoded by
// EncodeVersionedValue.
func DecodeVersionedValue(buf []byte) (VersionedValue, error) {
	if len(buf) < 8 {
		return VersionedValue{}, fmt.Errorf("value: decode versioned value: short buffer")
	}
	body := buf[:len(buf)-8]
	versionRaw := buf[len(buf)-8:]
	pv, err := DecodePointValue(body)
	if err != nil {
		return VersionedValue{}, err
	}
	version, _, err := readUint64(versionRaw)
	if err != nil {
		return VersionedValue{}, err
	}
	return VersionedValue{PointValue: pv, Version: int64(version)}, nil
}
