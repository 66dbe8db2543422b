// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package values

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/plumblang/plumb/errors"
)

// DecodeJSON parses a single JSON value into a T. Object field
// order is preserved: fixtures are JSON, and downstream output
// stability depends on records keeping their source order. Numbers
// must be 64-bit integers; the value model has no float variant.
func DecodeJSON(data []byte) (T, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Null, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Null, errors.E("decode", errors.DecodeError, errors.New("trailing data after JSON value"))
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (T, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null, errors.E("decode", errors.DecodeError, err)
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (T, error) {
	switch tok := tok.(type) {
	case nil:
		return Null, nil
	case bool:
		return NewBool(tok), nil
	case string:
		return NewStr(tok), nil
	case json.Number:
		n, err := strconv.ParseInt(tok.String(), 10, 64)
		if err != nil {
			return Null, errors.E("decode", errors.DecodeError,
				errors.Errorf("number %s is not a 64-bit integer", tok))
		}
		return NewInt(n), nil
	case json.Delim:
		switch tok {
		case '[':
			var items []T
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Null, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // ]
				return Null, errors.E("decode", errors.DecodeError, err)
			}
			return NewArray(items), nil
		case '{':
			rec := NewRec()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Null, errors.E("decode", errors.DecodeError, err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return Null, errors.E("decode", errors.DecodeError, errors.New("object key is not a string"))
				}
				value, err := decodeValue(dec)
				if err != nil {
					return Null, err
				}
				rec.Set(key, value)
			}
			if _, err := dec.Token(); err != nil { // }
				return Null, errors.E("decode", errors.DecodeError, err)
			}
			return NewRecord(rec), nil
		}
	}
	return Null, errors.E("decode", errors.DecodeError, errors.Errorf("unexpected JSON token %v", tok))
}

// EncodeJSON renders value v as compact JSON. Record fields are
// written in insertion order; Bytes become an array of byte numbers;
// Unit becomes null. Stage values have no JSON form.
func EncodeJSON(v T) ([]byte, error) {
	var b bytes.Buffer
	if err := encodeValue(&b, v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func encodeValue(b *bytes.Buffer, v T) error {
	switch v.Kind {
	case NullKind, UnitKind:
		b.WriteString("null")
	case BoolKind:
		if v.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case IntKind:
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case StrKind:
		encodeString(b, v.Str)
	case BytesKind:
		b.WriteByte('[')
		for i, c := range v.Bytes {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(int(c)))
		}
		b.WriteByte(']')
	case ArrayKind:
		b.WriteByte('[')
		for i, item := range v.Array {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeValue(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case RecordKind:
		b.WriteByte('{')
		for i, f := range v.Rec.Fields() {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeString(b, f.Name)
			b.WriteByte(':')
			if err := encodeValue(b, f.Value); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case StageKind:
		return errors.E("encode", errors.TypeMismatch,
			errors.Errorf("stage value %s has no JSON form", v.Stage))
	default:
		return errors.E("encode", errors.TypeMismatch, errors.Errorf("bad kind %d", v.Kind))
	}
	return nil
}

const hexDigits = "0123456789abcdef"

func encodeString(b *bytes.Buffer, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			b.WriteString(`\"`)
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\b':
			b.WriteString(`\b`)
		case c == '\f':
			b.WriteString(`\f`)
		case c < 0x20:
			b.WriteString(`\u00`)
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xf])
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}
