// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package values

import (
	"crypto" // The SHA-256 implementation is required for this package's
	// Digester.
	_ "crypto/sha256"
	"encoding/binary"
	"io"
	"sort"

	"github.com/grailbio/base/digest"
)

// Digester is the digester used to compute value digests. Digests
// are used as hash keys by the interpreter's stores and grouping
// stages; insertion order is tracked separately so hashing never
// leaks into output order.
var Digester = digest.Digester(crypto.SHA256)

// Digest computes the digest of value v. Values that are Equal have
// equal digests; in particular, record field order does not affect
// the digest.
func Digest(v T) digest.Digest {
	w := Digester.NewWriter()
	WriteDigest(w, v)
	return w.Digest()
}

var (
	falseByte = []byte{0}
	trueByte  = []byte{1}
)

func writeLength(w io.Writer, n int) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(n))
	w.Write(b[:])
}

// WriteDigest writes digest material for value v into the writer w.
func WriteDigest(w io.Writer, v T) {
	w.Write([]byte{byte(v.Kind)})
	switch v.Kind {
	case NullKind, UnitKind:
	case BoolKind:
		if v.Bool {
			w.Write(trueByte)
		} else {
			w.Write(falseByte)
		}
	case IntKind:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.Int))
		w.Write(b[:])
	case StrKind:
		writeLength(w, len(v.Str))
		io.WriteString(w, v.Str)
	case BytesKind:
		writeLength(w, len(v.Bytes))
		w.Write(v.Bytes)
	case ArrayKind:
		writeLength(w, len(v.Array))
		for _, e := range v.Array {
			WriteDigest(w, e)
		}
	case RecordKind:
		// Sort the fields so that records that are Equal (same field
		// set, any order) produce a consistent digest.
		fields := append([]Field{}, v.Rec.Fields()...)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		writeLength(w, len(fields))
		for _, f := range fields {
			writeLength(w, len(f.Name))
			io.WriteString(w, f.Name)
			WriteDigest(w, f.Value)
		}
	case StageKind:
		s := v.Stage.String()
		writeLength(w, len(s))
		io.WriteString(w, s)
	}
}
