// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"cmp"
	"encoding/binary"
	"fmt"
)

// SeqNum is a sequence number defining precedence among identical user keys.
// A key with a higher sequence number takes precedence over a key with an
// equal user key but a lower sequence number.
type SeqNum uint64

const (
	// SeqNumZero is the zero sequence number, used for keys that predate any
	// sequence number assignment.
	SeqNumZero SeqNum = 0
	// SeqNumStart is the first sequence number assigned to a written key.
	SeqNumStart SeqNum = 1
	// SeqNumMax is the largest valid sequence number. It is used to build
	// search keys that sort before any real key sharing the same user key.
	SeqNumMax SeqNum = 1<<56 - 1
)

func (s SeqNum) String() string {
	if s == SeqNumMax {
		return "inf"
	}
	return fmt.Sprintf("%d", uint64(s))
}

// InternalKeyKind enumerates the value types that may be attached to a user
// key: a live value, or a deletion tombstone.
type InternalKeyKind uint8

const (
	// InternalKeyKindDelete marks a tombstone for a user key.
	InternalKeyKindDelete InternalKeyKind = 0
	// InternalKeyKindSet marks a live value for a user key.
	InternalKeyKindSet InternalKeyKind = 1
	// InternalKeyKindMax is the largest valid kind. It is used, paired with
	// SeqNumMax, to build a search key for a given user key.
	InternalKeyKindMax InternalKeyKind = InternalKeyKindSet
	// InternalKeyKindInvalid marks a key that failed to decode.
	InternalKeyKindInvalid InternalKeyKind = 255
)

func (k InternalKeyKind) String() string {
	switch k {
	case InternalKeyKindDelete:
		return "DEL"
	case InternalKeyKindSet:
		return "SET"
	case InternalKeyKindInvalid:
		return "INVALID"
	default:
		return fmt.Sprintf("UNKNOWN:%d", uint8(k))
	}
}

// InternalKeyTrailer packs a sequence number and a kind into the 8 bytes
// that trail a user key inside an internal key.
type InternalKeyTrailer uint64

// MakeTrailer constructs a trailer from a sequence number and a kind.
func MakeTrailer(seqNum SeqNum, kind InternalKeyKind) InternalKeyTrailer {
	return (InternalKeyTrailer(seqNum) << 8) | InternalKeyTrailer(kind)
}

// SeqNum returns the sequence number encoded in the trailer.
func (t InternalKeyTrailer) SeqNum() SeqNum { return SeqNum(t >> 8) }

// Kind returns the key kind encoded in the trailer.
func (t InternalKeyTrailer) Kind() InternalKeyKind { return InternalKeyKind(t & 0xff) }

func (t InternalKeyTrailer) String() string {
	return fmt.Sprintf("%s,%s", t.SeqNum(), t.Kind())
}

// InternalTrailerLen is the number of bytes used to encode a trailer.
const InternalTrailerLen = 8

// InternalKey is a user key tagged with a sequence number and a kind.
// Internal keys with equal user keys order by descending sequence number,
// then by descending kind, so that the newest version of a user key sorts
// first.
type InternalKey struct {
	UserKey []byte
	Trailer InternalKeyTrailer
}

// MakeInternalKey constructs an internal key from a user key, a sequence
// number and a kind.
func MakeInternalKey(userKey []byte, seqNum SeqNum, kind InternalKeyKind) InternalKey {
	return InternalKey{UserKey: userKey, Trailer: MakeTrailer(seqNum, kind)}
}

// MakeSearchKey constructs an internal key suitable for seeking to the first
// possible encoded occurrence of userKey, i.e. the one with the highest
// sequence number and kind.
func MakeSearchKey(userKey []byte) InternalKey {
	return MakeInternalKey(userKey, SeqNumMax, InternalKeyKindMax)
}

// SeqNum returns the key's sequence number.
func (k InternalKey) SeqNum() SeqNum { return k.Trailer.SeqNum() }

// Kind returns the key's kind.
func (k InternalKey) Kind() InternalKeyKind { return k.Trailer.Kind() }

// Valid returns true if the key decoded to a recognized kind.
func (k InternalKey) Valid() bool { return k.Kind() != InternalKeyKindInvalid }

func (k InternalKey) String() string {
	return fmt.Sprintf("%s#%s", k.UserKey, k.Trailer)
}

// Size returns the number of bytes Encode writes.
func (k InternalKey) Size() int { return len(k.UserKey) + InternalTrailerLen }

// Encode writes the user key followed by the little-endian trailer to buf,
// which must be at least k.Size() bytes long.
func (k InternalKey) Encode(buf []byte) {
	i := copy(buf, k.UserKey)
	binary.LittleEndian.PutUint64(buf[i:], uint64(k.Trailer))
}

// Clone returns a deep copy of the key.
func (k InternalKey) Clone() InternalKey {
	if len(k.UserKey) == 0 {
		return k
	}
	u := make([]byte, len(k.UserKey))
	copy(u, k.UserKey)
	return InternalKey{UserKey: u, Trailer: k.Trailer}
}

// DecodeInternalKey decodes an internal key previously written by Encode.
// A buffer shorter than InternalTrailerLen decodes to an invalid key.
func DecodeInternalKey(encodedKey []byte) InternalKey {
	n := len(encodedKey) - InternalTrailerLen
	if n < 0 {
		return InternalKey{Trailer: InternalKeyTrailer(InternalKeyKindInvalid)}
	}
	trailer := InternalKeyTrailer(binary.LittleEndian.Uint64(encodedKey[n:]))
	return InternalKey{UserKey: encodedKey[:n:n], Trailer: trailer}
}

// InternalCompare orders two internal keys: first by user key using cmp,
// then by descending sequence number, then by descending kind, so that the
// most recent version of a user key sorts before older versions.
func InternalCompare(userCmp Compare, a, b InternalKey) int {
	if x := userCmp(a.UserKey, b.UserKey); x != 0 {
		return x
	}
	return cmp.Compare(b.Trailer, a.Trailer)
}
