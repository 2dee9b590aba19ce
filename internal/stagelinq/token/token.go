// SPDX-License-Identifier: MIT

// Package token implements the 16-byte StagelinQ identity token used to
// distinguish directory-channel peers and to tag every token-prefixed
// message on the wire.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Size is the fixed length of a Token in bytes.
const Size = 16

// Token is a 16-byte device identity. The most significant bit of the
// first byte must be zero; some StagelinQ clients reserve that bit and
// reject tokens that set it.
type Token [Size]byte

// Generate returns a cryptographically random Token with the MSB of its
// first byte cleared.
func Generate() (Token, error) {
	var t Token
	if _, err := rand.Read(t[:]); err != nil {
		return Token{}, fmt.Errorf("token: generate: %w", err)
	}
	t[0] &^= 0x80
	return t, nil
}

// Zero reports whether t is the all-zero token.
func (t Token) Zero() bool {
	return t == Token{}
}

// Valid reports whether the MSB-zero invariant holds.
func (t Token) Valid() bool {
	return t[0]&0x80 == 0
}

// String renders the token as lowercase hex for logs and diagnostics.
func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

// FromBytes copies a 16-byte slice into a Token, erroring on any other length.
func FromBytes(b []byte) (Token, error) {
	var t Token
	if len(b) != Size {
		return t, fmt.Errorf("token: from bytes: want %d bytes, got %d", Size, len(b))
	}
	copy(t[:], b)
	return t, nil
}
