// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keypath implements the derivation path bookkeeping needed to sign
// the inputs of a prepared transaction: parsing and formatting BIP32 paths,
// and checking that a path really identifies the key controlling an output.
package keypath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// HardenedKeyStart is the index at which hardened children start.
const HardenedKeyStart = hdkeychain.HardenedKeyStart

var (
	// ErrInvalidPath is returned when a path string cannot be parsed.
	ErrInvalidPath = errors.New("invalid derivation path")
)

// Path is an immutable BIP32 derivation path, the sequence of child indices
// leading from the master key to a wallet key.  Hardened indices carry the
// HardenedKeyStart offset.
type Path struct {
	indices []uint32
}

// NewPath creates a path from the given child indices.
func NewPath(indices ...uint32) Path {
	if len(indices) == 0 {
		return Path{}
	}

	cpy := make([]uint32, len(indices))
	copy(cpy, indices)

	return Path{indices: cpy}
}

// ParsePath parses a path of the form m/84'/0'/0'/1/5.  Hardened components
// may be marked with ', h or H.  The leading "m" is optional.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Path{}, fmt.Errorf("%w: empty", ErrInvalidPath)
	}

	parts := strings.Split(s, "/")
	if parts[0] == "m" || parts[0] == "M" {
		parts = parts[1:]
	}

	indices := make([]uint32, 0, len(parts))
	for _, part := range parts {
		hardened := false
		switch {
		case strings.HasSuffix(part, "'"),
			strings.HasSuffix(part, "h"),
			strings.HasSuffix(part, "H"):

			hardened = true
			part = part[:len(part)-1]
		}

		idx, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return Path{}, fmt.Errorf("%w: %q: bad component %q",
				ErrInvalidPath, s, part)
		}
		if idx >= HardenedKeyStart {
			return Path{}, fmt.Errorf("%w: %q: component %d out "+
				"of range", ErrInvalidPath, s, idx)
		}

		if hardened {
			idx += HardenedKeyStart
		}
		indices = append(indices, uint32(idx))
	}

	return Path{indices: indices}, nil
}

// MustParsePath is like ParsePath but panics on error.  It is meant for
// constants and tests.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the path in m/84'/0'/0'/1/5 form.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range p.indices {
		b.WriteByte('/')
		if idx >= HardenedKeyStart {
			b.WriteString(strconv.FormatUint(
				uint64(idx-HardenedKeyStart), 10,
			))
			b.WriteByte('\'')
			continue
		}
		b.WriteString(strconv.FormatUint(uint64(idx), 10))
	}
	return b.String()
}

// Indices returns a copy of the child indices.
func (p Path) Indices() []uint32 {
	cpy := make([]uint32, len(p.indices))
	copy(cpy, p.indices)
	return cpy
}

// Len returns the depth of the path.
func (p Path) Len() int {
	return len(p.indices)
}

// IsEmpty reports whether the path has no components.
func (p Path) IsEmpty() bool {
	return len(p.indices) == 0
}

// Equal reports whether both paths have the same components.
func (p Path) Equal(other Path) bool {
	if len(p.indices) != len(other.indices) {
		return false
	}
	for i := range p.indices {
		if p.indices[i] != other.indices[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor of (or equal to) p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.indices) > len(p.indices) {
		return false
	}
	for i := range prefix.indices {
		if p.indices[i] != prefix.indices[i] {
			return false
		}
	}
	return true
}

// Child returns a new path extended by the given index.
func (p Path) Child(idx uint32) Path {
	indices := make([]uint32, len(p.indices), len(p.indices)+1)
	copy(indices, p.indices)
	return Path{indices: append(indices, idx)}
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := ParsePath(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
