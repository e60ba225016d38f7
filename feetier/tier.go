// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package feetier maps the symbolic fee tiers a caller may ask for (slow,
// normal, fast) to concrete fee rates supplied by an external estimator.
package feetier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/txprep/pkg/unit"
)

var (
	// ErrInvalidFeeTier is matched by InvalidTierError.
	ErrInvalidFeeTier = errors.New("invalid fee tier")

	// ErrRateUnavailable is returned when no usable rate is known for a
	// valid tier.
	ErrRateUnavailable = errors.New("fee estimation unavailable")
)

// Tier is a fee urgency level.
type Tier uint8

const (
	// Slow asks for confirmation within a day or so.
	Slow Tier = iota

	// Normal asks for confirmation within a few blocks.
	Normal

	// Fast asks for confirmation in the next block.
	Fast
)

// Tiers lists every valid tier in ascending urgency.
var Tiers = []Tier{Slow, Normal, Fast}

// String returns the canonical lower-case tier name.
func (t Tier) String() string {
	switch t {
	case Slow:
		return "slow"
	case Normal:
		return "normal"
	case Fast:
		return "fast"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// valid reports whether t is one of the defined tiers.
func (t Tier) valid() bool {
	return t <= Fast
}

// InvalidTierError is returned when a tier name is not recognized.
type InvalidTierError struct {
	Name string
}

// Error implements the error interface.
func (e InvalidTierError) Error() string {
	return fmt.Sprintf("invalid fee tier %q, want one of slow, normal or "+
		"fast", e.Name)
}

// Is allows errors.Is to match ErrInvalidFeeTier.
func (e InvalidTierError) Is(target error) bool {
	return target == ErrInvalidFeeTier
}

// ParseTier parses a tier name.  Matching ignores case and surrounding
// whitespace.
func ParseTier(name string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "slow":
		return Slow, nil
	case "normal":
		return Normal, nil
	case "fast":
		return Fast, nil
	}
	return 0, InvalidTierError{Name: name}
}

// IsValid reports whether name is a recognized tier name.
func IsValid(name string) bool {
	_, err := ParseTier(name)
	return err == nil
}

// Resolve returns the fee rate of the named tier from table.
func Resolve(name string, table RateTable) (unit.SatPerKVByte, error) {
	tier, err := ParseTier(name)
	if err != nil {
		return 0, err
	}
	return table.Rate(tier)
}
