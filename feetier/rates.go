// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feetier

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/txprep/pkg/unit"
)

// ErrInvalidRateTable is returned by RateTable.Validate.
var ErrInvalidRateTable = errors.New("invalid fee rate table")

// RateTable maps each tier to its current fee rate.  Tables handed out by
// this package are never modified after publication.
type RateTable map[Tier]unit.SatPerKVByte

// Rate returns the rate of the given tier.  A missing or non-positive rate is
// reported as ErrRateUnavailable.
func (t RateTable) Rate(tier Tier) (unit.SatPerKVByte, error) {
	rate, ok := t[tier]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("%w: no rate for tier %v",
			ErrRateUnavailable, tier)
	}
	return rate, nil
}

// Validate checks that the table is non-empty, names only defined tiers and
// carries positive rates.
func (t RateTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidRateTable)
	}
	for tier, rate := range t {
		if !tier.valid() {
			return fmt.Errorf("%w: unknown tier %v",
				ErrInvalidRateTable, tier)
		}
		if rate <= 0 {
			return fmt.Errorf("%w: tier %v has rate %v",
				ErrInvalidRateTable, tier, rate)
		}
	}
	return nil
}

// clone returns a copy of the table.
func (t RateTable) clone() RateTable {
	cpy := make(RateTable, len(t))
	for tier, rate := range t {
		cpy[tier] = rate
	}
	return cpy
}

// RateSource provides current fee rates, typically backed by a fee
// estimator.
type RateSource interface {
	FeeRates(ctx context.Context) (RateTable, error)
}

// StaticRates is a RateSource returning a fixed table.
type StaticRates RateTable

// A compile-time assertion to ensure StaticRates meets the RateSource
// interface.
var _ RateSource = StaticRates(nil)

// FeeRates returns a copy of the fixed table.
func (s StaticRates) FeeRates(_ context.Context) (RateTable, error) {
	table := RateTable(s)
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	return table.clone(), nil
}
