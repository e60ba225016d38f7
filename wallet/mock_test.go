// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// This file contains mock implementations of the collaborators of a
// Preparer.  They are used to isolate preparation logic from fee estimation,
// address generation and key derivation.

package wallet

import (
	"context"

	"github.com/btcsuite/txprep/feetier"
	"github.com/btcsuite/txprep/keypath"
	"github.com/btcsuite/txprep/wallet/txauthor"
	"github.com/stretchr/testify/mock"
)

// mockRateSource is a mock implementation of the feetier.RateSource
// interface.
type mockRateSource struct {
	mock.Mock
}

// A compile-time assertion to ensure that mockRateSource implements the
// RateSource interface.
var _ feetier.RateSource = (*mockRateSource)(nil)

// FeeRates implements the feetier.RateSource interface.
func (m *mockRateSource) FeeRates(ctx context.Context) (feetier.RateTable,
	error) {

	args := m.Called(ctx)
	table, _ := args.Get(0).(feetier.RateTable)
	return table, args.Error(1)
}

// mockChangeSource is a mock implementation of the ChangeSource interface.
type mockChangeSource struct {
	mock.Mock
}

// A compile-time assertion to ensure that mockChangeSource implements the
// ChangeSource interface.
var _ ChangeSource = (*mockChangeSource)(nil)

// ChangeAddress implements the ChangeSource interface.
func (m *mockChangeSource) ChangeAddress(ctx context.Context) (string,
	error) {

	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// mockPathChecker is a mock implementation of the txauthor.PathChecker
// interface.
type mockPathChecker struct {
	mock.Mock
}

// A compile-time assertion to ensure that mockPathChecker implements the
// PathChecker interface.
var _ txauthor.PathChecker = (*mockPathChecker)(nil)

// CheckPath implements the txauthor.PathChecker interface.
func (m *mockPathChecker) CheckPath(path keypath.Path, pkScript []byte) error {
	args := m.Called(path, pkScript)
	return args.Error(0)
}
