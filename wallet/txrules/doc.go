// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package txrules provides the fee and change rules applied while a transaction
is prepared: how much fee a transaction of a given shape pays, which output
values are dust, and what change output (if any) is returned to the wallet.

Fee Estimation

Fees are computed from a linear size model (see txsizes.Model) and a fee rate
in sat/kvb:

	fee = ceil(rate * (overhead + inputs*perInput + outputs*perOutput) / 1000)

The input selector calls EstimateFee once per candidate input.

Dust and Change

An output is dust when the cost of spending it later exceeds a third of its
value at the relay fee rate.  Change that would be dust is not created; its
value is left to the miner as extra fee.
*/
package txrules
