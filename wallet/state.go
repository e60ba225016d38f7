// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"
)

// State is a step of a preparation run.
type State uint8

const (
	// StateStart is the state before any work has been done.
	StateStart State = iota

	// StateResolvingFee looks up the fee rate of the requested tier.
	StateResolvingFee

	// StateSelecting chooses the inputs.
	StateSelecting

	// StateComputingChange derives the change output.
	StateComputingChange

	// StateAssembling builds the prepared transaction.
	StateAssembling

	// StateDone is terminal: a prepared transaction was produced.
	StateDone

	// StateFailed is terminal: the run stopped with an error.
	StateFailed
)

// String returns a human readable name for the state.
func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateResolvingFee:
		return "ResolvingFee"
	case StateSelecting:
		return "Selecting"
	case StateComputingChange:
		return "ComputingChange"
	case StateAssembling:
		return "Assembling"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// IsTerminal reports whether no further transitions can follow s.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Observer is notified of every state a preparation run enters.  err is set
// only for StateFailed.  Observers are called synchronously and must not
// block.
type Observer func(state State, err error)

// stateMachine tracks the progress of one preparation run.
type stateMachine struct {
	state    State
	observer Observer
}

func newStateMachine(observer Observer) *stateMachine {
	m := &stateMachine{state: StateStart, observer: observer}
	m.notify(nil)
	return m
}

func (m *stateMachine) notify(err error) {
	if m.observer != nil {
		m.observer(m.state, err)
	}
}

// advance moves to next unless the context has been cancelled.  Transitions
// only go forward.
func (m *stateMachine) advance(ctx context.Context, next State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.state.IsTerminal() || next <= m.state {
		return fmt.Errorf("invalid state transition %v -> %v", m.state,
			next)
	}

	log.Tracef("Preparation state %v -> %v", m.state, next)

	m.state = next
	m.notify(nil)

	return nil
}

// fail moves to StateFailed and returns err.
func (m *stateMachine) fail(err error) error {
	if m.state.IsTerminal() {
		return err
	}

	log.Tracef("Preparation state %v -> %v: %v", m.state, StateFailed,
		err)

	m.state = StateFailed
	m.notify(err)

	return err
}
