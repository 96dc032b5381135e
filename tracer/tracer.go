// Copyright 2025 The etherealog Authors
// This file is part of the etherealog library.
//
// The etherealog library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The etherealog library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the etherealog library. If not, see <http://www.gnu.org/licenses/>.

// Package tracer turns the per-instruction callbacks of the go-ethereum
// interpreter into a buffered, serializable event log.
package tracer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
)

// Config are the configuration options for the event recorder.
type Config struct {
	DisableMemory    bool // omit memory snapshots from steps
	DisableStack     bool // omit stack snapshots from steps
	EnableReturnData bool // include the last call's return data in steps
	DisableFrames    bool // only emit steps, no enter/exit/log events
	Limit            int  // maximum number of steps to record, 0 is unlimited
}

// Tracer records execution events and hands them to a Delegate. A step is
// captured when the interpreter announces it and emitted once it is known to
// be complete, so that a fault raised by the instruction is attached to it.
//
// Tracer is not safe for concurrent use; the interpreter drives it from a
// single goroutine.
type Tracer struct {
	cfg      Config
	delegate Delegate
	env      *tracing.VMContext

	pending   *Step // step announced but not yet emitted
	frames    int   // number of open call frames
	steps     int
	truncated bool
}

// New creates a tracer which emits into the given delegate.
func New(cfg *Config, delegate Delegate) *Tracer {
	if cfg == nil {
		cfg = new(Config)
	}
	return &Tracer{cfg: *cfg, delegate: delegate}
}

// Hooks returns the callbacks to install into the EVM.
func (t *Tracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnTxStart: t.OnTxStart,
		OnTxEnd:   t.OnTxEnd,
		OnEnter:   t.OnEnter,
		OnExit:    t.OnExit,
		OnOpcode:  t.OnOpcode,
		OnFault:   t.OnFault,
		OnLog:     t.OnLog,
	}
}

// Delegate returns the receiver of the emitted events.
func (t *Tracer) Delegate() Delegate {
	return t.delegate
}

// Truncated reports whether steps were dropped because of the step limit.
func (t *Tracer) Truncated() bool {
	return t.truncated
}

func (t *Tracer) OnTxStart(env *tracing.VMContext, tx *types.Transaction, from common.Address) {
	t.env = env
	t.pending = nil
	t.frames = 0
	t.steps = 0
	t.truncated = false
}

func (t *Tracer) OnTxEnd(receipt *types.Receipt, err error) {
	t.flush()
}

func (t *Tracer) OnEnter(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	t.flush()
	t.frames++
	if t.cfg.DisableFrames {
		return
	}
	enter := &Enter{
		Depth:    depth + 1,
		CallType: vm.OpCode(typ).String(),
		From:     from,
		To:       to,
		Input:    common.CopyBytes(input),
		Gas:      gas,
	}
	if value != nil {
		enter.Value = (*hexutil.Big)(new(big.Int).Set(value))
	}
	t.emit(enter)
}

func (t *Tracer) OnExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	t.flush()
	if t.frames > 0 {
		t.frames--
	}
	if t.cfg.DisableFrames {
		return
	}
	exit := &Exit{
		Depth:    depth + 1,
		Output:   common.CopyBytes(output),
		GasUsed:  gasUsed,
		Reverted: reverted,
	}
	if err != nil {
		exit.Error = err.Error()
	}
	t.emit(exit)
}

func (t *Tracer) OnOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	t.flush()
	if t.cfg.Limit != 0 && t.steps >= t.cfg.Limit {
		t.truncated = true
		return
	}
	t.steps++

	var (
		opcode = vm.OpCode(op)
		memory = scope.MemoryData()
	)
	step := &Step{
		Pc:      pc,
		Op:      opcode,
		OpName:  opcode.String(),
		Gas:     gas,
		GasCost: cost,
		MemSize: len(memory),
		Depth:   depth,
	}
	if !t.cfg.DisableStack {
		data := scope.StackData()
		step.Stack = make([]hexutil.U256, len(data))
		for i, word := range data {
			step.Stack[i] = hexutil.U256(word)
		}
	}
	if !t.cfg.DisableMemory && len(memory) > 0 {
		step.Memory = common.CopyBytes(memory)
	}
	if t.cfg.EnableReturnData && len(rData) > 0 {
		step.ReturnData = common.CopyBytes(rData)
	}
	if t.env != nil && t.env.StateDB != nil {
		step.Refund = t.env.StateDB.GetRefund()
	}
	if err != nil {
		step.Error = err.Error()
	}
	t.pending = step
}

func (t *Tracer) OnFault(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, depth int, err error) {
	if step := t.pending; step != nil && step.Pc == pc && step.Depth == depth && err != nil {
		step.Error = err.Error()
	}
	// A fault for a step dropped by the limit has nothing to attach to.
	t.flush()
}

func (t *Tracer) OnLog(log *types.Log) {
	t.flush()
	if t.cfg.DisableFrames {
		return
	}
	t.emit(&Log{
		Depth:   t.frames,
		Address: log.Address,
		Topics:  append([]common.Hash{}, log.Topics...),
		Data:    common.CopyBytes(log.Data),
	})
}

// flush emits the pending step, if any.
func (t *Tracer) flush() {
	if t.pending == nil {
		return
	}
	step := t.pending
	t.pending = nil
	t.emit(step)
}

func (t *Tracer) emit(ev Event) {
	if t.delegate != nil {
		t.delegate.Emit(ev)
	}
}
