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

package tracer

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dummyScope struct {
	tracing.OpContext
	memory []byte
	stack  []uint256.Int
}

func (s *dummyScope) MemoryData() []byte       { return s.memory }
func (s *dummyScope) StackData() []uint256.Int { return s.stack }

type dummyState struct {
	tracing.StateDB
	refund uint64
}

func (s *dummyState) GetRefund() uint64 { return s.refund }

func newTestTracer(cfg *Config) (*Tracer, *Recorder, *dummyState) {
	var (
		rec   = NewRecorder()
		db    = new(dummyState)
		t     = New(cfg, rec)
		hooks = t.Hooks()
	)
	hooks.OnTxStart(&tracing.VMContext{StateDB: db}, types.NewTx(&types.LegacyTx{}), common.Address{})
	return t, rec, db
}

func TestStepEmittedOnNextStep(t *testing.T) {
	tr, rec, _ := newTestTracer(nil)
	scope := new(dummyScope)

	tr.OnOpcode(0, byte(vm.PUSH1), 100, 3, scope, nil, 1, nil)
	assert.Empty(t, rec.Events(), "step must stay pending until complete")

	scope.stack = []uint256.Int{*uint256.NewInt(0x40)}
	tr.OnOpcode(2, byte(vm.STOP), 97, 0, scope, nil, 1, nil)
	require.Len(t, rec.Events(), 1)

	tr.OnTxEnd(&types.Receipt{GasUsed: 3}, nil)
	steps := rec.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "PUSH1", steps[0].OpName)
	assert.Empty(t, steps[0].Stack)
	assert.Equal(t, "STOP", steps[1].OpName)
	assert.Equal(t, uint64(97), steps[1].Gas)
	assert.Len(t, steps[1].Stack, 1)
}

func TestFaultAttachedToStep(t *testing.T) {
	tr, rec, _ := newTestTracer(nil)
	scope := new(dummyScope)

	tr.OnOpcode(0, byte(vm.PUSH1), 100, 3, scope, nil, 1, nil)
	tr.OnOpcode(2, byte(vm.REVERT), 97, 0, scope, nil, 1, nil)
	tr.OnFault(2, byte(vm.REVERT), 97, 0, scope, 1, vm.ErrExecutionReverted)
	tr.OnExit(0, nil, 3, vm.ErrExecutionReverted, true)

	events := rec.Events()
	require.Len(t, events, 3)
	step := events[1].(*Step)
	assert.Equal(t, vm.REVERT, step.Op)
	assert.Equal(t, "execution reverted", step.Error)
	exit := events[2].(*Exit)
	assert.True(t, exit.Reverted)
	assert.Equal(t, "execution reverted", exit.Error)
}

func TestFaultWithoutPendingStep(t *testing.T) {
	tr, rec, _ := newTestTracer(&Config{Limit: 1})
	scope := new(dummyScope)

	tr.OnOpcode(0, byte(vm.PUSH1), 100, 3, scope, nil, 1, nil)
	tr.OnOpcode(2, byte(vm.ADD), 97, 3, scope, nil, 1, nil)
	tr.OnFault(2, byte(vm.ADD), 97, 3, scope, 1, errors.New("stack underflow"))

	steps := rec.Steps()
	require.Len(t, steps, 1)
	assert.Empty(t, steps[0].Error)
	assert.True(t, tr.Truncated())
}

func TestSnapshotsAreCopied(t *testing.T) {
	tr, rec, db := newTestTracer(nil)
	scope := &dummyScope{
		memory: []byte{1, 2, 3},
		stack:  []uint256.Int{*uint256.NewInt(7)},
	}
	db.refund = 4800
	tr.OnOpcode(0, byte(vm.POP), 100, 2, scope, nil, 1, nil)
	scope.memory[0] = 0xff
	scope.stack[0].SetUint64(8)
	tr.OnTxEnd(nil, nil)

	step := rec.Steps()[0]
	assert.Equal(t, []byte{1, 2, 3}, []byte(step.Memory))
	assert.Equal(t, 3, step.MemSize)
	word := uint256.Int(step.Stack[0])
	assert.Equal(t, uint64(7), word.Uint64())
	assert.Equal(t, uint64(4800), step.Refund)
}

func TestConfigDisables(t *testing.T) {
	tr, rec, _ := newTestTracer(&Config{DisableMemory: true, DisableStack: true, DisableFrames: true, EnableReturnData: true})
	scope := &dummyScope{memory: make([]byte, 32), stack: []uint256.Int{{}}}

	tr.OnEnter(0, byte(vm.CALL), common.Address{1}, common.Address{2}, nil, 100, big.NewInt(0))
	tr.OnOpcode(0, byte(vm.POP), 100, 2, scope, []byte{0xaa}, 1, nil)
	tr.OnLog(&types.Log{Address: common.Address{2}})
	tr.OnExit(0, nil, 2, nil, false)

	events := rec.Events()
	require.Len(t, events, 1)
	step := events[0].(*Step)
	assert.Nil(t, step.Stack)
	assert.Nil(t, step.Memory)
	assert.Equal(t, 32, step.MemSize)
	assert.Equal(t, []byte{0xaa}, []byte(step.ReturnData))
}

func TestFrameEvents(t *testing.T) {
	tr, rec, _ := newTestTracer(nil)
	scope := new(dummyScope)
	caller, callee := common.HexToAddress("0x01"), common.HexToAddress("0x02")

	tr.OnEnter(0, byte(vm.CALL), caller, callee, []byte{0xde, 0xad}, 1000, big.NewInt(5))
	tr.OnOpcode(0, byte(vm.CALL), 900, 700, scope, nil, 1, nil)
	tr.OnEnter(1, byte(vm.STATICCALL), callee, caller, nil, 600, nil)
	tr.OnOpcode(0, byte(vm.LOG0), 600, 375, scope, nil, 2, nil)
	tr.OnLog(&types.Log{Address: caller, Topics: []common.Hash{{1}}, Data: []byte{1}})
	tr.OnExit(1, nil, 375, nil, false)
	tr.OnExit(0, []byte{1}, 1075, nil, false)
	tr.OnTxEnd(nil, nil)

	var kinds []EventType
	for _, ev := range rec.Events() {
		kinds = append(kinds, ev.Type())
	}
	assert.Equal(t, []EventType{EnterEvent, StepEvent, EnterEvent, StepEvent, LogEvent, ExitEvent, ExitEvent}, kinds)

	events := rec.Events()
	enter := events[0].(*Enter)
	assert.Equal(t, "CALL", enter.CallType)
	assert.Equal(t, int64(5), enter.Value.ToInt().Int64())
	assert.Nil(t, events[2].(*Enter).Value)

	// Frames share the depth of the steps they contain.
	assert.Equal(t, events[1].(*Step).Depth, enter.Depth)
	assert.Equal(t, events[3].(*Step).Depth, events[2].(*Enter).Depth)
	assert.Equal(t, 2, events[4].(*Log).Depth)
	assert.Equal(t, 2, events[5].(*Exit).Depth)
	assert.Equal(t, 1, events[6].(*Exit).Depth)
}

func TestRecorderTake(t *testing.T) {
	rec := NewRecorder()
	assert.Equal(t, []Event{}, rec.Take())
	rec.Emit(&Step{})
	rec.Emit(&Exit{})
	taken := rec.Take()
	assert.Len(t, taken, 2)
	assert.Empty(t, rec.Events())
}

func TestTee(t *testing.T) {
	var a, b []Event
	d := Tee(DelegateFunc(func(ev Event) { a = append(a, ev) }), DelegateFunc(func(ev Event) { b = append(b, ev) }))
	tr := New(nil, d)
	tr.OnLog(&types.Log{})
	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
	assert.NotNil(t, tr.Delegate())
}

func TestJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf)
	w.Emit(&Step{
		Pc:      2,
		Op:      vm.STOP,
		OpName:  "STOP",
		Gas:     29978997,
		Stack:   []hexutil.U256{hexutil.U256(*uint256.NewInt(0x40))},
		Depth:   1,
		Memory:  nil,
		GasCost: 0,
	})
	w.Emit(&Exit{Depth: 1, GasUsed: 3})
	require.NoError(t, w.Err())
	assert.Equal(t, 2, w.Count())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var step map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &step))
	assert.Equal(t, "step", step["type"])
	assert.Equal(t, []any{"0x40"}, step["stack"])
	assert.Equal(t, float64(0), step["op"])
	assert.NotContains(t, step, "memory")
	assert.NotContains(t, step, "error")

	var exit map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &exit))
	assert.Equal(t, "exit", exit["type"])
	assert.Equal(t, false, exit["reverted"])
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.n++
	return 0, errors.New("disk full")
}

func TestJSONLWriterStopsOnError(t *testing.T) {
	out := new(failingWriter)
	w := NewJSONLWriter(out)
	w.Emit(&Step{})
	w.Emit(&Step{})
	assert.EqualError(t, w.Err(), "disk full")
	assert.Equal(t, 1, out.n)
	assert.Zero(t, w.Count())
}
