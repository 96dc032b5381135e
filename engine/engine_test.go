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

package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/core/vm/program"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/jts13/etherealog/tracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var target = common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")

// run installs code at target, calls it and returns the result together with
// the recorded steps.
func run(t *testing.T, cfg *Config, code []byte, gas uint64) (*Result, []*tracer.Step) {
	t.Helper()
	rec := tracer.NewRecorder()
	e, err := New(cfg, tracer.New(nil, rec).Hooks())
	require.NoError(t, err)
	e.CreateAccount(target, &Account{Code: code})
	res, err := e.Execute(context.Background(), &Transaction{To: &target, GasLimit: gas})
	require.NoError(t, err)
	return res, rec.Steps()
}

func TestExecuteSimple(t *testing.T) {
	res, steps := run(t, nil, []byte{byte(vm.PUSH1), 0x40}, 30_000_000)

	require.Len(t, steps, 2, spew.Sdump(steps))
	assert.Equal(t, uint64(0), steps[0].Pc)
	assert.Equal(t, vm.PUSH1, steps[0].Op)
	assert.Equal(t, uint64(29979000), steps[0].Gas)
	assert.Equal(t, uint64(3), steps[0].GasCost)
	assert.Empty(t, steps[0].Stack)
	assert.Equal(t, 1, steps[0].Depth)

	assert.Equal(t, uint64(2), steps[1].Pc)
	assert.Equal(t, vm.STOP, steps[1].Op)
	assert.Equal(t, uint64(29978997), steps[1].Gas)
	assert.Equal(t, uint64(0), steps[1].GasCost)
	require.Len(t, steps[1].Stack, 1)
	word := uint256.Int(steps[1].Stack[0])
	assert.Equal(t, uint64(0x40), word.Uint64())

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, uint64(21003), res.GasUsed)
}

func TestExecuteEmpty(t *testing.T) {
	res, steps := run(t, nil, nil, 30_000_000)
	assert.Empty(t, steps)
	assert.Equal(t, uint64(21000), res.GasUsed)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, res.ReturnData)
}

func TestExecuteNonExistent(t *testing.T) {
	e, err := New(nil, nil)
	require.NoError(t, err)
	to := common.HexToAddress("0x1234")
	res, err := e.Execute(context.Background(), &Transaction{To: &to})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, uint64(21000), res.GasUsed)
}

// The example trace of EIP-3155.
func TestExecuteTraceExample(t *testing.T) {
	code := common.FromHex("0x604080536040604055604060006040600060ff5afa6040f3")
	res, steps := run(t, nil, code, DefaultGasLimit)

	require.Len(t, steps, 15, spew.Sdump(steps))
	assert.Equal(t, uint64(16756216), steps[0].Gas)

	byOp := make(map[vm.OpCode]*tracer.Step)
	for _, step := range steps {
		byOp[step.Op] = step
		assert.Empty(t, step.Error)
	}
	assert.Equal(t, uint64(22100), byOp[vm.SSTORE].GasCost)
	assert.Equal(t, uint64(16472646), byOp[vm.STATICCALL].GasCost)

	// Memory is captured before the instruction, so the step after MSTORE8
	// sees the expanded memory.
	assert.Empty(t, byOp[vm.MSTORE8].Memory)
	after := steps[3]
	require.Len(t, after.Memory, 96)
	assert.Equal(t, byte(0x40), after.Memory[64])
	assert.Equal(t, 96, after.MemSize)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []byte{0x40}, res.ReturnData)
	assert.Equal(t, uint64(0x60a8+21000), res.GasUsed)

	post := res.Accounts[target]
	require.NotNil(t, post)
	slot := common.HexToHash("0x40")
	assert.Equal(t, slot, post.Storage[slot])
}

func TestExecuteRevert(t *testing.T) {
	code := program.New().Push(0).Push(0).Op(vm.REVERT).Bytes()
	res, steps := run(t, nil, code, DefaultGasLimit)

	assert.Equal(t, StatusRevert, res.Status)
	assert.ErrorIs(t, res.Err, vm.ErrExecutionReverted)
	assert.True(t, res.Failed())
	require.Len(t, steps, 3)
	assert.Equal(t, vm.ErrExecutionReverted.Error(), steps[2].Error)
}

func TestExecuteInvalidOpcode(t *testing.T) {
	res, steps := run(t, nil, []byte{byte(vm.INVALID)}, DefaultGasLimit)

	assert.Equal(t, StatusHalt, res.Status)
	// An exceptional halt consumes all gas.
	assert.Equal(t, uint64(DefaultGasLimit), res.GasUsed)
	require.Len(t, steps, 1)
	assert.Contains(t, steps[0].Error, "invalid opcode")
}

func TestExecuteCreate(t *testing.T) {
	runtime := []byte{byte(vm.PUSH1), 0x01, byte(vm.STOP)}
	from := common.HexToAddress("0xaaaa")

	e, err := New(nil, nil)
	require.NoError(t, err)
	e.CreateAccount(from, &Account{Balance: uint256.NewInt(1)})
	res, err := e.Execute(context.Background(), &Transaction{
		From: from,
		Data: program.New().ReturnViaCodeCopy(runtime).Bytes(),
	})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status, "err: %v", res.Err)

	want := crypto.CreateAddress(from, 0)
	require.NotNil(t, res.ContractAddress)
	assert.Equal(t, want, *res.ContractAddress)
	require.Contains(t, res.Accounts, want)
	assert.Equal(t, runtime, res.Accounts[want].Code)
	assert.Equal(t, uint64(1), res.Accounts[from].Nonce)
	assert.Equal(t, runtime, e.State().GetCode(want))
}

func TestExecuteStatePersists(t *testing.T) {
	code := program.New().Sstore(1, 2).Bytes()
	e, err := New(nil, nil)
	require.NoError(t, err)

	seeded := common.HexToHash("0x07")
	e.CreateAccount(target, &Account{
		Balance: uint256.NewInt(1000),
		Nonce:   3,
		Code:    code,
		Storage: map[common.Hash]common.Hash{seeded: common.HexToHash("0x08")},
	})
	for i := 0; i < 2; i++ {
		res, err := e.Execute(context.Background(), &Transaction{To: &target})
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, res.Status)

		post := res.Accounts[target]
		require.NotNil(t, post)
		assert.Equal(t, uint64(1000), post.Balance.Uint64())
		assert.Equal(t, uint64(3), post.Nonce)
		assert.Equal(t, common.HexToHash("0x08"), post.Storage[seeded])
		assert.Equal(t, common.HexToHash("0x02"), post.Storage[common.HexToHash("0x01")])
		// The sender nonce carries over between executions.
		assert.Equal(t, uint64(i+1), res.Accounts[common.Address{}].Nonce)
		assert.NotEqual(t, common.Hash{}, res.StateRoot)
	}
}

func TestExecuteLogs(t *testing.T) {
	code := program.New().Push(0).Push(0).Op(vm.LOG0).Bytes()
	rec := tracer.NewRecorder()
	e, err := New(nil, tracer.New(nil, rec).Hooks())
	require.NoError(t, err)
	e.CreateAccount(target, &Account{Code: code})

	res, err := e.Execute(context.Background(), &Transaction{To: &target})
	require.NoError(t, err)
	require.Len(t, res.Logs, 1)
	assert.Equal(t, target, res.Logs[0].Address)

	var logs []*tracer.Log
	for _, ev := range rec.Events() {
		if l, ok := ev.(*tracer.Log); ok {
			logs = append(logs, l)
		}
	}
	require.Len(t, logs, 1)
	assert.Equal(t, 1, logs[0].Depth)
}

func TestExecuteFrameDepths(t *testing.T) {
	child := common.HexToAddress("0x0bad")
	code := program.New().
		Call(nil, child, 0, 0, 0, 0, 0).Op(vm.POP).
		Push(0).Push(0).Op(vm.LOG0).
		Bytes()

	rec := tracer.NewRecorder()
	e, err := New(nil, tracer.New(nil, rec).Hooks())
	require.NoError(t, err)
	e.CreateAccount(target, &Account{Code: code})
	e.CreateAccount(child, &Account{Code: program.New().Push(0).Push(0).Op(vm.REVERT).Bytes()})

	res, err := e.Execute(context.Background(), &Transaction{To: &target})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)

	var (
		frames []int
		exits  []*tracer.Exit
	)
	for _, ev := range rec.Events() {
		switch ev := ev.(type) {
		case *tracer.Enter:
			assert.Equal(t, len(frames)+1, ev.Depth)
			frames = append(frames, ev.Depth)
		case *tracer.Step:
			require.NotEmpty(t, frames)
			assert.Equal(t, frames[len(frames)-1], ev.Depth, "step %s", ev.OpName)
		case *tracer.Log:
			require.NotEmpty(t, frames)
			assert.Equal(t, frames[len(frames)-1], ev.Depth)
		case *tracer.Exit:
			require.NotEmpty(t, frames)
			assert.Equal(t, frames[len(frames)-1], ev.Depth)
			frames = frames[:len(frames)-1]
			exits = append(exits, ev)
		}
	}
	assert.Empty(t, frames)
	require.Len(t, exits, 2)
	assert.Equal(t, 2, exits[0].Depth)
	assert.True(t, exits[0].Reverted)
	assert.Equal(t, 1, exits[1].Depth)
	assert.False(t, exits[1].Reverted)
}

func TestExecuteInsufficientFunds(t *testing.T) {
	e, err := New(nil, nil)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), &Transaction{To: &target, Value: uint256.NewInt(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransaction)
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
}

func TestExecuteRefund(t *testing.T) {
	slot := common.HexToHash("0x01")
	e, err := New(nil, nil)
	require.NoError(t, err)
	e.CreateAccount(target, &Account{
		// PUSH1 0 PUSH1 1 SSTORE
		Code:    []byte{byte(vm.PUSH1), 0x00, byte(vm.PUSH1), 0x01, byte(vm.SSTORE)},
		Storage: map[common.Hash]common.Hash{slot: common.HexToHash("0x01")},
	})
	res, err := e.Execute(context.Background(), &Transaction{To: &target})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status, "err: %v", res.Err)

	// 21000 + 3 + 3 + 5000 before the clearing refund of 4800.
	assert.Equal(t, uint64(4800), res.GasRefunded)
	assert.Equal(t, uint64(26006-4800), res.GasUsed)
	assert.Equal(t, common.Hash{}, res.Accounts[target].Storage[slot])
}

func TestExecuteNonce(t *testing.T) {
	from := common.HexToAddress("0xaaaa")
	e, err := New(nil, nil)
	require.NoError(t, err)
	e.CreateAccount(from, &Account{Nonce: 3})

	for _, tt := range []struct {
		nonce uint64
		want  error
	}{
		{2, core.ErrNonceTooLow},
		{4, core.ErrNonceTooHigh},
	} {
		nonce := tt.nonce
		_, err := e.Execute(context.Background(), &Transaction{From: from, To: &target, Nonce: &nonce})
		assert.ErrorIs(t, err, ErrInvalidTransaction)
		assert.ErrorIs(t, err, tt.want)
	}

	nonce := uint64(3)
	res, err := e.Execute(context.Background(), &Transaction{From: from, Nonce: &nonce})
	require.NoError(t, err)
	require.NotNil(t, res.ContractAddress)
	assert.Equal(t, crypto.CreateAddress(from, 3), *res.ContractAddress)
	assert.Equal(t, uint64(4), res.Accounts[from].Nonce)
}

func TestExecuteBaseFee(t *testing.T) {
	from := common.HexToAddress("0xaaaa")
	cfg := DefaultConfig
	cfg.NoBaseFee = false
	cfg.BaseFee = big.NewInt(7)

	e, err := New(&cfg, nil)
	require.NoError(t, err)
	e.CreateAccount(from, &Account{Balance: uint256.NewInt(1_000_000)})

	// Zero priced transactions are below the base fee.
	_, err = e.Execute(context.Background(), &Transaction{From: from, To: &target, GasLimit: 100_000})
	assert.ErrorIs(t, err, ErrInvalidTransaction)
	assert.ErrorIs(t, err, core.ErrFeeCapTooLow)

	res, err := e.Execute(context.Background(), &Transaction{
		From:     from,
		To:       &target,
		GasLimit: 100_000,
		GasPrice: uint256.NewInt(7),
	})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, uint64(21000), res.GasUsed)
	assert.Equal(t, uint64(1_000_000-7*21000), res.Accounts[from].Balance.Uint64())
}

func TestExecuteIntrinsicGasTooLow(t *testing.T) {
	e, err := New(nil, nil)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), &Transaction{To: &target, GasLimit: 20000})
	assert.ErrorIs(t, err, core.ErrIntrinsicGas)
}

func TestExecuteCancel(t *testing.T) {
	p, loop := program.New().Jumpdest()
	code := p.Jump(loop).Bytes()

	e, err := New(nil, nil)
	require.NoError(t, err)
	e.CreateAccount(target, &Account{Code: code})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = e.Execute(ctx, &Transaction{To: &target, GasLimit: 10_000_000_000})
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "unexpected error: %v", err)
}

func TestNewUnknownFork(t *testing.T) {
	_, err := New(&Config{Fork: "atlantis"}, nil)
	assert.ErrorIs(t, err, ErrUnknownFork)
}

func TestForkRules(t *testing.T) {
	// PUSH0 only exists from Shanghai on.
	code := []byte{byte(vm.PUSH0)}
	for _, tt := range []struct {
		fork string
		want Status
	}{
		{"london", StatusHalt},
		{"paris", StatusHalt},
		{"shanghai", StatusSuccess},
		{"cancun", StatusSuccess},
		{"prague", StatusSuccess},
	} {
		t.Run(tt.fork, func(t *testing.T) {
			res, _ := run(t, &Config{Fork: tt.fork}, code, DefaultGasLimit)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.fork, res.Fork)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig
	assert.NoError(t, cfg.Validate())

	cfg.ExtraEips = []int{123456}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig
	cfg.ChainID = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestChainConfigPetersburg(t *testing.T) {
	cfg, merged, err := chainConfig("constantinople", 1)
	require.NoError(t, err)
	assert.False(t, merged)
	assert.True(t, cfg.IsConstantinople(common.Big0))
	assert.False(t, cfg.IsPetersburg(common.Big0))

	cfg, merged, err = chainConfig("prague", 1)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.True(t, cfg.IsPrague(common.Big0, 0))
}
