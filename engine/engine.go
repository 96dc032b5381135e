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

// Package engine runs transactions through the go-ethereum EVM against an
// in-memory account store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// ErrInvalidTransaction wraps the consensus errors returned for transactions
// that cannot be included at all, like a nonce mismatch or missing funds.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Engine executes transactions in sequence on a private state. An Engine is
// not safe for concurrent use.
type Engine struct {
	cfg         Config
	chainConfig *params.ChainConfig
	merged      bool

	inspector *tracing.Hooks // caller supplied, may be nil
	hooks     *tracing.Hooks // inspector merged with touch tracking
	touched   *touchSet
	statedb   *state.StateDB
	txs       uint64

	log log.Logger
}

// New creates an engine with an empty state. Hooks may be nil.
func New(cfg *Config, hooks *tracing.Hooks) (*Engine, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	chainConfig, merged, err := chainConfig(c.Fork, c.ChainID)
	if err != nil {
		return nil, err
	}
	statedb, err := state.New(types.EmptyRootHash, state.NewDatabaseForTesting())
	if err != nil {
		return nil, err
	}
	touched := newTouchSet()
	return &Engine{
		cfg:         c,
		chainConfig: chainConfig,
		merged:      merged,
		inspector:   hooks,
		hooks:       mergeHooks(hooks, touched.hooks()),
		touched:     touched,
		statedb:     statedb,
		log:         log.New("fork", c.Fork),
	}, nil
}

// Inspector returns the hooks the engine was created with.
func (e *Engine) Inspector() *tracing.Hooks {
	return e.inspector
}

// State returns the state the engine executes on.
func (e *Engine) State() *state.StateDB {
	return e.statedb
}

// Config returns the effective configuration, defaults applied.
func (e *Engine) Config() Config {
	return e.cfg
}

// CreateAccount inserts an account into the state, replacing whatever was
// stored at the address before.
func (e *Engine) CreateAccount(addr common.Address, account *Account) {
	e.statedb.CreateAccount(addr)
	if account.Balance != nil {
		e.statedb.SetBalance(addr, account.Balance, tracing.BalanceChangeUnspecified)
	}
	e.statedb.SetNonce(addr, account.Nonce, tracing.NonceChangeUnspecified)
	if len(account.Code) > 0 {
		e.statedb.SetCode(addr, account.Code)
	}
	for key, value := range account.Storage {
		e.statedb.SetState(addr, key, value)
		e.touched.touchSlot(addr, key)
	}
	e.touched.touch(addr)
}

func (e *Engine) blockContext() vm.BlockContext {
	ctx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash: func(n uint64) common.Hash {
			return common.BytesToHash(crypto.Keccak256([]byte(new(big.Int).SetUint64(n).String())))
		},
		Coinbase:    e.cfg.Coinbase,
		GasLimit:    e.cfg.GasLimit,
		BlockNumber: new(big.Int).SetUint64(e.cfg.BlockNumber),
		Time:        e.cfg.Timestamp,
		Difficulty:  new(big.Int).Set(e.cfg.Difficulty),
		BaseFee:     new(big.Int).Set(e.cfg.BaseFee),
		BlobBaseFee: new(big.Int).Set(e.cfg.BlobBaseFee),
	}
	if e.merged {
		ctx.Random = &common.Hash{}
	}
	return ctx
}

// Execute runs a transaction to completion. Transactions which are invalid by
// consensus rules produce an error wrapping ErrInvalidTransaction, while
// failures inside the EVM are reported through Result.Status.
func (e *Engine) Execute(ctx context.Context, tx *Transaction) (*Result, error) {
	gasLimit := tx.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	value := new(big.Int)
	if tx.Value != nil {
		value = tx.Value.ToBig()
	}
	gasPrice := new(big.Int)
	if tx.GasPrice != nil {
		gasPrice = tx.GasPrice.ToBig()
	}
	nonce := e.statedb.GetNonce(tx.From)
	if tx.Nonce != nil {
		nonce = *tx.Nonce
	}
	var (
		msg = &core.Message{
			To:         tx.To,
			From:       tx.From,
			Nonce:      nonce,
			Value:      value,
			GasLimit:   gasLimit,
			GasPrice:   gasPrice,
			GasFeeCap:  new(big.Int).Set(gasPrice),
			GasTipCap:  new(big.Int).Set(gasPrice),
			Data:       tx.Data,
			AccessList: tx.AccessList,
		}
		// Stand-in transaction for the tracer and the log context.
		ltx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       tx.To,
			Value:    value,
			Gas:      gasLimit,
			GasPrice: new(big.Int).Set(gasPrice),
			Data:     tx.Data,
		})
		blockCtx = e.blockContext()
		evm      = vm.NewEVM(blockCtx, state.NewHookedState(e.statedb, e.hooks), e.chainConfig, vm.Config{
			Tracer:    e.hooks,
			NoBaseFee: e.cfg.NoBaseFee,
			ExtraEips: e.cfg.ExtraEips,
		})
	)
	// Seeded accounts are the committed pre-state of the transaction.
	e.statedb.Finalise(false)
	e.txs++
	e.statedb.SetTxContext(ltx.Hash(), int(e.txs-1))
	e.touched.touch(tx.From)
	if tx.To != nil {
		e.touched.touch(*tx.To)
	}

	if e.hooks.OnTxStart != nil {
		e.hooks.OnTxStart(evm.GetVMContext(), ltx, tx.From)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			evm.Cancel()
		case <-done:
		}
	}()
	start := time.Now()
	res, err := core.ApplyMessage(evm, msg, new(core.GasPool).AddGas(gasLimit))
	elapsed := time.Since(start)
	close(done)

	if e.hooks.OnTxEnd != nil {
		var receipt *types.Receipt
		if res != nil {
			receipt = &types.Receipt{GasUsed: res.UsedGas}
		}
		e.hooks.OnTxEnd(receipt, err)
	}
	if err != nil {
		e.log.Debug("Transaction rejected", "from", tx.From, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	result := &Result{
		Status:     statusOf(res.Err),
		Err:        res.Err,
		GasUsed:    res.UsedGas,
		ReturnData: common.CopyBytes(res.ReturnData),
		Logs:       e.txLogs(ltx.Hash()),
		Fork:       e.cfg.Fork,
		Duration:   elapsed,
	}
	// The refund is what was given back after the peak usage.
	if res.MaxUsedGas > res.UsedGas {
		result.GasRefunded = res.MaxUsedGas - res.UsedGas
	}
	if tx.To == nil {
		addr := crypto.CreateAddress(tx.From, nonce)
		result.ContractAddress = &addr
		e.touched.touch(addr)
	}
	result.StateRoot = e.statedb.IntermediateRoot(e.chainConfig.IsEIP158(blockCtx.BlockNumber))
	result.Accounts = e.postState()

	e.log.Debug("Transaction executed", "status", result.Status, "gas", result.GasUsed, "elapsed", common.PrettyDuration(elapsed))
	return result, nil
}

// txLogs returns the logs that survived execution of the given transaction.
func (e *Engine) txLogs(hash common.Hash) []*types.Log {
	var logs []*types.Log
	for _, l := range e.statedb.Logs() {
		if l.TxHash == hash {
			logs = append(logs, l)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Index < logs[j].Index })
	return logs
}

// postState collects the current values of every touched account.
func (e *Engine) postState() map[common.Address]*Account {
	accounts := make(map[common.Address]*Account, e.touched.accounts.Cardinality())
	for _, addr := range e.touched.accounts.ToSlice() {
		if !e.statedb.Exist(addr) {
			continue
		}
		account := &Account{
			Balance: new(uint256.Int).Set(e.statedb.GetBalance(addr)),
			Nonce:   e.statedb.GetNonce(addr),
			Code:    common.CopyBytes(e.statedb.GetCode(addr)),
			Storage: make(map[common.Hash]common.Hash),
		}
		if slots, ok := e.touched.slots[addr]; ok {
			for _, slot := range slots.ToSlice() {
				account.Storage[slot] = e.statedb.GetState(addr, slot)
			}
		}
		accounts[addr] = account
	}
	return accounts
}
