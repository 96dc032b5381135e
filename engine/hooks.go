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
	"math/big"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
)

// touchSet remembers which accounts and storage slots a transaction or the
// pre-state seeding has visited, so that the post-state can be reported
// without walking the whole state.
type touchSet struct {
	accounts mapset.Set[common.Address]
	slots    map[common.Address]mapset.Set[common.Hash]
}

func newTouchSet() *touchSet {
	return &touchSet{
		accounts: mapset.NewThreadUnsafeSet[common.Address](),
		slots:    make(map[common.Address]mapset.Set[common.Hash]),
	}
}

func (t *touchSet) touch(addr common.Address) {
	t.accounts.Add(addr)
}

func (t *touchSet) touchSlot(addr common.Address, slot common.Hash) {
	t.accounts.Add(addr)
	set, ok := t.slots[addr]
	if !ok {
		set = mapset.NewThreadUnsafeSet[common.Hash]()
		t.slots[addr] = set
	}
	set.Add(slot)
}

func (t *touchSet) hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnEnter: func(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
			t.touch(from)
			t.touch(to)
		},
		OnBalanceChange: func(addr common.Address, prev, new *big.Int, reason tracing.BalanceChangeReason) {
			t.touch(addr)
		},
		OnNonceChange: func(addr common.Address, prev, new uint64) {
			t.touch(addr)
		},
		OnCodeChange: func(addr common.Address, prevCodeHash common.Hash, prevCode []byte, codeHash common.Hash, code []byte) {
			t.touch(addr)
		},
		OnStorageChange: func(addr common.Address, slot common.Hash, prev, new common.Hash) {
			t.touchSlot(addr, slot)
		},
	}
}

// mergeHooks returns a hook set calling into both a and b, a first. Only the
// transaction level hooks the engine drives are merged; block and chain
// hooks of a are kept as they are.
func mergeHooks(a, b *tracing.Hooks) *tracing.Hooks {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	m := *a
	if a.OnTxStart == nil {
		m.OnTxStart = b.OnTxStart
	} else if b.OnTxStart != nil {
		m.OnTxStart = func(env *tracing.VMContext, tx *types.Transaction, from common.Address) {
			a.OnTxStart(env, tx, from)
			b.OnTxStart(env, tx, from)
		}
	}
	if a.OnTxEnd == nil {
		m.OnTxEnd = b.OnTxEnd
	} else if b.OnTxEnd != nil {
		m.OnTxEnd = func(receipt *types.Receipt, err error) {
			a.OnTxEnd(receipt, err)
			b.OnTxEnd(receipt, err)
		}
	}
	if a.OnEnter == nil {
		m.OnEnter = b.OnEnter
	} else if b.OnEnter != nil {
		m.OnEnter = func(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
			a.OnEnter(depth, typ, from, to, input, gas, value)
			b.OnEnter(depth, typ, from, to, input, gas, value)
		}
	}
	if a.OnExit == nil {
		m.OnExit = b.OnExit
	} else if b.OnExit != nil {
		m.OnExit = func(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
			a.OnExit(depth, output, gasUsed, err, reverted)
			b.OnExit(depth, output, gasUsed, err, reverted)
		}
	}
	if a.OnOpcode == nil {
		m.OnOpcode = b.OnOpcode
	} else if b.OnOpcode != nil {
		m.OnOpcode = func(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
			a.OnOpcode(pc, op, gas, cost, scope, rData, depth, err)
			b.OnOpcode(pc, op, gas, cost, scope, rData, depth, err)
		}
	}
	if a.OnFault == nil {
		m.OnFault = b.OnFault
	} else if b.OnFault != nil {
		m.OnFault = func(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, depth int, err error) {
			a.OnFault(pc, op, gas, cost, scope, depth, err)
			b.OnFault(pc, op, gas, cost, scope, depth, err)
		}
	}
	if a.OnLog == nil {
		m.OnLog = b.OnLog
	} else if b.OnLog != nil {
		m.OnLog = func(log *types.Log) {
			a.OnLog(log)
			b.OnLog(log)
		}
	}
	if a.OnBalanceChange == nil {
		m.OnBalanceChange = b.OnBalanceChange
	} else if b.OnBalanceChange != nil {
		m.OnBalanceChange = func(addr common.Address, prev, new *big.Int, reason tracing.BalanceChangeReason) {
			a.OnBalanceChange(addr, prev, new, reason)
			b.OnBalanceChange(addr, prev, new, reason)
		}
	}
	if a.OnNonceChange == nil {
		m.OnNonceChange = b.OnNonceChange
	} else if b.OnNonceChange != nil {
		m.OnNonceChange = func(addr common.Address, prev, new uint64) {
			a.OnNonceChange(addr, prev, new)
			b.OnNonceChange(addr, prev, new)
		}
	}
	if a.OnCodeChange == nil {
		m.OnCodeChange = b.OnCodeChange
	} else if b.OnCodeChange != nil {
		m.OnCodeChange = func(addr common.Address, prevCodeHash common.Hash, prevCode []byte, codeHash common.Hash, code []byte) {
			a.OnCodeChange(addr, prevCodeHash, prevCode, codeHash, code)
			b.OnCodeChange(addr, prevCodeHash, prevCode, codeHash, code)
		}
	}
	if a.OnStorageChange == nil {
		m.OnStorageChange = b.OnStorageChange
	} else if b.OnStorageChange != nil {
		m.OnStorageChange = func(addr common.Address, slot common.Hash, prev, new common.Hash) {
			a.OnStorageChange(addr, slot, prev, new)
			b.OnStorageChange(addr, slot, prev, new)
		}
	}
	return &m
}
