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
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// Account is the pre- or post-state of a single account.
type Account struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// Transaction is the message executed by the engine. A nil To creates a
// contract from Data.
type Transaction struct {
	From       common.Address
	To         *common.Address
	Data       []byte
	Value      *uint256.Int
	GasLimit   uint64       // DefaultGasLimit if zero
	GasPrice   *uint256.Int // fee cap and tip cap alike, zero if nil
	Nonce      *uint64      // the sender's current nonce if nil
	AccessList types.AccessList
}

// Status is the outcome class of an executed transaction.
type Status string

const (
	StatusSuccess Status = "success"
	StatusRevert  Status = "revert"
	StatusHalt    Status = "halt"
)

// Result is the summary of one transaction execution.
type Result struct {
	Status          Status
	Err             error // vm error, nil on success
	GasUsed         uint64
	GasRefunded     uint64
	ReturnData      []byte
	ContractAddress *common.Address // set for contract creation
	Logs            []*types.Log
	StateRoot       common.Hash
	Accounts        map[common.Address]*Account // post-state of the touched accounts
	Fork            string
	Duration        time.Duration
}

// Failed reports whether execution ended in a revert or an exceptional halt.
func (r *Result) Failed() bool {
	return r.Status != StatusSuccess
}

func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, vm.ErrExecutionReverted):
		return StatusRevert
	default:
		return StatusHalt
	}
}
