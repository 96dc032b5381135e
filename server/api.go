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

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/jts13/etherealog/engine"
	"github.com/jts13/etherealog/tracer"
)

// evalTarget is the address eval installs the submitted code at.
var evalTarget = common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")

// accountJSON is an account of the request pre-state. Quantities accept
// both hex and decimal notation.
type accountJSON struct {
	Address common.Address        `json:"address"`
	Balance *math.HexOrDecimal256 `json:"balance"`
	Nonce   math.HexOrDecimal64   `json:"nonce"`
	Code    hexutil.Bytes         `json:"code,omitempty"`
	Storage storageJSON           `json:"storage"`
}

// storageJSON is a storage map whose keys and values may be short hex or
// decimal words.
type storageJSON map[common.Hash]common.Hash

func (s *storageJSON) UnmarshalJSON(input []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(input, &raw); err != nil {
		return err
	}
	out := make(storageJSON, len(raw))
	for k, v := range raw {
		key, ok := math.ParseBig256(k)
		if !ok {
			return fmt.Errorf("invalid storage key %q", k)
		}
		val, ok := math.ParseBig256(v)
		if !ok {
			return fmt.Errorf("invalid storage value %q", v)
		}
		out[common.BigToHash(key)] = common.BigToHash(val)
	}
	*s = out
	return nil
}

type transactionJSON struct {
	Type       string                `json:"type"` // "call" or "create"
	Address    *common.Address       `json:"address,omitempty"`
	From       *common.Address       `json:"from,omitempty"`
	Data       hexutil.Bytes         `json:"data,omitempty"`
	Value      *math.HexOrDecimal256 `json:"value,omitempty"`
	GasLimit   *math.HexOrDecimal64  `json:"gasLimit,omitempty"`
	GasPrice   *math.HexOrDecimal256 `json:"gasPrice,omitempty"`
	Nonce      *math.HexOrDecimal64  `json:"nonce,omitempty"`
	AccessList types.AccessList      `json:"accessList,omitempty"`
}

// environmentJSON is the body of a transaction request.
type environmentJSON struct {
	Accounts    []accountJSON   `json:"accounts"`
	Transaction transactionJSON `json:"transaction"`
}

// environment is a validated request: the pre-state and the message.
type environment struct {
	accounts map[common.Address]*engine.Account
	order    []common.Address
	tx       *engine.Transaction
}

func toUint256(v *math.HexOrDecimal256, what string) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	b := (*big.Int)(v)
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative %s", what)
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%s exceeds 256 bits", what)
	}
	return u, nil
}

// toEnvironment validates the request body.
func (env *environmentJSON) toEnvironment() (*environment, error) {
	out := &environment{accounts: make(map[common.Address]*engine.Account)}
	for _, acc := range env.Accounts {
		if _, dup := out.accounts[acc.Address]; dup {
			return nil, fmt.Errorf("duplicate account %s", acc.Address)
		}
		balance, err := toUint256(acc.Balance, "balance")
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", acc.Address, err)
		}
		out.accounts[acc.Address] = &engine.Account{
			Balance: balance,
			Nonce:   uint64(acc.Nonce),
			Code:    acc.Code,
			Storage: acc.Storage,
		}
		out.order = append(out.order, acc.Address)
	}
	t := env.Transaction
	value, err := toUint256(t.Value, "value")
	if err != nil {
		return nil, err
	}
	tx := &engine.Transaction{
		Data:       t.Data,
		Value:      value,
		AccessList: t.AccessList,
	}
	if t.From != nil {
		tx.From = *t.From
	}
	if t.GasLimit != nil {
		tx.GasLimit = uint64(*t.GasLimit)
	}
	if t.GasPrice != nil {
		if tx.GasPrice, err = toUint256(t.GasPrice, "gas price"); err != nil {
			return nil, err
		}
	}
	if t.Nonce != nil {
		nonce := uint64(*t.Nonce)
		tx.Nonce = &nonce
	}
	switch strings.ToLower(t.Type) {
	case "call":
		if t.Address == nil {
			return nil, errors.New("call transaction without address")
		}
		tx.To = t.Address
	case "create":
		if t.Address != nil {
			return nil, errors.New("create transaction with address")
		}
	default:
		return nil, fmt.Errorf("unknown transaction type %q", t.Type)
	}
	out.tx = tx
	return out, nil
}

// evalEnvironment installs code at evalTarget and calls it.
func evalEnvironment(code []byte) *environment {
	to := evalTarget
	return &environment{
		accounts: map[common.Address]*engine.Account{evalTarget: {Code: code}},
		order:    []common.Address{evalTarget},
		tx:       &engine.Transaction{To: &to, GasLimit: engine.DefaultGasLimit},
	}
}

type accountStateJSON struct {
	Balance *hexutil.U256               `json:"balance"`
	Nonce   hexutil.Uint64              `json:"nonce"`
	Code    hexutil.Bytes               `json:"code,omitempty"`
	Storage map[common.Hash]common.Hash `json:"storage,omitempty"`
}

type logJSON struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// summaryJSON closes an execution, following the EIP-3155 summary line.
type summaryJSON struct {
	Status          engine.Status                        `json:"status"`
	Pass            bool                                 `json:"pass"`
	Error           string                               `json:"error,omitempty"`
	Output          hexutil.Bytes                        `json:"output"`
	GasUsed         hexutil.Uint64                       `json:"gasUsed"`
	GasRefunded     hexutil.Uint64                       `json:"gasRefunded"`
	ContractAddress *common.Address                      `json:"contractAddress,omitempty"`
	StateRoot       common.Hash                          `json:"stateRoot"`
	Logs            []logJSON                            `json:"logs"`
	Accounts        map[common.Address]*accountStateJSON `json:"accounts"`
	Fork            string                               `json:"fork"`
	Time            int64                                `json:"time"` // nanoseconds
	Steps           int                                  `json:"steps"`
	Truncated       bool                                 `json:"truncated,omitempty"`
}

func newSummary(res *engine.Result, steps int, truncated bool) *summaryJSON {
	s := &summaryJSON{
		Status:          res.Status,
		Pass:            !res.Failed(),
		Output:          res.ReturnData,
		GasUsed:         hexutil.Uint64(res.GasUsed),
		GasRefunded:     hexutil.Uint64(res.GasRefunded),
		ContractAddress: res.ContractAddress,
		StateRoot:       res.StateRoot,
		Logs:            make([]logJSON, 0, len(res.Logs)),
		Accounts:        make(map[common.Address]*accountStateJSON, len(res.Accounts)),
		Fork:            res.Fork,
		Time:            res.Duration.Nanoseconds(),
		Steps:           steps,
		Truncated:       truncated,
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	for _, l := range res.Logs {
		s.Logs = append(s.Logs, logJSON{Address: l.Address, Topics: l.Topics, Data: l.Data})
	}
	for addr, acc := range res.Accounts {
		state := &accountStateJSON{
			Balance: (*hexutil.U256)(acc.Balance),
			Nonce:   hexutil.Uint64(acc.Nonce),
			Code:    acc.Code,
		}
		if len(acc.Storage) > 0 {
			state.Storage = acc.Storage
		}
		s.Accounts[addr] = state
	}
	return s
}

// response is the body returned by the execution endpoints.
type response struct {
	ID      string         `json:"id,omitempty"`
	Events  []tracer.Event `json:"events"`
	Summary *summaryJSON   `json:"summary"`
}

// summaryMessage is the last message of a stream.
type summaryMessage struct {
	Type    string       `json:"type"` // always "summary"
	ID      string       `json:"id,omitempty"`
	Summary *summaryJSON `json:"summary"`
}

type errorJSON struct {
	Type  string `json:"type,omitempty"`
	Error string `json:"error"`
}
