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
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/jts13/etherealog/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomHex(t *testing.T, n int) string {
	t.Helper()
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return hexutil.Encode(buf)
}

func parseEnvironment(t *testing.T, input string) (*environment, error) {
	t.Helper()
	var env environmentJSON
	require.NoError(t, json.Unmarshal([]byte(input), &env))
	return env.toEnvironment()
}

func TestEnvironmentConversion(t *testing.T) {
	env, err := parseEnvironment(t, `{
		"accounts": [
			{"address": "0x00000000000000000000000000000000000000aa", "balance": "0x100", "nonce": "3",
			 "storage": {"1": "0x2", "0x0000000000000000000000000000000000000000000000000000000000000003": "255"}},
			{"address": "0x00000000000000000000000000000000000000bb", "code": "0x6000"}
		],
		"transaction": {"type": "CALL", "from": "0x00000000000000000000000000000000000000aa",
			"address": "0x00000000000000000000000000000000000000bb", "data": "0x01", "value": "10", "gasLimit": "0x5208"}
	}`)
	require.NoError(t, err)

	a := common.HexToAddress("0xaa")
	b := common.HexToAddress("0xbb")
	assert.Equal(t, []common.Address{a, b}, env.order)

	acc := env.accounts[a]
	assert.Equal(t, uint256.NewInt(256), acc.Balance)
	assert.Equal(t, uint64(3), acc.Nonce)
	assert.Equal(t, common.HexToHash("0x2"), acc.Storage[common.HexToHash("0x1")])
	assert.Equal(t, common.HexToHash("0xff"), acc.Storage[common.HexToHash("0x3")])
	assert.Equal(t, []byte{0x60, 0x00}, []byte(env.accounts[b].Code))
	assert.True(t, env.accounts[b].Balance.IsZero())

	tx := env.tx
	assert.Equal(t, a, tx.From)
	require.NotNil(t, tx.To)
	assert.Equal(t, b, *tx.To)
	assert.Equal(t, uint256.NewInt(10), tx.Value)
	assert.Equal(t, uint64(21000), tx.GasLimit)
	assert.Equal(t, []byte{0x01}, []byte(tx.Data))
}

func TestEnvironmentLimits(t *testing.T) {
	_, err := parseEnvironment(t, `{"accounts": [{"address": "0x00000000000000000000000000000000000000aa", "balance": "-1"}], "transaction": {"type": "create"}}`)
	assert.ErrorContains(t, err, "negative balance")

	var env environmentJSON
	err = json.Unmarshal([]byte(`{"transaction": {"type": "create", "value": "0x10000000000000000000000000000000000000000000000000000000000000000"}}`), &env)
	assert.Error(t, err)
}

func TestEvalEnvironment(t *testing.T) {
	env := evalEnvironment([]byte{0x00})
	require.NotNil(t, env.tx.To)
	assert.Equal(t, evalTarget, *env.tx.To)
	assert.Equal(t, uint64(engine.DefaultGasLimit), env.tx.GasLimit)
	assert.Equal(t, []byte{0x00}, env.accounts[evalTarget].Code)
}

func TestSummary(t *testing.T) {
	contract := common.HexToAddress("0xcc")
	res := &engine.Result{
		Status:          engine.StatusRevert,
		Err:             vm.ErrExecutionReverted,
		GasUsed:         21010,
		ReturnData:      []byte{0xde, 0xad},
		ContractAddress: &contract,
		Fork:            "cancun",
		Accounts: map[common.Address]*engine.Account{
			contract: {Balance: uint256.NewInt(5), Nonce: 1},
		},
	}
	s := newSummary(res, 7, true)
	assert.False(t, s.Pass)
	assert.Equal(t, "execution reverted", s.Error)
	assert.Equal(t, 7, s.Steps)
	assert.True(t, s.Truncated)
	assert.Empty(t, s.Logs)
	assert.NotNil(t, s.Logs)
	assert.Nil(t, s.Accounts[contract].Storage)

	blob, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(blob), `"gasUsed":"0x5212"`)
	assert.Contains(t, string(blob), `"output":"0xdead"`)
	assert.Contains(t, string(blob), `"logs":[]`)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{invalid("bad"), 400},
		{errors.Join(engine.ErrInvalidTransaction, errors.New("nonce too low")), 400},
		{errTraceNotFound, 404},
		{errBusy, 503},
		{fmt.Errorf("execution: %w", context.DeadlineExceeded), 503},
		{fmt.Errorf("execution: %w", context.Canceled), statusClientClosed},
		{errors.New("boom"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}
