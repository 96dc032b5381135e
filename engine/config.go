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
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
)

// DefaultGasLimit is the gas given to a transaction that does not set one.
const DefaultGasLimit = 0x1000000

var (
	ErrUnknownFork   = errors.New("unknown fork")
	ErrInvalidConfig = errors.New("invalid engine config")
)

// Config describes the chain rules and the block a transaction is executed in.
type Config struct {
	Fork        string         // hard fork whose rules apply, see Forks
	ChainID     uint64         `toml:",omitempty"`
	Coinbase    common.Address `toml:",omitempty"`
	BlockNumber uint64         `toml:",omitempty"`
	Timestamp   uint64         `toml:",omitempty"`
	GasLimit    uint64         // block gas limit
	BaseFee     *big.Int       `toml:",omitempty"`
	BlobBaseFee *big.Int       `toml:",omitempty"`
	Difficulty  *big.Int       `toml:",omitempty"`

	// NoBaseFee lets zero priced transactions through after London.
	NoBaseFee bool
	ExtraEips []int `toml:",omitempty"`
}

// DefaultConfig contains reasonable default settings.
var DefaultConfig = Config{
	Fork:        "prague",
	ChainID:     1,
	GasLimit:    30_000_000,
	BaseFee:     new(big.Int),
	BlobBaseFee: big.NewInt(params.BlobTxMinBlobGasprice),
	Difficulty:  new(big.Int),
	NoBaseFee:   true,
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := forkIndex(c.Fork); err != nil {
		return err
	}
	if c.ChainID == 0 {
		return fmt.Errorf("%w: chain id must be non-zero", ErrInvalidConfig)
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("%w: zero block gas limit", ErrInvalidConfig)
	}
	for _, v := range []*big.Int{c.BaseFee, c.BlobBaseFee, c.Difficulty} {
		if v != nil && v.Sign() < 0 {
			return fmt.Errorf("%w: negative fee or difficulty", ErrInvalidConfig)
		}
	}
	for _, eip := range c.ExtraEips {
		if !vm.ValidEip(eip) {
			return fmt.Errorf("%w: eip-%d is not defined", ErrInvalidConfig, eip)
		}
	}
	return nil
}

// setDefaults fills the unset fields from DefaultConfig.
func (c *Config) setDefaults() {
	if c.Fork == "" {
		c.Fork = DefaultConfig.Fork
	}
	c.Fork = strings.ToLower(c.Fork)
	if c.ChainID == 0 {
		c.ChainID = DefaultConfig.ChainID
	}
	if c.GasLimit == 0 {
		c.GasLimit = DefaultConfig.GasLimit
	}
	if c.BaseFee == nil {
		c.BaseFee = new(big.Int)
	}
	if c.BlobBaseFee == nil {
		c.BlobBaseFee = new(big.Int).Set(DefaultConfig.BlobBaseFee)
	}
	if c.Difficulty == nil {
		c.Difficulty = new(big.Int)
	}
}
