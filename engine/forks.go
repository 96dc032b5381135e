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
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// Forks lists the supported rule sets, oldest first.
var Forks = []string{
	"frontier",
	"homestead",
	"tangerinewhistle",
	"spuriousdragon",
	"byzantium",
	"constantinople",
	"petersburg",
	"istanbul",
	"berlin",
	"london",
	"paris",
	"shanghai",
	"cancun",
	"prague",
}

func forkIndex(name string) (int, error) {
	for i, fork := range Forks {
		if fork == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFork, name)
}

// chainConfig assembles a chain config with every fork up to and including
// the named one active from genesis. The boolean reports whether the fork is
// post-merge.
func chainConfig(fork string, chainID uint64) (*params.ChainConfig, bool, error) {
	idx, err := forkIndex(fork)
	if err != nil {
		return nil, false, err
	}
	active := func(name string) bool {
		i, _ := forkIndex(name)
		return idx >= i
	}
	block := func(name string) *big.Int {
		if active(name) {
			return new(big.Int)
		}
		return nil
	}
	at := func(name string) *uint64 {
		if active(name) {
			return new(uint64)
		}
		return nil
	}
	cfg := &params.ChainConfig{
		ChainID:             new(big.Int).SetUint64(chainID),
		HomesteadBlock:      block("homestead"),
		EIP150Block:         block("tangerinewhistle"),
		EIP155Block:         block("spuriousdragon"),
		EIP158Block:         block("spuriousdragon"),
		ByzantiumBlock:      block("byzantium"),
		ConstantinopleBlock: block("constantinople"),
		PetersburgBlock:     block("petersburg"),
		IstanbulBlock:       block("istanbul"),
		MuirGlacierBlock:    block("istanbul"),
		BerlinBlock:         block("berlin"),
		LondonBlock:         block("london"),
		ShanghaiTime:        at("shanghai"),
		CancunTime:          at("cancun"),
		PragueTime:          at("prague"),
	}
	// A nil Petersburg block means Petersburg activates together with
	// Constantinople, so plain Constantinople needs it pushed out.
	if active("constantinople") && !active("petersburg") {
		cfg.PetersburgBlock = new(big.Int).SetUint64(math.MaxInt64)
	}
	merged := active("paris")
	if merged {
		cfg.TerminalTotalDifficulty = new(big.Int)
	}
	return cfg, merged, nil
}
