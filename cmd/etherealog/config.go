// Copyright 2025 The etherealog Authors
// This file is part of etherealog.
//
// etherealog is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// etherealog is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with etherealog. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"math/big"
	"os"
	"reflect"
	"unicode"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jts13/etherealog/cmd/utils"
	"github.com/jts13/etherealog/engine"
	"github.com/jts13/etherealog/internal/flags"
	"github.com/jts13/etherealog/server"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		EnvVars:  []string{"ETHEREALOG_CONFIG"},
		Category: flags.MiscCategory,
	}

	dumpConfigCommand = &cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Export configuration values in a TOML format",
		ArgsUsage:   "<dumpfile (optional)>",
		Flags:       flags.Merge([]cli.Flag{configFileFlag}, utils.ServerFlags, utils.EngineFlags),
		Description: `Export configuration values in TOML format (to stdout by default).`,
	}
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type etherealogConfig struct {
	Server server.Config
	EVM    engine.Config
}

func loadConfig(file string, cfg *etherealogConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// defaultConfig returns the built-in defaults. The big integers are copied so
// that decoding a file never writes through to the package defaults.
func defaultConfig() etherealogConfig {
	cfg := etherealogConfig{
		Server: server.DefaultConfig,
		EVM:    engine.DefaultConfig,
	}
	cfg.Server.VirtualHosts = append([]string{}, server.DefaultConfig.VirtualHosts...)
	cfg.EVM.BaseFee = new(big.Int).Set(engine.DefaultConfig.BaseFee)
	cfg.EVM.BlobBaseFee = new(big.Int).Set(engine.DefaultConfig.BlobBaseFee)
	cfg.EVM.Difficulty = new(big.Int).Set(engine.DefaultConfig.Difficulty)
	return cfg
}

// loadBaseConfig loads the etherealogConfig based on the given command line
// parameters and config file.
func loadBaseConfig(ctx *cli.Context) (etherealogConfig, error) {
	// Load defaults.
	cfg := defaultConfig()

	// Load config file.
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
		log.Debug("Loaded configuration file", "path", file)
	}

	// Apply flags.
	utils.SetServerConfig(ctx, &cfg.Server)
	utils.SetEngineConfig(ctx, &cfg.EVM)
	return cfg, nil
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadBaseConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}

	dump := ctx.App.Writer
	if ctx.NArg() > 0 {
		f, err := os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		dump = f
	}
	_, err = dump.Write(out)
	return err
}
