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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jts13/etherealog/cmd/utils"
	"github.com/jts13/etherealog/engine"
	"github.com/jts13/etherealog/internal/flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// newTestApp returns an app with the commands and global flags of etherealog,
// but without the logging setup.
func newTestApp(out *bytes.Buffer) *cli.App {
	app := cli.NewApp()
	app.Name = clientIdentifier
	app.Writer = out
	app.ErrWriter = out
	app.Commands = []*cli.Command{runCommand, dumpConfigCommand, versionCommand}
	app.Flags = flags.Merge([]cli.Flag{configFileFlag}, utils.ServerFlags, utils.EngineFlags)
	app.Action = func(ctx *cli.Context) error {
		cfg, err := loadBaseConfig(ctx)
		if err != nil {
			return err
		}
		loaded = cfg
		return nil
	}
	return app
}

// loaded receives the configuration the test app action resolved.
var loaded etherealogConfig

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "config.toml", `
[Server]
Port = 9000
VirtualHosts = ["localhost", "tracer.internal"]
ExecutionTimeout = 2000000000

[EVM]
Fork = "cancun"
ChainID = 5
BaseFee = 7
`)
	cfg := defaultConfig()
	require.NoError(t, loadConfig(path, &cfg))

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"localhost", "tracer.internal"}, cfg.Server.VirtualHosts)
	assert.Equal(t, 2*time.Second, cfg.Server.ExecutionTimeout)
	assert.Equal(t, defaultConfig().Server.Host, cfg.Server.Host)
	assert.Equal(t, "cancun", cfg.EVM.Fork)
	assert.Equal(t, uint64(5), cfg.EVM.ChainID)
	assert.Equal(t, int64(7), cfg.EVM.BaseFee.Int64())

	// The package defaults are left alone.
	assert.Zero(t, engine.DefaultConfig.BaseFee.Sign())
}

func TestLoadConfigUnknownField(t *testing.T) {
	path := writeFile(t, "config.toml", "[Server]\nPorts = 1\n")
	cfg := defaultConfig()
	err := loadConfig(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'Ports' is not defined")
	assert.True(t, strings.HasPrefix(err.Error(), path), err.Error())
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := writeFile(t, "config.toml", "[Server]\nPort = 9000\nMaxConcurrent = 2\n\n[EVM]\nFork = \"cancun\"\n")

	var out bytes.Buffer
	app := newTestApp(&out)
	require.NoError(t, app.Run([]string{clientIdentifier,
		"--config", path,
		"--http.port", "9100",
		"--http.vhosts", "a.example, b.example",
		"--evm.basefee", "0x10",
		"--evm.eips", "3855",
		"--metrics=false",
	}))
	assert.Equal(t, 9100, loaded.Server.Port)
	assert.Equal(t, 2, loaded.Server.MaxConcurrent)
	assert.Equal(t, []string{"a.example", "b.example"}, loaded.Server.VirtualHosts)
	assert.False(t, loaded.Server.Metrics)
	assert.Equal(t, "cancun", loaded.EVM.Fork)
	assert.Equal(t, int64(16), loaded.EVM.BaseFee.Int64())
	assert.Equal(t, []int{3855}, loaded.EVM.ExtraEips)
}

func TestDumpConfig(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(&out)
	require.NoError(t, app.Run([]string{clientIdentifier, "dumpconfig", "--evm.fork", "shanghai"}))
	assert.Contains(t, out.String(), "[Server]")
	assert.Contains(t, out.String(), `Fork = "shanghai"`)

	// The dump loads back into the same configuration.
	path := writeFile(t, "dump.toml", out.String())
	cfg := defaultConfig()
	require.NoError(t, loadConfig(path, &cfg))
	assert.Equal(t, "shanghai", cfg.EVM.Fork)
	assert.Equal(t, defaultConfig().Server.Port, cfg.Server.Port)
	assert.Equal(t, defaultConfig().Server.ExecutionTimeout, cfg.Server.ExecutionTimeout)
	assert.Zero(t, cfg.EVM.BlobBaseFee.Cmp(engine.DefaultConfig.BlobBaseFee))
}

func TestPrintVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, newTestApp(&out).Run([]string{clientIdentifier, "version"}))
	assert.Contains(t, out.String(), "Version:")
	assert.Contains(t, out.String(), "Go Version:")
}
