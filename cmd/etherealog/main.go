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

// etherealog executes EVM bytecode and transactions and serves their
// instruction level traces.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jts13/etherealog/cmd/utils"
	"github.com/jts13/etherealog/internal/debug"
	"github.com/jts13/etherealog/internal/flags"
	"github.com/jts13/etherealog/internal/version"
	"github.com/jts13/etherealog/server"
	"github.com/urfave/cli/v2"
)

const (
	clientIdentifier = "etherealog" // Client identifier used in logs and env vars
)

var (
	versionCommand = &cli.Command{
		Action:    printVersion,
		Name:      "version",
		Usage:     "Print version numbers",
		ArgsUsage: " ",
		Description: `
The output of this command is supposed to be machine-readable.
`,
	}

	app = flags.NewApp("the etherealog command line interface")
)

func init() {
	// Initialize the CLI app and start etherealog
	app.Action = etherealog
	app.Commands = []*cli.Command{
		runCommand,
		dumpConfigCommand,
		versionCommand,
	}
	app.Flags = flags.Merge(
		[]cli.Flag{configFileFlag},
		utils.ServerFlags,
		utils.EngineFlags,
		debug.Flags,
	)
	flags.CheckEnvVars(app.Flags, "ETHEREALOG")

	app.Before = func(ctx *cli.Context) error {
		flags.MigrateGlobalFlags(ctx)
		return debug.Setup(ctx)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// etherealog is the main entry point into the system if no special subcommand
// is run. It starts the HTTP server and blocks until it is interrupted.
func etherealog(ctx *cli.Context) error {
	if args := ctx.Args().Slice(); len(args) > 0 {
		return fmt.Errorf("invalid command: %s", args[0])
	}
	cfg, err := loadBaseConfig(ctx)
	if err != nil {
		utils.Fatalf("%v", err)
	}
	srv, err := server.New(cfg.Server, cfg.EVM)
	if err != nil {
		utils.Fatalf("Failed to create the server: %v", err)
	}
	log.Info("Starting "+clientIdentifier, "version", version.WithMeta, "fork", cfg.EVM.Fork, "chainid", cfg.EVM.ChainID)

	sigctx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(sigctx); err != nil {
		return err
	}
	log.Info("Shutdown complete")
	return nil
}

func printVersion(ctx *cli.Context) error {
	fmt.Fprint(ctx.App.Writer, version.Current())
	return nil
}
