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

// Package utils contains internal helper functions for etherealog commands.
package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jts13/etherealog/engine"
	"github.com/jts13/etherealog/internal/flags"
	"github.com/jts13/etherealog/server"
	"github.com/urfave/cli/v2"
)

// These are all the command line flags we support.
// If you add to this list, please remember to include the
// flag in the appropriate command definition.
//
// The flags are defined here so their names and help texts
// are the same for all commands.

var (
	// HTTP server settings
	HTTPListenAddrFlag = &cli.StringFlag{
		Name:     "http.addr",
		Usage:    "HTTP server listening interface",
		Value:    server.DefaultHTTPHost,
		EnvVars:  []string{"ETHEREALOG_HTTP_ADDR"},
		Category: flags.HTTPCategory,
	}
	HTTPPortFlag = &cli.IntFlag{
		Name:     "http.port",
		Usage:    "HTTP server listening port",
		Value:    server.DefaultHTTPPort,
		EnvVars:  []string{"ETHEREALOG_HTTP_PORT"},
		Category: flags.HTTPCategory,
	}
	HTTPCORSDomainFlag = &cli.StringFlag{
		Name:     "http.corsdomain",
		Usage:    "Comma separated list of domains from which to accept cross origin requests (browser enforced)",
		Value:    "",
		EnvVars:  []string{"ETHEREALOG_HTTP_CORSDOMAIN"},
		Category: flags.HTTPCategory,
	}
	HTTPVirtualHostsFlag = &cli.StringFlag{
		Name:     "http.vhosts",
		Usage:    "Comma separated list of virtual hostnames from which to accept requests (server enforced). Accepts '*' wildcard.",
		Value:    strings.Join(server.DefaultConfig.VirtualHosts, ","),
		EnvVars:  []string{"ETHEREALOG_HTTP_VHOSTS"},
		Category: flags.HTTPCategory,
	}
	HTTPJWTSecretFlag = &cli.StringFlag{
		Name:     "http.jwtsecret",
		Usage:    "Path to a JWT secret required on /api requests, generated if the file does not exist",
		Value:    "",
		EnvVars:  []string{"ETHEREALOG_HTTP_JWTSECRET"},
		Category: flags.HTTPCategory,
	}
	HTTPMaxConcurrentFlag = &cli.IntFlag{
		Name:     "http.maxconcurrent",
		Usage:    "Maximum number of executions running at the same time",
		Value:    server.DefaultConfig.MaxConcurrent,
		EnvVars:  []string{"ETHEREALOG_HTTP_MAXCONCURRENT"},
		Category: flags.HTTPCategory,
	}
	HTTPRateLimitFlag = &cli.Float64Flag{
		Name:     "http.ratelimit",
		Usage:    "Requests per second accepted on /api (0 = unlimited)",
		EnvVars:  []string{"ETHEREALOG_HTTP_RATELIMIT"},
		Category: flags.HTTPCategory,
	}
	HTTPRateBurstFlag = &cli.IntFlag{
		Name:     "http.rateburst",
		Usage:    "Requests allowed in a burst above the rate limit",
		EnvVars:  []string{"ETHEREALOG_HTTP_RATEBURST"},
		Category: flags.HTTPCategory,
	}
	HTTPMaxBodyFlag = &cli.Int64Flag{
		Name:     "http.maxbody",
		Usage:    "Maximum size of a request body in bytes",
		Value:    server.DefaultConfig.MaxBodySize,
		EnvVars:  []string{"ETHEREALOG_HTTP_MAXBODY"},
		Category: flags.HTTPCategory,
	}
	HTTPStaticDirFlag = &flags.DirectoryFlag{
		Name:     "http.static",
		Usage:    "Directory served under /res instead of the built-in resources",
		EnvVars:  []string{"ETHEREALOG_HTTP_STATIC"},
		Category: flags.HTTPCategory,
	}

	// Tracing settings
	TraceCacheFlag = &cli.IntFlag{
		Name:     "trace.cache",
		Usage:    "Megabytes of memory allocated to keeping recent traces (0 = disabled)",
		Value:    server.DefaultConfig.TraceCache,
		EnvVars:  []string{"ETHEREALOG_TRACE_CACHE"},
		Category: flags.TraceCategory,
	}
	TraceMaxStepsFlag = &cli.IntFlag{
		Name:     "trace.maxsteps",
		Usage:    "Maximum number of steps recorded per execution (0 = unlimited)",
		Value:    server.DefaultConfig.MaxSteps,
		EnvVars:  []string{"ETHEREALOG_TRACE_MAXSTEPS"},
		Category: flags.TraceCategory,
	}
	TraceTimeoutFlag = &cli.DurationFlag{
		Name:     "trace.timeout",
		Usage:    "Wall clock time an execution may take",
		Value:    server.DefaultConfig.ExecutionTimeout,
		EnvVars:  []string{"ETHEREALOG_TRACE_TIMEOUT"},
		Category: flags.TraceCategory,
	}

	// Virtual machine settings
	EVMForkFlag = &cli.StringFlag{
		Name:     "evm.fork",
		Usage:    fmt.Sprintf("Fork rules to execute with (%s)", strings.Join(engine.Forks, ", ")),
		Value:    engine.DefaultConfig.Fork,
		EnvVars:  []string{"ETHEREALOG_EVM_FORK"},
		Category: flags.VMCategory,
	}
	EVMChainIDFlag = &cli.Uint64Flag{
		Name:     "evm.chainid",
		Usage:    "Chain id reported by the CHAINID instruction",
		Value:    engine.DefaultConfig.ChainID,
		EnvVars:  []string{"ETHEREALOG_EVM_CHAINID"},
		Category: flags.VMCategory,
	}
	EVMGasLimitFlag = &cli.Uint64Flag{
		Name:     "evm.gaslimit",
		Usage:    "Block gas limit",
		Value:    engine.DefaultConfig.GasLimit,
		EnvVars:  []string{"ETHEREALOG_EVM_GASLIMIT"},
		Category: flags.VMCategory,
	}
	EVMBaseFeeFlag = &flags.BigFlag{
		Name:     "evm.basefee",
		Usage:    "Block base fee in wei, only enforced together with --evm.enforcebasefee",
		Value:    engine.DefaultConfig.BaseFee,
		EnvVars:  []string{"ETHEREALOG_EVM_BASEFEE"},
		Category: flags.VMCategory,
	}
	EVMEnforceBaseFeeFlag = &cli.BoolFlag{
		Name:     "evm.enforcebasefee",
		Usage:    "Reject transactions priced below the block base fee",
		EnvVars:  []string{"ETHEREALOG_EVM_ENFORCEBASEFEE"},
		Category: flags.VMCategory,
	}
	EVMExtraEIPsFlag = &cli.IntSliceFlag{
		Name:     "evm.eips",
		Usage:    "Additional EIPs to activate on top of the fork rules",
		EnvVars:  []string{"ETHEREALOG_EVM_EIPS"},
		Category: flags.VMCategory,
	}

	// Metrics settings
	MetricsEnabledFlag = &cli.BoolFlag{
		Name:     "metrics",
		Usage:    "Serve prometheus metrics under /metrics",
		Value:    server.DefaultConfig.Metrics,
		EnvVars:  []string{"ETHEREALOG_METRICS"},
		Category: flags.MetricsCategory,
	}
)

var (
	// ServerFlags configure the HTTP front end.
	ServerFlags = []cli.Flag{
		HTTPListenAddrFlag,
		HTTPPortFlag,
		HTTPCORSDomainFlag,
		HTTPVirtualHostsFlag,
		HTTPJWTSecretFlag,
		HTTPMaxConcurrentFlag,
		HTTPRateLimitFlag,
		HTTPRateBurstFlag,
		HTTPMaxBodyFlag,
		HTTPStaticDirFlag,
		TraceCacheFlag,
		TraceMaxStepsFlag,
		TraceTimeoutFlag,
		MetricsEnabledFlag,
	}
	// EngineFlags configure the chain rules executions run with.
	EngineFlags = []cli.Flag{
		EVMForkFlag,
		EVMChainIDFlag,
		EVMGasLimitFlag,
		EVMBaseFeeFlag,
		EVMEnforceBaseFeeFlag,
		EVMExtraEIPsFlag,
	}
)

// SplitAndTrim splits input separated by a comma
// and trims excessive white space from the substrings.
func SplitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}

// SetServerConfig applies server-related command line flags to the config.
func SetServerConfig(ctx *cli.Context, cfg *server.Config) {
	if ctx.IsSet(HTTPListenAddrFlag.Name) {
		cfg.Host = ctx.String(HTTPListenAddrFlag.Name)
	}
	if ctx.IsSet(HTTPPortFlag.Name) {
		cfg.Port = ctx.Int(HTTPPortFlag.Name)
	}
	if ctx.IsSet(HTTPCORSDomainFlag.Name) {
		cfg.CorsAllowedOrigins = SplitAndTrim(ctx.String(HTTPCORSDomainFlag.Name))
	}
	if ctx.IsSet(HTTPVirtualHostsFlag.Name) {
		cfg.VirtualHosts = SplitAndTrim(ctx.String(HTTPVirtualHostsFlag.Name))
	}
	if ctx.IsSet(HTTPJWTSecretFlag.Name) {
		cfg.JWTSecret = ctx.String(HTTPJWTSecretFlag.Name)
	}
	if ctx.IsSet(HTTPMaxConcurrentFlag.Name) {
		cfg.MaxConcurrent = ctx.Int(HTTPMaxConcurrentFlag.Name)
	}
	if ctx.IsSet(HTTPRateLimitFlag.Name) {
		cfg.RateLimit = ctx.Float64(HTTPRateLimitFlag.Name)
	}
	if ctx.IsSet(HTTPRateBurstFlag.Name) {
		cfg.RateBurst = ctx.Int(HTTPRateBurstFlag.Name)
	}
	if ctx.IsSet(HTTPMaxBodyFlag.Name) {
		cfg.MaxBodySize = ctx.Int64(HTTPMaxBodyFlag.Name)
	}
	if ctx.IsSet(HTTPStaticDirFlag.Name) {
		cfg.StaticDir = ctx.String(HTTPStaticDirFlag.Name)
	}
	if ctx.IsSet(TraceCacheFlag.Name) {
		cfg.TraceCache = ctx.Int(TraceCacheFlag.Name)
	}
	if ctx.IsSet(TraceMaxStepsFlag.Name) {
		cfg.MaxSteps = ctx.Int(TraceMaxStepsFlag.Name)
	}
	if ctx.IsSet(TraceTimeoutFlag.Name) {
		cfg.ExecutionTimeout = ctx.Duration(TraceTimeoutFlag.Name)
	}
	if ctx.IsSet(MetricsEnabledFlag.Name) {
		cfg.Metrics = ctx.Bool(MetricsEnabledFlag.Name)
	}
}

// SetEngineConfig applies chain rule flags to the config.
func SetEngineConfig(ctx *cli.Context, cfg *engine.Config) {
	if ctx.IsSet(EVMForkFlag.Name) {
		cfg.Fork = ctx.String(EVMForkFlag.Name)
	}
	if ctx.IsSet(EVMChainIDFlag.Name) {
		cfg.ChainID = ctx.Uint64(EVMChainIDFlag.Name)
	}
	if ctx.IsSet(EVMGasLimitFlag.Name) {
		cfg.GasLimit = ctx.Uint64(EVMGasLimitFlag.Name)
	}
	if ctx.IsSet(EVMBaseFeeFlag.Name) {
		cfg.BaseFee = flags.GlobalBig(ctx, EVMBaseFeeFlag.Name)
	}
	if ctx.IsSet(EVMEnforceBaseFeeFlag.Name) {
		cfg.NoBaseFee = !ctx.Bool(EVMEnforceBaseFeeFlag.Name)
	}
	if ctx.IsSet(EVMExtraEIPsFlag.Name) {
		cfg.ExtraEips = ctx.IntSlice(EVMExtraEIPsFlag.Name)
	}
	log.Debug("Engine configured", "fork", cfg.Fork, "chainid", cfg.ChainID, "eips", cfg.ExtraEips)
}
