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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/jts13/etherealog/cmd/utils"
	"github.com/jts13/etherealog/engine"
	"github.com/jts13/etherealog/internal/flags"
	"github.com/jts13/etherealog/tracer"
	"github.com/urfave/cli/v2"
)

var (
	CodeFileFlag = &cli.StringFlag{
		Name:     "codefile",
		Usage:    "File containing EVM code. If '-' is specified, code is read from stdin",
		Category: flags.TraceCategory,
	}
	InputFlag = &cli.StringFlag{
		Name:     "input",
		Usage:    "Call data of the transaction (hex)",
		Category: flags.TraceCategory,
	}
	GasFlag = &cli.Uint64Flag{
		Name:     "gas",
		Usage:    "Gas limit of the transaction",
		Value:    engine.DefaultGasLimit,
		Category: flags.TraceCategory,
	}
	ValueFlag = &flags.BigFlag{
		Name:     "value",
		Usage:    "Value transferred with the transaction, the sender is funded with it",
		Value:    new(big.Int),
		Category: flags.TraceCategory,
	}
	GasPriceFlag = &flags.BigFlag{
		Name:     "gasprice",
		Usage:    "Gas price of the transaction, the sender is funded to pay for the gas limit",
		Value:    new(big.Int),
		Category: flags.TraceCategory,
	}
	NonceFlag = &cli.Uint64Flag{
		Name:     "nonce",
		Usage:    "Nonce of the sender and the transaction",
		Category: flags.TraceCategory,
	}
	SenderFlag = &cli.StringFlag{
		Name:     "sender",
		Usage:    "The transaction origin",
		Value:    common.Address{}.Hex(),
		Category: flags.TraceCategory,
	}
	ReceiverFlag = &cli.StringFlag{
		Name:     "receiver",
		Usage:    "The account the code is installed at",
		Value:    "0xffffffffffffffffffffffffffffffffffffffff",
		Category: flags.TraceCategory,
	}
	CreateFlag = &cli.BoolFlag{
		Name:     "create",
		Usage:    "Run the code as init code of a contract creation rather than calling it",
		Category: flags.TraceCategory,
	}
	DisableMemoryFlag = &cli.BoolFlag{
		Name:     "nomemory",
		Usage:    "Disable memory output",
		Category: flags.TraceCategory,
	}
	DisableStackFlag = &cli.BoolFlag{
		Name:     "nostack",
		Usage:    "Disable stack output",
		Category: flags.TraceCategory,
	}
	EnableReturnDataFlag = &cli.BoolFlag{
		Name:     "returndata",
		Usage:    "Enable return data output",
		Category: flags.TraceCategory,
	}
	DisableFramesFlag = &cli.BoolFlag{
		Name:     "noframes",
		Usage:    "Only output steps, no call frame and log events",
		Category: flags.TraceCategory,
	}
	LimitFlag = &cli.IntFlag{
		Name:     "limit",
		Usage:    "Maximum number of steps to output (0 = unlimited)",
		Category: flags.TraceCategory,
	}
	OutputFlag = &cli.StringFlag{
		Name:     "out",
		Usage:    "File the trace is written to instead of stdout",
		Category: flags.TraceCategory,
	}

	runCommand = &cli.Command{
		Action:    runCmd,
		Name:      "run",
		Usage:     "Trace arbitrary evm binary",
		ArgsUsage: "<code>",
		Flags: flags.Merge([]cli.Flag{
			CodeFileFlag,
			InputFlag,
			GasFlag,
			ValueFlag,
			GasPriceFlag,
			NonceFlag,
			SenderFlag,
			ReceiverFlag,
			CreateFlag,
			DisableMemoryFlag,
			DisableStackFlag,
			EnableReturnDataFlag,
			DisableFramesFlag,
			LimitFlag,
			OutputFlag,
		}, []cli.Flag{configFileFlag}, utils.EngineFlags),
		Description: `The run command executes the given code and writes one JSON object
per execution event, followed by a summary line.`,
	}
)

// runSummary is the last line of the run output.
type runSummary struct {
	StateRoot       common.Hash     `json:"stateRoot"`
	Output          hexutil.Bytes   `json:"output"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`
	Pass            bool            `json:"pass"`
	Status          engine.Status   `json:"status"`
	Error           string          `json:"error,omitempty"`
	ContractAddress *common.Address `json:"contractAddress,omitempty"`
	Time            int64           `json:"time"` // nanoseconds
	Fork            string          `json:"fork"`
	Truncated       bool            `json:"truncated,omitempty"`
}

func decodeHex(input string) ([]byte, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "0x") && !strings.HasPrefix(input, "0X") {
		input = "0x" + input
	}
	return hexutil.Decode(input)
}

// readCode returns the code given as argument or through --codefile.
func readCode(ctx *cli.Context) ([]byte, error) {
	var hexcode string
	switch {
	case ctx.NArg() > 0:
		hexcode = ctx.Args().First()
	case ctx.String(CodeFileFlag.Name) == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("could not load code from stdin: %v", err)
		}
		hexcode = string(data)
	case ctx.String(CodeFileFlag.Name) != "":
		data, err := os.ReadFile(ctx.String(CodeFileFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("could not load code from file: %v", err)
		}
		hexcode = string(data)
	default:
		return nil, errors.New("no code given, pass it as argument or with --codefile")
	}
	code, err := decodeHex(hexcode)
	if err != nil {
		return nil, fmt.Errorf("invalid code: %v", err)
	}
	return code, nil
}

func runCmd(ctx *cli.Context) error {
	cfg, err := loadBaseConfig(ctx)
	if err != nil {
		return err
	}
	code, err := readCode(ctx)
	if err != nil {
		return err
	}
	input, err := decodeHex(ctx.String(InputFlag.Name))
	if err != nil {
		return fmt.Errorf("invalid input: %v", err)
	}
	if !common.IsHexAddress(ctx.String(SenderFlag.Name)) {
		return fmt.Errorf("invalid sender %q", ctx.String(SenderFlag.Name))
	}
	if !common.IsHexAddress(ctx.String(ReceiverFlag.Name)) {
		return fmt.Errorf("invalid receiver %q", ctx.String(ReceiverFlag.Name))
	}
	value, overflow := uint256.FromBig(flags.GlobalBig(ctx, ValueFlag.Name))
	if overflow {
		return errors.New("value exceeds 256 bits")
	}
	gasPrice, overflow := uint256.FromBig(flags.GlobalBig(ctx, GasPriceFlag.Name))
	if overflow {
		return errors.New("gas price exceeds 256 bits")
	}

	out := ctx.App.Writer
	if file := ctx.String(OutputFlag.Name); file != "" {
		f, err := os.Create(file)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	var (
		jsonl = tracer.NewJSONLWriter(w)
		tr    = tracer.New(&tracer.Config{
			DisableMemory:    ctx.Bool(DisableMemoryFlag.Name),
			DisableStack:     ctx.Bool(DisableStackFlag.Name),
			EnableReturnData: ctx.Bool(EnableReturnDataFlag.Name),
			DisableFrames:    ctx.Bool(DisableFramesFlag.Name),
			Limit:            ctx.Int(LimitFlag.Name),
		}, jsonl)
	)
	evm, err := engine.New(&cfg.EVM, tr.Hooks())
	if err != nil {
		return err
	}
	nonce := ctx.Uint64(NonceFlag.Name)
	tx := &engine.Transaction{
		From:     common.HexToAddress(ctx.String(SenderFlag.Name)),
		Data:     input,
		Value:    value,
		GasLimit: ctx.Uint64(GasFlag.Name),
		GasPrice: gasPrice,
		Nonce:    &nonce,
	}
	// Fund the sender for the value and the full gas limit.
	gasLimit := tx.GasLimit
	if gasLimit == 0 {
		gasLimit = engine.DefaultGasLimit
	}
	balance, overflow := new(uint256.Int).MulOverflow(gasPrice, uint256.NewInt(gasLimit))
	if _, sum := balance.AddOverflow(balance, value); overflow || sum {
		return errors.New("sender balance exceeds 256 bits")
	}
	if !balance.IsZero() || nonce != 0 {
		evm.CreateAccount(tx.From, &engine.Account{Balance: balance, Nonce: nonce})
	}
	if ctx.Bool(CreateFlag.Name) {
		tx.Data = append(code, input...)
	} else {
		receiver := common.HexToAddress(ctx.String(ReceiverFlag.Name))
		evm.CreateAccount(receiver, &engine.Account{Code: code})
		tx.To = &receiver
	}

	sigctx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
	defer stop()
	res, err := evm.Execute(sigctx, tx)
	if err != nil {
		return err
	}
	if err := jsonl.Err(); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	if tr.Truncated() {
		log.Warn("Trace truncated", "limit", ctx.Int(LimitFlag.Name))
	}
	summary := &runSummary{
		StateRoot:       res.StateRoot,
		Output:          res.ReturnData,
		GasUsed:         hexutil.Uint64(res.GasUsed),
		Pass:            !res.Failed(),
		Status:          res.Status,
		ContractAddress: res.ContractAddress,
		Time:            res.Duration.Nanoseconds(),
		Fork:            res.Fork,
		Truncated:       tr.Truncated(),
	}
	if res.Err != nil {
		summary.Error = res.Err.Error()
	}
	log.Debug("Execution finished", "events", jsonl.Count(), "status", res.Status, "gas", res.GasUsed)
	return json.NewEncoder(w).Encode(summary)
}
