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

package tracer

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
)

// EventType is the value of the "type" tag every serialized event carries.
type EventType string

const (
	StepEvent  EventType = "step"
	EnterEvent EventType = "enter"
	ExitEvent  EventType = "exit"
	LogEvent   EventType = "log"
)

// Event is a single entry of the execution log.
type Event interface {
	Type() EventType
}

// Step is one executed instruction, in the shape of an EIP-3155 trace line.
// All fields except GasCost and Error describe the machine before the
// instruction ran.
type Step struct {
	Pc         uint64         `json:"pc"`
	Op         vm.OpCode      `json:"op"`
	OpName     string         `json:"opName"`
	Gas        uint64         `json:"gas"`
	GasCost    uint64         `json:"gasCost"`
	MemSize    int            `json:"memSize"`
	Stack      []hexutil.U256 `json:"stack"`
	Depth      int            `json:"depth"`
	Refund     uint64         `json:"refund"`
	ReturnData hexutil.Bytes  `json:"returnData,omitempty"`
	Error      string         `json:"error,omitempty"`
	Memory     hexutil.Bytes  `json:"memory,omitempty"`
}

func (*Step) Type() EventType { return StepEvent }

func (s *Step) MarshalJSON() ([]byte, error) {
	type step Step
	return json.Marshal(struct {
		Type EventType `json:"type"`
		*step
	}{StepEvent, (*step)(s)})
}

// Enter marks the start of a call frame. Depth counts like the depth of the
// steps executed inside the frame, the top-level frame has depth 1.
type Enter struct {
	Depth    int            `json:"depth"`
	CallType string         `json:"callType"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Input    hexutil.Bytes  `json:"input,omitempty"`
	Gas      uint64         `json:"gas"`
	Value    *hexutil.Big   `json:"value,omitempty"`
}

func (*Enter) Type() EventType { return EnterEvent }

func (e *Enter) MarshalJSON() ([]byte, error) {
	type enter Enter
	return json.Marshal(struct {
		Type EventType `json:"type"`
		*enter
	}{EnterEvent, (*enter)(e)})
}

// Exit marks the end of the call frame opened by the matching Enter.
type Exit struct {
	Depth    int           `json:"depth"`
	Output   hexutil.Bytes `json:"output,omitempty"`
	GasUsed  uint64        `json:"gasUsed"`
	Error    string        `json:"error,omitempty"`
	Reverted bool          `json:"reverted"`
}

func (*Exit) Type() EventType { return ExitEvent }

func (e *Exit) MarshalJSON() ([]byte, error) {
	type exit Exit
	return json.Marshal(struct {
		Type EventType `json:"type"`
		*exit
	}{ExitEvent, (*exit)(e)})
}

// Log is a LOG0..LOG4 emission. Logs of frames that later revert are still
// reported here, the summary only carries the surviving ones.
type Log struct {
	Depth   int            `json:"depth"`
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

func (*Log) Type() EventType { return LogEvent }

func (l *Log) MarshalJSON() ([]byte, error) {
	type log Log
	return json.Marshal(struct {
		Type EventType `json:"type"`
		*log
	}{LogEvent, (*log)(l)})
}
