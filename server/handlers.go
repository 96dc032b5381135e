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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi/v5"
	"github.com/jts13/etherealog/engine"
	"github.com/jts13/etherealog/internal/version"
	"github.com/jts13/etherealog/tracer"
)

// badRequest marks errors caused by the request content.
type badRequest struct{ err error }

func (e *badRequest) Error() string { return e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

func invalid(format string, args ...any) error {
	return &badRequest{fmt.Errorf(format, args...)}
}

// statusClientClosed is reported when the client went away before the
// request finished. Nobody reads it, it only shows up in logs and metrics.
const statusClientClosed = 499

// errorStatus maps an error to the HTTP status code reported for it.
func errorStatus(err error) int {
	var (
		bad      *badRequest
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &bad), errors.Is(err, engine.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, errTraceNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, errBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return statusClientClosed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, &errorJSON{Error: err.Error()})
}

// endpointFunc is a handler which returns its result instead of writing it.
type endpointFunc func(r *http.Request) (any, error)

func (s *Server) handle(fn endpointFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := fn(r)
		if err != nil {
			status := errorStatus(err)
			switch status {
			case http.StatusInternalServerError:
				s.log.Error("Request failed", "path", r.URL.Path, "err", err)
			case statusClientClosed:
				s.log.Debug("Request canceled by client", "path", r.URL.Path)
			}
			writeError(w, status, err)
			return
		}
		if raw, ok := out.(json.RawMessage); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write(raw)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// traceOptions reads the tracer configuration from the query string.
func (s *Server) traceOptions(r *http.Request) (*tracer.Config, error) {
	var (
		q   = r.URL.Query()
		cfg = &tracer.Config{Limit: s.cfg.MaxSteps}
	)
	boolOpt := func(name string, def bool) (bool, error) {
		v := q.Get(name)
		if v == "" {
			return def, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, invalid("invalid value %q for option %s", v, name)
		}
		return b, nil
	}
	memory, err := boolOpt("memory", true)
	if err != nil {
		return nil, err
	}
	stack, err := boolOpt("stack", true)
	if err != nil {
		return nil, err
	}
	returnData, err := boolOpt("returnData", false)
	if err != nil {
		return nil, err
	}
	frames, err := boolOpt("frames", true)
	if err != nil {
		return nil, err
	}
	cfg.DisableMemory, cfg.DisableStack, cfg.EnableReturnData, cfg.DisableFrames = !memory, !stack, returnData, !frames

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return nil, invalid("invalid step limit %q", v)
		}
		if limit > 0 && (s.cfg.MaxSteps == 0 || limit < s.cfg.MaxSteps) {
			cfg.Limit = limit
		}
	}
	return cfg, nil
}

// execute runs env on a fresh engine, reporting events to delegate.
func (s *Server) execute(ctx context.Context, env *environment, opts *tracer.Config, delegate tracer.Delegate) (*summaryJSON, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
	defer cancel()

	var steps int
	counted := tracer.DelegateFunc(func(ev tracer.Event) {
		if ev.Type() == tracer.StepEvent {
			steps++
		}
		delegate.Emit(ev)
	})
	tr := tracer.New(opts, counted)
	evm, err := engine.New(&s.evm, tr.Hooks())
	if err != nil {
		return nil, err
	}
	for _, addr := range env.order {
		evm.CreateAccount(addr, env.accounts[addr])
	}
	res, err := evm.Execute(ctx, env.tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.metrics.rejected.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("execution timed out: %w", err)
		}
		return nil, err
	}
	s.metrics.observe(res, steps)
	return newSummary(res, steps, tr.Truncated()), nil
}

// run executes env and assembles, stores and returns the full response.
func (s *Server) run(r *http.Request, env *environment) (*response, error) {
	opts, err := s.traceOptions(r)
	if err != nil {
		return nil, err
	}
	rec := tracer.NewRecorder()
	summary, err := s.execute(r.Context(), env, opts, rec)
	if err != nil {
		return nil, err
	}
	resp := &response{Events: rec.Take(), Summary: summary}
	if s.store != nil {
		resp.ID = newID()
		if err := s.store.put(resp); err != nil {
			s.log.Warn("Failed to store trace", "err", err)
			resp.ID = ""
		}
	}
	return resp, nil
}

func decodeCode(input string) ([]byte, error) {
	if !strings.HasPrefix(input, "0x") && !strings.HasPrefix(input, "0X") {
		input = "0x" + input
	}
	code, err := hexutil.Decode(input)
	if err != nil {
		return nil, invalid("invalid code: %v", err)
	}
	return code, nil
}

func (s *Server) handleEval(r *http.Request) (any, error) {
	code, err := decodeCode(chi.URLParam(r, "code"))
	if err != nil {
		return nil, err
	}
	return s.run(r, evalEnvironment(code))
}

func decodeEnvironment(dec *json.Decoder) (*environment, error) {
	var body environmentJSON
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, invalid("invalid request body: %v", err)
	}
	env, err := body.toEnvironment()
	if err != nil {
		return nil, &badRequest{err}
	}
	return env, nil
}

func (s *Server) handleTransaction(r *http.Request) (any, error) {
	env, err := decodeEnvironment(json.NewDecoder(r.Body))
	if err != nil {
		return nil, err
	}
	return s.run(r, env)
}

func (s *Server) handleTrace(r *http.Request) (any, error) {
	blob, err := s.store.get(chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(blob), nil
}

func (s *Server) handleHealth(r *http.Request) (any, error) {
	return map[string]any{
		"status":   "ok",
		"inflight": s.inflight.Load(),
	}, nil
}

func (s *Server) handleVersion(r *http.Request) (any, error) {
	return version.Current(), nil
}
