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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jts13/etherealog/tracer"
)

const (
	wsWriteWait      = 10 * time.Second
	wsHandshakeWait  = 10 * time.Second
	wsReadBufferSize = 1024
)

func (s *Server) upgrader() *websocket.Upgrader {
	origins := make(map[string]struct{})
	for _, origin := range s.cfg.CorsAllowedOrigins {
		origins[strings.ToLower(origin)] = struct{}{}
	}
	up := &websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsReadBufferSize,
	}
	if len(origins) > 0 {
		up.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := origins["*"]; ok {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			_, ok := origins[strings.ToLower(u.Scheme+"://"+u.Host)]
			return ok
		}
	}
	return up
}

// handleStream executes one transaction per connection and pushes the events
// while they are produced. The client sends the transaction environment as
// its first message; the last server message is the summary or an error.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	opts, err := s.traceOptions(r)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		s.log.Debug("Websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxBodySize)

	conn.SetReadDeadline(time.Now().Add(wsHandshakeWait))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		s.log.Debug("Websocket read failed", "err", err)
		return
	}
	env, err := decodeEnvironment(json.NewDecoder(bytes.NewReader(msg)))
	if err != nil {
		s.closeStream(conn, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		rec      = tracer.NewRecorder()
		writeErr error
	)
	stream := tracer.DelegateFunc(func(ev tracer.Event) {
		if writeErr != nil {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if writeErr = conn.WriteJSON(ev); writeErr != nil {
			// Nobody is listening anymore, abort the execution.
			cancel()
		}
	})
	var delegate tracer.Delegate = stream
	if s.store != nil {
		delegate = tracer.Tee(rec, stream)
	}
	summary, err := s.execute(ctx, env, opts, delegate)
	if writeErr != nil {
		s.log.Debug("Websocket write failed", "err", writeErr)
		return
	}
	if err != nil {
		s.closeStream(conn, err)
		return
	}
	var id string
	if s.store != nil {
		id = newID()
		if err := s.store.put(&response{ID: id, Events: rec.Take(), Summary: summary}); err != nil {
			s.log.Warn("Failed to store trace", "err", err)
			id = ""
		}
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	conn.WriteJSON(&summaryMessage{Type: "summary", ID: id, Summary: summary})
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
}

// closeStream reports err to the client and closes the connection.
func (s *Server) closeStream(conn *websocket.Conn, err error) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	conn.WriteJSON(&errorJSON{Type: "error", Error: err.Error()})
	code := websocket.CloseInternalServerErr
	if errorStatus(err) < http.StatusInternalServerError {
		code = websocket.CloseUnsupportedData
	}
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(wsWriteWait))
}
