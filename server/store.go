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
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/golang/snappy"
	"github.com/google/uuid"
)

var errTraceNotFound = errors.New("trace not found")

// traceStore keeps the most recent responses, snappy compressed, so that a
// trace can be fetched again by its id. The cache is bounded by the size of
// the compressed blobs.
type traceStore struct {
	cache *lru.SizeConstrainedCache[string, []byte]
}

func newTraceStore(megabytes int) *traceStore {
	if megabytes <= 0 {
		return nil
	}
	return &traceStore{cache: lru.NewSizeConstrainedCache[string, []byte](uint64(megabytes) * 1024 * 1024)}
}

// newID allocates a fresh trace id.
func newID() string {
	return uuid.NewString()
}

// put stores the encoded response under its id.
func (s *traceStore) put(resp *response) error {
	if s == nil {
		return nil
	}
	blob, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.cache.Add(resp.ID, snappy.Encode(nil, blob))
	return nil
}

// get returns the JSON encoding of a stored response.
func (s *traceStore) get(id string) ([]byte, error) {
	if s == nil {
		return nil, errTraceNotFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, errTraceNotFound
	}
	blob, ok := s.cache.Get(id)
	if !ok {
		return nil, errTraceNotFound
	}
	return snappy.Decode(nil, blob)
}
