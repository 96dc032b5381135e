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
	"fmt"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	DefaultHTTPHost = "localhost" // Default host interface for the HTTP server
	DefaultHTTPPort = 8000        // Default TCP port for the HTTP server
)

// Config are the settings of the HTTP service.
type Config struct {
	Host string `toml:",omitempty"`
	Port int    `toml:",omitempty"`

	// CorsAllowedOrigins lists the browser origins allowed to call the API.
	CorsAllowedOrigins []string `toml:",omitempty"`

	// VirtualHosts lists the domain names accepted in the Host header, "*"
	// accepts any. Requests addressed by IP are always served.
	VirtualHosts []string `toml:",omitempty"`

	// JWTSecret is the path to a hex encoded 32 byte secret. When set, every
	// /api request needs a HS256 bearer token signed with it.
	JWTSecret string `toml:",omitempty"`

	MaxConcurrent    int           // executions running at the same time
	RateLimit        float64       // requests per second on /api, 0 disables
	RateBurst        int           `toml:",omitempty"`
	MaxBodySize      int64         // bytes
	MaxSteps         int           // upper bound of the per request step limit, 0 is unlimited
	ExecutionTimeout time.Duration // wall clock budget of one execution
	TraceCache       int           // megabytes of compressed responses kept for /traces, 0 disables

	// StaticDir replaces the embedded /res resources with a directory.
	StaticDir string `toml:",omitempty"`
	Metrics   bool

	Timeouts rpc.HTTPTimeouts
}

// DefaultConfig contains reasonable default settings.
var DefaultConfig = Config{
	Host:             DefaultHTTPHost,
	Port:             DefaultHTTPPort,
	VirtualHosts:     []string{"localhost"},
	MaxConcurrent:    8,
	MaxBodySize:      5 * 1024 * 1024,
	MaxSteps:         100_000,
	ExecutionTimeout: 10 * time.Second,
	TraceCache:       64,
	Metrics:          true,
	Timeouts:         rpc.DefaultHTTPTimeouts,
}

// Endpoint resolves the listening address of the server.
func (c *Config) Endpoint() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

func (c *Config) sanitize() {
	if c.MaxConcurrent <= 0 {
		log.Warn("Sanitizing invalid concurrency limit", "provided", c.MaxConcurrent, "updated", DefaultConfig.MaxConcurrent)
		c.MaxConcurrent = DefaultConfig.MaxConcurrent
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultConfig.MaxBodySize
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = DefaultConfig.ExecutionTimeout
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = int(c.RateLimit)
		if c.RateBurst < 1 {
			c.RateBurst = 1
		}
	}
	checkTimeouts(&c.Timeouts)
}

// checkTimeouts replaces sub-second HTTP timeouts with the defaults.
func checkTimeouts(timeouts *rpc.HTTPTimeouts) {
	for _, t := range []struct {
		name     string
		value    *time.Duration
		fallback time.Duration
	}{
		{"read", &timeouts.ReadTimeout, rpc.DefaultHTTPTimeouts.ReadTimeout},
		{"read header", &timeouts.ReadHeaderTimeout, rpc.DefaultHTTPTimeouts.ReadHeaderTimeout},
		{"write", &timeouts.WriteTimeout, rpc.DefaultHTTPTimeouts.WriteTimeout},
		{"idle", &timeouts.IdleTimeout, rpc.DefaultHTTPTimeouts.IdleTimeout},
	} {
		if *t.value < time.Second {
			log.Warn("Sanitizing invalid HTTP timeout", "timeout", t.name, "provided", *t.value, "updated", t.fallback)
			*t.value = t.fallback
		}
	}
}
