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
	crand "crypto/rand"
	"errors"
	"fmt"
	"hash/crc32"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

const jwtExpiryTimeout = 60 * time.Second

// newVHostHandler refuses requests whose Host header names a domain outside
// vhosts. Requests addressed by IP and requests without a Host header pass.
// A "*" entry accepts every domain.
func newVHostHandler(vhosts []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(vhosts))
	for _, host := range vhosts {
		allowed[strings.ToLower(host)] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hostAllowed(allowed, r.Host) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusForbidden, errors.New("invalid host specified"))
	})
}

func hostAllowed(allowed map[string]bool, hostport string) bool {
	if hostport == "" || allowed["*"] {
		return true
	}
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport // no port
	}
	if net.ParseIP(host) != nil {
		return true
	}
	return allowed[strings.ToLower(host)]
}

// newCorsHandler applies the CORS policy for allowedOrigins. Without origins
// cross-origin requests get no CORS headers at all.
func newCorsHandler(next http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		return next
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	}).Handler(next)
}

// newJWTHandler requires a HS256 bearer token signed with secret whose
// issued-at time lies within jwtExpiryTimeout of now.
func newJWTHandler(secret []byte, next http.Handler) http.Handler {
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := checkToken(r, keyFunc); err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func checkToken(r *http.Request, keyFunc jwt.Keyfunc) error {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return errors.New("missing token")
	}
	// Claims are checked below, iat is allowed to drift into the future.
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, keyFunc,
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation())
	switch {
	case err != nil:
		return err
	case !token.Valid:
		return errors.New("invalid token")
	case !claims.VerifyExpiresAt(time.Now(), false):
		return errors.New("token is expired")
	case claims.IssuedAt == nil:
		return errors.New("missing issued-at")
	}
	if age := time.Since(claims.IssuedAt.Time); age > jwtExpiryTimeout {
		return errors.New("stale token")
	} else if -age > jwtExpiryTimeout {
		return errors.New("future token")
	}
	return nil
}

// obtainJWTSecret reads the hex encoded 32 byte secret from path. A missing
// file is created with a fresh random secret.
func obtainJWTSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		secret := common.FromHex(strings.TrimSpace(string(data)))
		if len(secret) != 32 {
			return nil, fmt.Errorf("invalid JWT secret in %s: %d bytes", path, len(secret))
		}
		log.Info("Loaded JWT secret", "path", path, "crc32", fmt.Sprintf("%#x", crc32.ChecksumIEEE(secret)))
		return secret, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	secret := make([]byte, 32)
	if _, err := crand.Read(secret); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hexutil.Encode(secret)), 0600); err != nil {
		return nil, err
	}
	log.Info("Generated JWT secret", "path", path)
	return secret, nil
}

// newRateLimitHandler refuses requests beyond the limiter's budget.
func newRateLimitHandler(limiter *rate.Limiter, m *serverMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			m.rejected.WithLabelValues("ratelimit").Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newBodyLimitHandler caps the size of request bodies.
func newBodyLimitHandler(limit int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > limit {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("body exceeds %d bytes", limit))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

// logRequests logs every request at debug level.
func logRequests(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				start = time.Now()
				ww    = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			)
			next.ServeHTTP(ww, r)
			logger.Debug("Served request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
				"bytes", ww.BytesWritten(), "reqid", middleware.GetReqID(r.Context()), "elapsed", time.Since(start))
		})
	}
}
