// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// limiterIdleTimeout is how long an unused per-client limiter survives
// before the sweep drops it.
const limiterIdleTimeout = 3 * time.Minute

// RequestIDMiddleware ensures every request carries an X-Request-ID.
//
// Description:
//
//	Propagates the inbound X-Request-ID header or mints a fresh UUID,
//	and reflects it on the response so clients can correlate logs.
//
// Outputs:
//
//	gin.HandlerFunc - Middleware ready for use with Gin
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
			c.Request.Header.Set("X-Request-ID", requestID)
		}
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// clientLimiter is one client's token bucket plus its last use.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiters tracks per-client token buckets.
type rateLimiters struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rps     rate.Limit
	burst   int
}

// get returns the limiter for a client, creating it on first sight and
// sweeping idle entries opportunistically.
func (r *rateLimiters) get(clientIP string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cl, ok := r.clients[clientIP]
	if !ok {
		// Sweep before growing the map so abandoned clients cannot
		// accumulate without bound.
		for ip, stale := range r.clients {
			if now.Sub(stale.lastSeen) > limiterIdleTimeout {
				delete(r.clients, ip)
			}
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.clients[clientIP] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimitMiddleware limits mutating requests per client IP.
//
// Description:
//
//	Applies a token bucket per client IP to POST, PUT, PATCH, and
//	DELETE requests. Reads pass through untouched. Exhausted buckets
//	yield 429 with a Retry-After hint.
//
// Inputs:
//
//	rps - Sustained mutations per second per client
//	burst - Bucket capacity for short spikes
//
// Outputs:
//
//	gin.HandlerFunc - Middleware ready for use with Gin
//
// Thread Safety:
//
//	Safe for concurrent use; the bucket map is mutex-guarded.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	limiters := &rateLimiters{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		if !limiters.get(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Mutation rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
