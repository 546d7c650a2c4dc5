// Package middleware provides HTTP middleware for the mua API.
package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/httputil"
)

// authTimingFloor is the minimum response time for rejected requests, so
// failures cannot be told apart by latency.
const authTimingFloor = 50 * time.Millisecond

const (
	lockoutMaxFailures = 5
	lockoutWindow      = 15 * time.Minute
	lockoutDuration    = 5 * time.Minute
	lockoutSweep       = time.Minute
	lockoutMaxClients  = 10_000
)

// enforceTimingFloor sleeps if needed so the response takes at least authTimingFloor.
func enforceTimingFloor(start time.Time) {
	if elapsed := time.Since(start); elapsed < authTimingFloor {
		time.Sleep(authTimingFloor - elapsed)
	}
}

// truncateKey returns at most the first 4 characters of key followed by "...".
func truncateKey(key string) string {
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return key
}

type failures struct {
	count    int
	first    time.Time
	lockedAt time.Time
}

// Lockout counts failed authentications per client IP and blocks clients
// that fail too often within the window.
type Lockout struct {
	mu      sync.Mutex
	clients map[string]*failures
	now     func() time.Time
	log     *logrus.Logger
}

// NewLockout creates a Lockout whose sweeper stops when ctx is cancelled.
func NewLockout(ctx context.Context, log *logrus.Logger) *Lockout {
	l := &Lockout{clients: make(map[string]*failures), now: time.Now, log: log}
	go l.sweep(ctx)

	return l
}

// Blocked reports whether ip is locked out.
func (l *Lockout) Blocked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.clients[ip]

	return ok && !f.lockedAt.IsZero() && l.now().Sub(f.lockedAt) < lockoutDuration
}

// Fail records a failed attempt from ip.
func (l *Lockout) Fail(ip string) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.clients[ip]
	if !ok || now.Sub(f.first) > lockoutWindow {
		if !ok && len(l.clients) >= lockoutMaxClients {
			return
		}

		l.clients[ip] = &failures{count: 1, first: now}

		return
	}

	f.count++
	if f.count >= lockoutMaxFailures && f.lockedAt.IsZero() {
		f.lockedAt = now
		l.log.WithField("client_ip", ip).Warn("client locked out after repeated auth failures")
	}
}

// Reset clears the failures of ip after a successful authentication.
func (l *Lockout) Reset(ip string) {
	l.mu.Lock()
	delete(l.clients, ip)
	l.mu.Unlock()
}

func (l *Lockout) sweep(ctx context.Context) {
	ticker := time.NewTicker(lockoutSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := l.now()

			l.mu.Lock()
			for ip, f := range l.clients {
				expiredLock := !f.lockedAt.IsZero() && now.Sub(f.lockedAt) >= lockoutDuration
				staleWindow := f.lockedAt.IsZero() && now.Sub(f.first) >= lockoutWindow

				if expiredLock || staleWindow {
					delete(l.clients, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// APIKeyAuth returns Gin middleware that accepts requests bearing apiKey.
// Keys are compared in constant time. A nil lockout disables client blocking.
func APIKeyAuth(apiKey string, log *logrus.Logger, lockout *Lockout) gin.HandlerFunc {
	want := sha256.Sum256([]byte(apiKey))

	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if c.Writer.Status() == http.StatusUnauthorized {
				enforceTimingFloor(start)
			}
		}()

		ip := c.ClientIP()

		if lockout != nil && lockout.Blocked(ip) {
			respondError(c, http.StatusTooManyRequests, httputil.CodeRateLimited, "too many failed authentication attempts")
			return
		}

		token := ExtractBearerToken(c)
		if token == "" {
			respondError(c, http.StatusUnauthorized, httputil.CodeUnauthorized, "missing or invalid authorization header")
			return
		}

		got := sha256.Sum256([]byte(token))
		if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
			logAuthFailure(log, c, token)

			if lockout != nil {
				lockout.Fail(ip)
			}

			respondError(c, http.StatusUnauthorized, httputil.CodeUnauthorized, "invalid api key")
			return
		}

		if lockout != nil {
			lockout.Reset(ip)
		}

		c.Next()
	}
}

// ExtractBearerToken extracts the API key from the Authorization header.
func ExtractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func logAuthFailure(log *logrus.Logger, c *gin.Context, token string) {
	log.WithFields(logrus.Fields{
		"client_ip":  c.ClientIP(),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"user_agent": c.Request.UserAgent(),
		"request_id": c.GetString(RequestIDKey),
		"key_prefix": truncateKey(token),
	}).Warn("authentication failed: invalid api key")
}
