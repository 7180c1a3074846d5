package api

import (
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/echonote-api/api/types"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"golang.org/x/time/rate"
)

// UserIDHeader carries the caller identity set by the auth gateway
const UserIDHeader = "X-User-ID"

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._@:-]{1,64}$`)

// clientLimiter holds a rate limiter and its last accessed time
type clientLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CORS allows the configured origins. An empty list or "*" allows any origin.
func CORS(origins ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	wildcard := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case wildcard:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserIDHeader)
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func RequestSizeLimit() gin.HandlerFunc {
	return RequestSizeLimitWithSize(1024 * 1024)
}

func RequestSizeLimitWithSize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost ||
			c.Request.Method == http.MethodPut ||
			c.Request.Method == http.MethodPatch {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RequireUser rejects requests without a well-formed X-User-ID header
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			types.SendUnauthorized(c, "Missing "+UserIDHeader+" header")
			return
		}
		if !userIDPattern.MatchString(userID) {
			types.SendUnauthorized(c, "Invalid "+UserIDHeader+" header")
			return
		}
		c.Set(types.UserIDKey, userID)
		c.Next()
	}
}

func PerClientRateLimit(rateLimiters *sync.Map, cleanupStop chan struct{}, cleanupInitialized *sync.Once, rps int, burst int) gin.HandlerFunc {
	cleanupInitialized.Do(func() {
		go cleanupOldRateLimiters(rateLimiters, cleanupStop)
	})
	if rps <= 0 {
		rps = 1
	}

	return func(c *gin.Context) {
		key := c.GetHeader(UserIDHeader)
		if key == "" {
			key = c.ClientIP()
		}

		limiterInterface, _ := rateLimiters.LoadOrStore(key, &clientLimiter{
			limiter:  rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), burst),
			lastSeen: time.Now(),
		})

		cl := limiterInterface.(*clientLimiter)
		cl.mu.Lock()
		cl.lastSeen = time.Now()
		cl.mu.Unlock()

		if !cl.limiter.Allow() {
			types.SendError(c, apperrors.RateLimitError("api", fmt.Sprintf("%d requests/s, burst %d", rps, burst)))
			c.Abort()
			return
		}
		c.Next()
	}
}

func cleanupOldRateLimiters(rateLimiters *sync.Map, cleanupStop chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pruneRateLimiters(rateLimiters, time.Now(), 10*time.Minute)
		case <-cleanupStop:
			return
		}
	}
}

func pruneRateLimiters(rateLimiters *sync.Map, now time.Time, idle time.Duration) {
	rateLimiters.Range(func(key, value interface{}) bool {
		cl := value.(*clientLimiter)
		cl.mu.Lock()
		stale := now.Sub(cl.lastSeen) > idle
		cl.mu.Unlock()
		if stale {
			rateLimiters.Delete(key)
		}
		return true
	})
}
