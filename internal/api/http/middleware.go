package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/intelliweather/weather-api/internal/obs"
	"github.com/intelliweather/weather-api/internal/ratelimit"
)

// Identity is what the rate limiter keys on: a stable caller ID plus the
// caller's subscription tier.
type Identity struct {
	ID   string
	Tier string
}

// IdentityResolver turns an incoming request into an Identity.
type IdentityResolver interface {
	Resolve(c *fiber.Ctx) Identity
}

// KeyTableResolver resolves identities from a static API-key -> tier table.
// A request presenting a known key is identified by the hashed key at the
// key's tier; anything else is identified by client IP at the free tier.
// When both an API key and an IP are present the key wins: one caller, one
// canonical identity.
type KeyTableResolver struct {
	keys map[string]string // api key -> tier
}

func NewKeyTableResolver(keys map[string]string) *KeyTableResolver {
	if keys == nil {
		keys = make(map[string]string)
	}
	return &KeyTableResolver{keys: keys}
}

func (r *KeyTableResolver) Resolve(c *fiber.Ctx) Identity {
	key := c.Get("X-API-Key")
	if key == "" {
		if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
			key = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if key != "" {
		if tier, ok := r.keys[key]; ok {
			return Identity{ID: "key:" + hashKey(key), Tier: tier}
		}
		// Unknown keys are not an auth failure here (the key table is static
		// config, not an account store); they fall back to IP identity.
	}
	return Identity{ID: "ip:" + clientIP(c), Tier: ratelimit.TierFree}
}

// hashKey derives the identity from an API key without ever storing the key
// itself in limiter state or logs.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// clientIP honors proxy headers before falling back to the direct peer.
func clientIP(c *fiber.Ctx) string {
	if fwd := c.Get("X-Forwarded-For"); fwd != "" {
		// First hop in the chain is the original client.
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if real := c.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	return c.IP()
}

// rateLimitExcluded are paths the limiter never charges.
var rateLimitExcluded = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// RateLimit returns the middleware enforcing per-identity quotas. It runs
// before any cache lookup or upstream fetch, so denied requests cost nothing
// downstream.
func RateLimit(limiter *ratelimit.Limiter, resolver IdentityResolver, metrics *obs.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, skip := rateLimitExcluded[c.Path()]; skip {
			return c.Next()
		}

		id := resolver.Resolve(c)
		decision, err := limiter.Check(id.ID, id.Tier, time.Now())
		if err != nil {
			// Unknown tier is a configuration bug, not a quota denial.
			log.Printf("ERROR: rate limit check failed for %s: %v", id.ID, err)
			return fiber.NewError(fiber.StatusInternalServerError, "rate limiter misconfigured")
		}

		if !decision.Allowed {
			metrics.RateLimitDecision(false)

			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(decision.RetryAfter).Unix(), 10))

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       true,
				"message":     "rate limit exceeded; try again in " + strconv.Itoa(retryAfter) + "s",
				"window":      decision.Window,
				"retry_after": retryAfter,
			})
		}

		metrics.RateLimitDecision(true)
		c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		return c.Next()
	}
}
