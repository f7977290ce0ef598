package autoscale

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goblinos/overmind/state"
)

// Level describes how much the router should shed load for a request.
type Level string

const (
	LevelNormal     Level = "normal"
	LevelCheapModel Level = "cheap_model"
	LevelEmergency  Level = "emergency"
)

// Request paths that must keep working while load is shed.
var emergencyPathPrefixes = []string{
	"/v1/health",
	"/v1/auth",
}

const emergencyFlagKey = "overmind:emergency_mode"

// Admission is the outcome of checking one request against the counters.
type Admission struct {
	Allowed bool
	Level   Level

	// Set when Allowed is false.
	RetryAfter time.Duration

	// True when the request hit an emergency endpoint or the global
	// emergency flag; such requests skip scoring entirely.
	EmergencyEndpoint bool
}

// Controller applies sliding-window rate limits backed by a shared state
// store, so multiple router instances see the same counters.
type Controller struct {
	store state.Manager

	window        time.Duration
	softThreshold int64
	hardThreshold int64
	clientLimit   int64

	logger *zap.SugaredLogger
}

func NewController(store state.Manager, window time.Duration, softThreshold int64, hardThreshold int64, clientLimit int64, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		store:         store,
		window:        window,
		softThreshold: softThreshold,
		hardThreshold: hardThreshold,
		clientLimit:   clientLimit,
		logger:        logger,
	}
}

// IsEmergencyPath reports whether the path belongs to the always-on
// surface (health checks, auth) that bypasses rate limiting.
func IsEmergencyPath(path string) bool {
	for _, prefix := range emergencyPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// SetEmergencyMode raises or clears the shared emergency flag. The flag
// expires on its own so a crashed operator session cannot wedge the
// cluster in emergency mode.
func (c *Controller) SetEmergencyMode(ctx context.Context, enabled bool, ttl time.Duration) error {
	value := []byte("0")
	if enabled {
		value = []byte("1")
	}
	return c.store.SaveCache(ctx, emergencyFlagKey, value, ttl)
}

// IsEmergencyMode reads the shared emergency flag. Store errors report
// false; shedding decisions must not depend on a healthy store.
func (c *Controller) IsEmergencyMode(ctx context.Context) bool {
	value, err := c.store.LoadCache(ctx, emergencyFlagKey)
	if err != nil {
		c.logger.Warnw("failed to read emergency flag", "error", err)
		return false
	}
	return string(value) == "1"
}

// Admit checks one request against the global and per-client counters.
// Any store failure fails open: the request proceeds at the normal level
// with a warning, never an error.
func (c *Controller) Admit(ctx context.Context, clientKey string, path string) Admission {
	if c.IsEmergencyMode(ctx) {
		return Admission{Allowed: true, Level: LevelEmergency, EmergencyEndpoint: true}
	}
	if IsEmergencyPath(path) {
		return Admission{Allowed: true, Level: LevelNormal, EmergencyEndpoint: true}
	}

	if clientKey == "" {
		clientKey = "unknown"
	}
	clientCount, err := c.store.CountRequest(ctx, "client:"+clientKey, c.window)
	if err != nil {
		c.logger.Warnw("rate limit check failed, allowing request",
			"client", clientKey, "error", err)
		return Admission{Allowed: true, Level: LevelNormal}
	}
	if clientCount > c.clientLimit {
		return Admission{
			Allowed:    false,
			Level:      LevelNormal,
			RetryAfter: c.window,
		}
	}

	globalCount, err := c.store.CountRequest(ctx, "global", c.window)
	if err != nil {
		c.logger.Warnw("global load check failed, allowing request", "error", err)
		return Admission{Allowed: true, Level: LevelNormal}
	}
	switch {
	case globalCount >= c.hardThreshold:
		return Admission{Allowed: true, Level: LevelEmergency, EmergencyEndpoint: true}
	case globalCount >= c.softThreshold:
		return Admission{Allowed: true, Level: LevelCheapModel}
	}
	return Admission{Allowed: true, Level: LevelNormal}
}
