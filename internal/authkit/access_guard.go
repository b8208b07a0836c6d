package authkit

import (
	"fmt"

	"go.uber.org/zap"
)

// AccessGuard enforces that a resource belongs to the authenticated identity.
type AccessGuard struct {
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewAccessGuard constructs a guard; nil collaborators fall back to no-ops.
func NewAccessGuard(metrics MetricsRecorder, logger *zap.Logger) *AccessGuard {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessGuard{metrics: metrics, logger: logger}
}

// Authorize returns ErrUnauthorized unless resourceOwnerID names the principal.
// Call it only after the resource is known to exist.
func (guard *AccessGuard) Authorize(resourceOwnerID string, principal Principal) error {
	if resourceOwnerID != "" && principal.IdentityID != "" && resourceOwnerID == principal.IdentityID {
		return nil
	}
	guard.metrics.Increment(metricAccessDenied)
	guard.logger.Warn("resource access denied",
		zap.String("code", "access.denied"),
		zap.String("identity_id", principal.IdentityID))
	return fmt.Errorf("access_guard.authorize: %w", ErrUnauthorized)
}
