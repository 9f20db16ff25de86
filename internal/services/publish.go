package services

import (
	"context"

	"coinfolio/internal/logger"
	"coinfolio/internal/updates"
)

// publish tells the user's stream subscribers their profile changed. Failures
// are logged: the change is already committed and clients also poll.
func publish(ctx context.Context, p updates.Publisher, userID string) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, userID, updates.EventProfileUpdate); err != nil {
		logger.Get().Warnw("failed to publish profile update", "user_id", userID, "error", err)
	}
}
