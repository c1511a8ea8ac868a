package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// JobKey holds a terminal analysis job. Terminal jobs never change, so the
// entry never needs invalidation.
func JobKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

// MatchKey holds metadata of a finished match.
func MatchKey(targetID int64) string {
	return fmt.Sprintf("match:%d", targetID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
