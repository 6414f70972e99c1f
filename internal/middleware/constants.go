package middleware

import "time"

// Rate limiter housekeeping
const (
	// CleanupInterval is how often the rate limiter sweeps its per-IP map.
	CleanupInterval = 5 * time.Minute

	// CleanupThreshold is the map size that triggers a sweep.
	CleanupThreshold = 10000
)
