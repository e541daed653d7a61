// Package utils provides utility functions for the application.
package utils

// Cache key suffixes; the active prefix comes from CacheConfig.RedisPrefix
const (
	NotableSetCacheKey     = "notable_participants"
	TranslationCacheKey    = "translation"
	NotableSetCacheVersion = "v1"
)

// Run names used for lock rows and outcome records
const (
	RunNameConvergence = "convergence_scheduler"
	RunNameReconciler  = "reconciler"
	RunNameVerifier    = "verifier"
	RunNameGapDetector = "gap_detector"
	RunNameWebhook     = "webhook_correlator"
)
