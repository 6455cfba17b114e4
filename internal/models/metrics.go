package models

import "time"

// SystemMetrics is a lightweight snapshot of process counters for the ops summary endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	IdentifiersMinted        uint64    `json:"identifiersMinted"`
	TransitionConflicts      uint64    `json:"transitionConflicts"`
	OrphansRecorded          uint64    `json:"orphansRecorded"`
	NotificationsFailed      uint64    `json:"notificationsFailed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
