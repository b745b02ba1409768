package model

import "time"

type HubStats struct {
	Listeners    int           `json:"listeners"`
	CachedEvents int           `json:"cached_events"`
	CacheSize    int           `json:"cache_capacity"`
	LastID       int64         `json:"last_id"`
	Uptime       time.Duration `json:"uptime"`
}
