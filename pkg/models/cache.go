package models

import "time"

// CacheEntry wraps a cached QueryResult with its write time and TTL.
type CacheEntry struct {
	Key       string        `json:"key"`
	Result    *QueryResult  `json:"result"`
	WrittenAt time.Time     `json:"written_at"`
	TTL       time.Duration `json:"ttl"`
}
