package store

import "time"

// CacheEntry is a row in cache_entries describing one cached result file.
type CacheEntry struct {
	Key            string
	OutputPath     string
	SizeBytes      int64
	Operation      string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
}

// Owner is a row in owners describing a known requester and their settings.
type Owner struct {
	ID             int64
	Username       string
	Capabilities   string
	StartPaddingMs int64
	EndPaddingMs   int64
	CreatedAt      time.Time
	LastActive     time.Time
}

// StartPadding returns the owner's leading padding as a duration.
func (o Owner) StartPadding() time.Duration {
	return time.Duration(o.StartPaddingMs) * time.Millisecond
}

// EndPadding returns the owner's trailing padding as a duration.
func (o Owner) EndPadding() time.Duration {
	return time.Duration(o.EndPaddingMs) * time.Millisecond
}

// HistoryEntry records one completed batch for an owner.
type HistoryEntry struct {
	ID         int64
	OwnerID    int64
	SourceName string
	Operation  string
	ClipCount  int
	TotalBytes int64
	Duration   time.Duration
	CreatedAt  time.Time
}

// Template is a named set of operation parameters saved by an owner.
type Template struct {
	ID         int64
	OwnerID    int64
	Name       string
	ParamsJSON string
	CreatedAt  time.Time
}
