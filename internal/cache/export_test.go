package cache

import "time"

// SetClock replaces the clock used for access times.
func SetClock(c *Cache, now func() time.Time) { c.now = now }
