/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package resultcache

import (
	"code.cloudfoundry.org/bytefmt"
)

// Stats is a point-in-time snapshot of the cache state.
type Stats struct {
	TotalEntries              int     `json:"total_entries"`
	ExpiredEntries            int     `json:"expired_entries"`
	ActiveEntries             int     `json:"active_entries"`
	AverageAgeSeconds         float64 `json:"average_age_seconds"`
	EstimatedMemoryUsage      uint64  `json:"estimated_memory_usage"`
	EstimatedMemoryUsageHuman string  `json:"estimated_memory_usage_human"`
}

// Stats collects statistics over all shards. Shards are read one by one,
// so the snapshot is not atomic across the whole cache.
func (c *Cache) Stats() Stats {
	var st Stats
	var ageSum float64
	for _, s := range c.shards {
		now := c.now()
		s.mu.RLock()
		for key, entry := range s.entries {
			st.TotalEntries++
			if entry.expired(now) {
				st.ExpiredEntries++
			}
			ageSum += now.Sub(entry.createdAt).Seconds()
			st.EstimatedMemoryUsage += uint64(len(key) + len(entry.payload) + entryOverheadBytes)
		}
		s.mu.RUnlock()
	}
	st.ActiveEntries = st.TotalEntries - st.ExpiredEntries
	if st.TotalEntries > 0 {
		st.AverageAgeSeconds = ageSum / float64(st.TotalEntries)
	}
	st.EstimatedMemoryUsageHuman = bytefmt.ByteSize(st.EstimatedMemoryUsage)
	return st
}
