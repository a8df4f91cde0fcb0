package sourcecache

import (
	"sort"
	"time"
)

// Stat describes one cached instance to an eviction policy.
type Stat struct {
	Key      string
	Bytes    int64
	LastUsed time.Time
}

// Policy decides which instances to drop after an insertion.  Victims
// receives a snapshot of every cached instance and returns the keys to
// evict.  Returning an unknown key is harmless.
type Policy interface {
	Victims(stats []Stat) []string
}

// byRecency sorts stats least recently used first.
func byRecency(stats []Stat) {
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].LastUsed.Before(stats[j].LastUsed)
	})
}

type maxEntries int

// MaxEntries keeps at most n instances, dropping the least recently used
// beyond that.
func MaxEntries(n int) Policy {
	return maxEntries(n)
}

func (m maxEntries) Victims(stats []Stat) []string {
	if len(stats) <= int(m) {
		return nil
	}
	byRecency(stats)
	victims := make([]string, 0, len(stats)-int(m))
	for _, s := range stats[:len(stats)-int(m)] {
		victims = append(victims, s.Key)
	}
	return victims
}

type maxBytes int64

// MaxBytes keeps the estimated total instance weight at or below n bytes,
// dropping the least recently used first.  The most recent instance is
// never evicted even when it alone exceeds the bound.
func MaxBytes(n int64) Policy {
	return maxBytes(n)
}

func (m maxBytes) Victims(stats []Stat) []string {
	var total int64
	for _, s := range stats {
		total += s.Bytes
	}
	if total <= int64(m) {
		return nil
	}
	byRecency(stats)
	var victims []string
	for _, s := range stats[:len(stats)-1] {
		if total <= int64(m) {
			break
		}
		victims = append(victims, s.Key)
		total -= s.Bytes
	}
	return victims
}
