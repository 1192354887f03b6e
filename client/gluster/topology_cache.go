// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package gluster

import (
	"sync"

	log "github.com/golang/glog"
	"github.com/golang/groupcache/lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/westerndigitalcorporation/glusterloc/internal/core"
	"github.com/westerndigitalcorporation/glusterloc/internal/pathinfo"
)

var (
	cacheResultsSet = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "glusterloc_client",
		Name:      "cache",
	}, []string{"result", "instance"})
	parseErrorsSet = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "glusterloc",
		Name:      "parse_errors",
	}, []string{"kind"})
)

// CacheStats counts how GetOrParse calls were answered.
type CacheStats struct {
	Hits    uint64 // Answered from the cache.
	Misses  uint64 // Fetched and parsed.
	Invalid uint64 // Fetched and parsed, and the result was core.Invalid.
}

// TopologyCache memoizes the topology of each path. Both real topologies and
// core.Invalid are cached, so a path is fetched at most once for as long as
// it stays in the cache.
type TopologyCache struct {
	lock       sync.Mutex
	maxEntries int
	cache      *lru.Cache
	stats      CacheStats

	metricHit     prometheus.Counter
	metricMiss    prometheus.Counter
	metricInvalid prometheus.Counter
}

// NewTopologyCache returns an empty cache. With maxEntries == 0 the cache is
// unbounded; otherwise the least recently used paths are evicted and will be
// fetched again when asked for.
func NewTopologyCache(maxEntries int, instance string) *TopologyCache {
	if instance == "" {
		instance = "default"
	}
	return &TopologyCache{
		maxEntries:    maxEntries,
		cache:         lru.New(maxEntries),
		metricHit:     cacheResultsSet.WithLabelValues("hit", instance),
		metricMiss:    cacheResultsSet.WithLabelValues("miss", instance),
		metricInvalid: cacheResultsSet.WithLabelValues("invalid", instance),
	}
}

// GetOrParse returns the cached topology of 'path', or fetches the attribute
// with 'f', parses it and caches the result. It returns core.Invalid if the
// attribute can't be fetched or parsed. The lock is not held while fetching,
// so concurrent callers for the same path may all fetch, but the first one to
// finish decides the value everyone sees.
func (tc *TopologyCache) GetOrParse(path string, f Fetcher) *core.Topology {
	if t, ok := tc.get(path); ok {
		tc.metricHit.Inc()
		return t
	}

	t := fetchAndParse(path, f)
	tc.metricMiss.Inc()
	if t == core.Invalid {
		tc.metricInvalid.Inc()
	}
	return tc.putIfAbsent(path, t)
}

func (tc *TopologyCache) get(path string) (*core.Topology, bool) {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	if v, ok := tc.cache.Get(path); ok {
		tc.stats.Hits++
		return v.(*core.Topology), true
	}
	return nil, false
}

// putIfAbsent stores t unless another caller got there first, and returns
// whatever ends up cached.
func (tc *TopologyCache) putIfAbsent(path string, t *core.Topology) *core.Topology {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	tc.stats.Misses++
	if t == core.Invalid {
		tc.stats.Invalid++
	}
	if v, ok := tc.cache.Get(path); ok {
		log.V(1).Infof("Lost the race to cache %q, dropping our result", path)
		return v.(*core.Topology)
	}
	tc.cache.Add(path, t)
	return t
}

// Clear drops every cached entry.
func (tc *TopologyCache) Clear() {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	tc.cache = lru.New(tc.maxEntries)
	log.Infof("Topology cache cleared")
}

// Len returns the number of cached paths.
func (tc *TopologyCache) Len() int {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	return tc.cache.Len()
}

// Stats returns a copy of the counters.
func (tc *TopologyCache) Stats() CacheStats {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	return tc.stats
}

// fetchAndParse never fails: every error is logged and becomes core.Invalid.
func fetchAndParse(path string, f Fetcher) *core.Topology {
	raw, err := f.Fetch(path)
	if err != nil {
		log.Warningf("Failed to read pathinfo of %q: %s", path, err)
		return core.Invalid
	}
	if raw == "" {
		log.Warningf("Empty pathinfo for %q", path)
		return core.Invalid
	}

	t, err := pathinfo.Parse(raw)
	if err != nil {
		kind, _ := pathinfo.KindOf(err)
		parseErrorsSet.WithLabelValues(kind.String()).Inc()
		if kind == pathinfo.ErrUnbalancedDelimiter {
			// Most likely the attribute format changed under us.
			log.Errorf("Failed to parse pathinfo of %q: %s", path, err)
		} else {
			log.Warningf("Failed to parse pathinfo of %q: %s", path, err)
		}
		return core.Invalid
	}
	log.V(1).Infof("Topology of %q: %s", path, t)
	return t
}
