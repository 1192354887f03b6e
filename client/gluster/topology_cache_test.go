// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package gluster

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/westerndigitalcorporation/glusterloc/internal/core"
)

const replicated = `trusted.glusterfs.pathinfo="(<DISTRIBUTE:HadoopVol-dht> (<REPLICATE:HadoopVol-replicate-0> <POSIX(/mnt/brick1/HadoopVol):vm-2:/mnt/brick1/HadoopVol/tmp/a> <POSIX(/mnt/brick1/HadoopVol):vm-1:/mnt/brick1/HadoopVol/tmp/a>))"`

// countingFetcher serves fixed attributes by path and counts calls.
type countingFetcher struct {
	attrs map[string]string
	calls int64
}

func (f *countingFetcher) Fetch(path string) (string, error) {
	atomic.AddInt64(&f.calls, 1)
	if raw, ok := f.attrs[path]; ok {
		return raw, nil
	}
	return "", errors.New("no such file")
}

func (f *countingFetcher) count() int64 {
	return atomic.LoadInt64(&f.calls)
}

// Test that both valid and invalid results are fetched once and then served
// from the cache.
func TestCacheIdempotent(t *testing.T) {
	f := &countingFetcher{attrs: map[string]string{
		"/good":    replicated,
		"/garbage": "dsfsffsfdsf",
		"/empty":   "",
	}}
	tc := NewTopologyCache(0, "TestCacheIdempotent")

	for _, path := range []string{"/good", "/garbage", "/empty", "/missing"} {
		before := f.count()
		t1 := tc.GetOrParse(path, f)
		t2 := tc.GetOrParse(path, f)
		if t1 != t2 {
			t.Errorf("%s: expected the same topology twice", path)
		}
		if n := f.count() - before; n != 1 {
			t.Errorf("%s: expected one fetch and got %d", path, n)
		}
		if valid := path == "/good"; t1.Valid() != valid {
			t.Errorf("%s: expected valid=%v and got %v", path, valid, t1)
		}
		if path != "/good" && t1 != core.Invalid {
			t.Errorf("%s: expected the Invalid sentinel", path)
		}
	}

	if tc.Len() != 4 {
		t.Errorf("expected 4 entries and got %d", tc.Len())
	}
	stats := tc.Stats()
	if stats.Hits != 4 || stats.Misses != 4 || stats.Invalid != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCacheClear(t *testing.T) {
	f := &countingFetcher{attrs: map[string]string{"/good": replicated}}
	tc := NewTopologyCache(0, "TestCacheClear")

	t1 := tc.GetOrParse("/good", f)
	tc.Clear()
	if tc.Len() != 0 {
		t.Errorf("expected an empty cache and got %d entries", tc.Len())
	}
	t2 := tc.GetOrParse("/good", f)
	if f.count() != 2 {
		t.Errorf("expected a fetch after clearing and got %d fetches", f.count())
	}
	if t1 == t2 {
		t.Errorf("expected a freshly parsed topology")
	}
	if t1.String() != t2.String() {
		t.Errorf("expected equal topologies and got %s and %s", t1, t2)
	}
}

func TestCacheBounded(t *testing.T) {
	f := &countingFetcher{attrs: map[string]string{}}
	for i := 0; i < 10; i++ {
		f.attrs[fmt.Sprintf("/f%d", i)] = replicated
	}
	tc := NewTopologyCache(5, "TestCacheBounded")
	for i := 0; i < 10; i++ {
		tc.GetOrParse(fmt.Sprintf("/f%d", i), f)
	}
	if tc.Len() != 5 {
		t.Errorf("expected 5 entries and got %d", tc.Len())
	}

	// /f0 was evicted and must be fetched again, /f9 wasn't.
	tc.GetOrParse("/f9", f)
	if f.count() != 10 {
		t.Errorf("expected a hit and got %d fetches", f.count())
	}
	tc.GetOrParse("/f0", f)
	if f.count() != 11 {
		t.Errorf("expected a miss and got %d fetches", f.count())
	}
}

// blockingFetcher holds every fetch until released, so that concurrent
// callers all miss.
type blockingFetcher struct {
	release chan struct{}
	calls   int64
}

func (f *blockingFetcher) Fetch(path string) (string, error) {
	atomic.AddInt64(&f.calls, 1)
	<-f.release
	return replicated, nil
}

// Test that callers racing on the same path all see the same value.
func TestCacheConcurrent(t *testing.T) {
	const n = 16
	f := &blockingFetcher{release: make(chan struct{})}
	tc := NewTopologyCache(0, "TestCacheConcurrent")

	results := make([]*core.Topology, n)
	var started, done sync.WaitGroup
	for i := 0; i < n; i++ {
		started.Add(1)
		done.Add(1)
		go func(i int) {
			started.Done()
			results[i] = tc.GetOrParse("/racy", f)
			done.Done()
		}(i)
	}
	started.Wait()
	close(f.release)
	done.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d saw a different topology", i)
		}
	}
	if !results[0].Valid() {
		t.Errorf("expected a valid topology")
	}
	if tc.GetOrParse("/racy", f) != results[0] {
		t.Errorf("cached value differs from what callers saw")
	}
	if tc.Len() != 1 {
		t.Errorf("expected one entry and got %d", tc.Len())
	}
}
