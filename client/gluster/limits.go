// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package gluster

import (
	"math/rand"
	"sync"
	"time"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/glusterloc/pkg/disk"
)

// Every pathinfo request fans out to all bricks holding the file, so bulk
// users (recording a tree, warming the cache) should be throttled.

// throttledFetcher lets through at most 'rate' fetches per second on average,
// with bursts of up to 'burst' fetches.
type throttledFetcher struct {
	f Fetcher

	lock    sync.Mutex
	rate    float64
	burst   float64
	current float64
	last    time.Time

	// Stubbed out by tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// Throttled wraps 'f' so that it's called at most 'rate' times per second on
// average. A rate <= 0 returns 'f' unchanged.
func Throttled(f Fetcher, rate float64, burst int) Fetcher {
	if rate <= 0 {
		return f
	}
	if burst < 1 {
		burst = 1
	}
	return &throttledFetcher{
		f:       f,
		rate:    rate,
		burst:   float64(burst),
		current: float64(burst),
		last:    time.Now(),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Fetch implements Fetcher.
func (t *throttledFetcher) Fetch(path string) (string, error) {
	t.sleep(t.take(t.now()))
	return t.f.Fetch(path)
}

// take refills the bucket up to 'now', takes one token, and returns how long
// the caller must wait for the balance to be non-negative again.
func (t *throttledFetcher) take(now time.Time) time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.current += t.rate * now.Sub(t.last).Seconds()
	t.last = now
	if t.current > t.burst {
		t.current = t.burst
	}
	t.current--
	if t.current >= 0 {
		return 0
	}
	return time.Duration(-t.current / t.rate * float64(time.Second))
}

// retryingFetcher retries failed fetches with jittered exponential backoff.
type retryingFetcher struct {
	f        Fetcher
	attempts int
	minSleep time.Duration
	maxSleep time.Duration
	sleep    func(time.Duration)
}

// WithRetries wraps 'f' so that a failed fetch is tried up to 'attempts' times
// in total. Missing attributes are not retried. attempts <= 1 returns 'f'
// unchanged.
func WithRetries(f Fetcher, attempts int, minSleep, maxSleep time.Duration) Fetcher {
	if attempts <= 1 {
		return f
	}
	if maxSleep < minSleep {
		maxSleep = minSleep
	}
	return &retryingFetcher{f: f, attempts: attempts, minSleep: minSleep, maxSleep: maxSleep, sleep: time.Sleep}
}

// Fetch implements Fetcher.
func (r *retryingFetcher) Fetch(path string) (raw string, err error) {
	backoff := r.minSleep
	for i := 0; i < r.attempts; i++ {
		if i > 0 {
			log.V(1).Infof("Retrying pathinfo of %q after %s: %s", path, backoff, err)
			r.sleep(backoff)
			backoff = time.Duration(float64(backoff) * (1.75 + 0.5*rand.Float64()))
			if backoff > r.maxSleep {
				backoff = r.maxSleep
			}
		}
		if raw, err = r.f.Fetch(path); err == nil || !retriable(err) {
			return
		}
	}
	return
}

// retriable returns false for errors that will be the same next time.
func retriable(err error) bool {
	if xe, ok := err.(*disk.XattrError); ok && xe.NoAttr() {
		return false
	}
	return true
}
