// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package core

import (
	"math"

	log "github.com/golang/glog"
)

// Locate returns one BlockLocation per stripe-sized block of t that overlaps
// [start, start+length). Block b starts at b*StripeSize and is served by stripe
// unit b mod len(t.Units). The last block is cut short at start+length; no two
// blocks are ever merged, even when they share hosts.
//
// Locate returns nil when locality is unavailable: t is not valid, the range
// is empty or negative, or start+length doesn't fit in an int64.
func Locate(t *Topology, start, length int64) []BlockLocation {
	if !t.Valid() || length <= 0 || start < 0 || length > math.MaxInt64-start {
		return nil
	}

	size := t.StripeSize
	end := start + length
	first := start / size
	last := (end - 1) / size
	numUnits := int64(len(t.Units))

	out := make([]BlockLocation, 0, last-first+1)
	for b := first; b <= last; b++ {
		blockStart := b * size
		blockLen := min64(size, end-blockStart)
		unit := t.Units[b%numUnits]

		hosts := make([]string, len(unit.Hosts))
		copy(hosts, unit.Hosts)

		loc := BlockLocation{Offset: blockStart, Length: blockLen, Hosts: hosts}
		if log.V(2) {
			log.Infof("Locate block %s", loc)
		}
		out = append(out, loc)
	}
	return out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
