// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package core

import (
	"fmt"
	"math"
	"strings"
)

// PathInfoKey is the name of the virtual extended attribute through which
// GlusterFS reports the translator tree and bricks backing a file.
const PathInfoKey = "trusted.glusterfs.pathinfo"

// NoStriping is the StripeSize of a file that isn't striped. Such a file
// behaves as one stripe unit that covers every offset.
const NoStriping = int64(math.MaxInt64)

// StripeUnit is one stripe of a file: the bricks (by host) holding replicas
// of every StripeSize-sized chunk assigned to it. Hosts are kept in the order
// the bricks appear in the attribute; the first one is the preferred replica.
type StripeUnit struct {
	Hosts []string `json:"hosts"`
}

// Topology is the parsed layout of a single file.
type Topology struct {
	// Raw is the attribute text this topology was parsed from.
	Raw string `json:"raw"`

	// StripeSize is the number of bytes per stripe unit, or NoStriping.
	StripeSize int64 `json:"stripe_size"`

	// Units are the stripe units in stripe order. Unit i owns the byte ranges
	// [k*S, (k+1)*S) for every k with k mod len(Units) == i.
	Units []StripeUnit `json:"units"`
}

// Invalid is the topology of a file whose attribute could not be read or
// parsed. Callers compare against it by pointer.
var Invalid = &Topology{StripeSize: -1}

// Valid returns true if t describes at least one stripe unit.
func (t *Topology) Valid() bool {
	return t != nil && t != Invalid && len(t.Units) > 0
}

// Striped returns true if the file is split across stripe units.
func (t *Topology) Striped() bool {
	return t.Valid() && t.StripeSize != NoStriping
}

// BlockSize returns the size a scheduler should treat as one block of a file
// of length fileLen: the stripe size for striped files, the whole file
// otherwise.
func (t *Topology) BlockSize(fileLen int64) int64 {
	if t.Striped() {
		return t.StripeSize
	}
	return fileLen
}

// Hosts returns every distinct host in the topology, in first-seen order.
func (t *Topology) Hosts() []string {
	if !t.Valid() {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, u := range t.Units {
		for _, h := range u.Hosts {
			if !seen[h] {
				seen[h] = true
				out = append(out, h)
			}
		}
	}
	return out
}

func (t *Topology) String() string {
	if !t.Valid() {
		return "INVALID"
	}
	size := "none"
	if t.StripeSize != NoStriping {
		size = fmt.Sprintf("%d", t.StripeSize)
	}
	units := make([]string, len(t.Units))
	for i, u := range t.Units {
		units[i] = "[" + strings.Join(u.Hosts, " ") + "]"
	}
	return fmt.Sprintf("stripe=%s units=%s", size, strings.Join(units, ","))
}

// BlockLocation is a byte range of a file together with the hosts holding it.
type BlockLocation struct {
	Offset int64    `json:"offset"`
	Length int64    `json:"length"`
	Hosts  []string `json:"hosts"`
}

func (b BlockLocation) String() string {
	return fmt.Sprintf("%d+%d@%s", b.Offset, b.Length, strings.Join(b.Hosts, ","))
}
