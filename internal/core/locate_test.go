// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package core

import (
	"math"
	"reflect"
	"testing"
)

// stripedTopology returns a topology with three stripe units of two replicas
// each, the layout of a 6-brick striped-replicated volume.
func stripedTopology() *Topology {
	return &Topology{
		StripeSize: 131072,
		Units: []StripeUnit{
			{Hosts: []string{"vm-1", "vm-2"}},
			{Hosts: []string{"vm-3", "vm-4"}},
			{Hosts: []string{"vm-5", "vm-6"}},
		},
	}
}

// TestLocateUnstriped checks that an unstriped file maps every range to its
// single unit.
func TestLocateUnstriped(t *testing.T) {
	topo := &Topology{StripeSize: NoStriping, Units: []StripeUnit{{Hosts: []string{"vm-2"}}}}
	blocks := Locate(topo, 10000, 20000)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block and got %d", len(blocks))
	}
	if !reflect.DeepEqual(blocks[0].Hosts, []string{"vm-2"}) {
		t.Errorf("unexpected hosts %v", blocks[0].Hosts)
	}
	if blocks[0].Offset != 0 || blocks[0].Length != 30000 {
		t.Errorf("unexpected block %s", blocks[0])
	}
}

// TestLocateStripedReplicated walks a range spanning five stripes and checks
// the round robin assignment of units.
func TestLocateStripedReplicated(t *testing.T) {
	topo := stripedTopology()
	blocks := Locate(topo, 200000, 500000)
	if len(blocks) != 5 {
		t.Fatalf("expected 5 blocks and got %d", len(blocks))
	}
	expUnits := []int{1, 2, 0, 1, 2}
	for i, b := range blocks {
		if exp := topo.Units[expUnits[i]].Hosts; !reflect.DeepEqual(b.Hosts, exp) {
			t.Errorf("block %d: expected hosts %v and got %v", i, exp, b.Hosts)
		}
		if exp := int64(i+1) * 131072; b.Offset != exp {
			t.Errorf("block %d: expected offset %d and got %d", i, exp, b.Offset)
		}
	}
	for i := 0; i < 4; i++ {
		if blocks[i].Length != 131072 {
			t.Errorf("block %d: expected a full stripe and got %d", i, blocks[i].Length)
		}
	}
	// The last block ends at start+length.
	if exp := int64(700000 - 5*131072); blocks[4].Length != exp {
		t.Errorf("expected last block length %d and got %d", exp, blocks[4].Length)
	}
}

// TestLocateShortRange checks a range that stays within three stripes.
func TestLocateShortRange(t *testing.T) {
	topo := stripedTopology()
	blocks := Locate(topo, 200000, 300000)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks and got %d", len(blocks))
	}
	for i, unit := range []int{1, 2, 0} {
		if !reflect.DeepEqual(blocks[i].Hosts, topo.Units[unit].Hosts) {
			t.Errorf("block %d: expected unit %d and got %v", i, unit, blocks[i].Hosts)
		}
	}
}

// TestLocateFirstStripe checks a range within the first stripe.
func TestLocateFirstStripe(t *testing.T) {
	topo := &Topology{StripeSize: 131072, Units: []StripeUnit{{Hosts: []string{"vm-1"}}}}
	blocks := Locate(topo, 0, 10000)
	exp := []BlockLocation{{Offset: 0, Length: 10000, Hosts: []string{"vm-1"}}}
	if !reflect.DeepEqual(blocks, exp) {
		t.Errorf("expected %v and got %v", exp, blocks)
	}
}

// TestLocateExactBoundary checks that a range ending on a stripe boundary
// doesn't produce an empty trailing block.
func TestLocateExactBoundary(t *testing.T) {
	topo := stripedTopology()
	blocks := Locate(topo, 0, 2*131072)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks and got %d", len(blocks))
	}
	if blocks[1].Offset != 131072 || blocks[1].Length != 131072 {
		t.Errorf("unexpected second block %s", blocks[1])
	}
}

// TestLocateUnavailable checks every case that yields no locality.
func TestLocateUnavailable(t *testing.T) {
	topo := stripedTopology()
	cases := []struct {
		name          string
		topo          *Topology
		start, length int64
	}{
		{"nil", nil, 0, 10},
		{"invalid", Invalid, 0, 10},
		{"no units", &Topology{StripeSize: 10}, 0, 10},
		{"zero length", topo, 0, 0},
		{"negative length", topo, 0, -1},
		{"negative start", topo, -1, 10},
		{"overflow", topo, math.MaxInt64 - 5, 10},
	}
	for _, c := range cases {
		if blocks := Locate(c.topo, c.start, c.length); blocks != nil {
			t.Errorf("%s: expected nil and got %v", c.name, blocks)
		}
	}
}

// TestLocateCopiesHosts makes sure callers can't modify a cached topology
// through the returned locations.
func TestLocateCopiesHosts(t *testing.T) {
	topo := stripedTopology()
	blocks := Locate(topo, 0, 1)
	blocks[0].Hosts[0] = "changed"
	if topo.Units[0].Hosts[0] != "vm-1" {
		t.Errorf("topology was modified through a block location")
	}
}

func TestBlockSize(t *testing.T) {
	if s := stripedTopology().BlockSize(1 << 30); s != 131072 {
		t.Errorf("expected stripe size and got %d", s)
	}
	plain := &Topology{StripeSize: NoStriping, Units: []StripeUnit{{Hosts: []string{"a"}}}}
	if s := plain.BlockSize(12345); s != 12345 {
		t.Errorf("expected file length and got %d", s)
	}
	if s := Invalid.BlockSize(12345); s != 12345 {
		t.Errorf("expected file length for invalid topology and got %d", s)
	}
}

func TestTopologyHosts(t *testing.T) {
	topo := &Topology{StripeSize: 10, Units: []StripeUnit{
		{Hosts: []string{"b", "a"}},
		{Hosts: []string{"a", "c"}},
	}}
	if h := topo.Hosts(); !reflect.DeepEqual(h, []string{"b", "a", "c"}) {
		t.Errorf("unexpected hosts %v", h)
	}
	if Invalid.Hosts() != nil || Invalid.Valid() {
		t.Errorf("invalid topology must have no hosts")
	}
}
