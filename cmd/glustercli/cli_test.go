// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/westerndigitalcorporation/glusterloc/internal/snapshot"
)

const striped = `trusted.glusterfs.pathinfo="(<DISTRIBUTE:yuck-dht> (<STRIPE:yuck-stripe-0:[131072]> (<REPLICATE:yuck-replicate-0> <POSIX(/tmp/yuck_brick1):vm-1:/tmp/yuck_brick1/testfile> <POSIX(/tmp/yuck_brick2):vm-2:/tmp/yuck_brick2/testfile>)(<REPLICATE:yuck-replicate-1> <POSIX(/tmp/yuck_brick3):vm-3:/tmp/yuck_brick3/testfile> <POSIX(/tmp/yuck_brick4):vm-4:/tmp/yuck_brick4/testfile>)(<REPLICATE:yuck-replicate-2> <POSIX(/tmp/yuck_brick5):vm-5:/tmp/yuck_brick5/testfile> <POSIX(/tmp/yuck_brick6):vm-6:/tmp/yuck_brick6/testfile>)))"`

func TestParseVolumes(t *testing.T) {
	vols, first, err := parseVolumes([]string{"b=/mnt/b", "a=/mnt/a"})
	if err != nil || first != "b" || vols["a"] != "/mnt/a" || len(vols) != 2 {
		t.Errorf("unexpected (%v, %q, %v)", vols, first, err)
	}
	for _, bad := range []string{"a", "=/mnt", "a="} {
		if _, _, err := parseVolumes([]string{bad}); err == nil {
			t.Errorf("%q: expected an error", bad)
		}
	}
}

// Test commands end to end against a recorded snapshot.
func TestCommands(t *testing.T) {
	dir, err := ioutil.TempDir("", "glustercli_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	dbPath := filepath.Join(dir, "snap.db")
	db, err := snapshot.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	db.Put("/mnt/vol/striped", striped)
	db.Close()

	g := newGlCli()
	defer g.stop()
	var out bytes.Buffer
	g.out = &out

	global := []string{"glustercli", "--volume", "vol=/mnt/vol", "--snapshot", dbPath}
	run := func(args ...string) string {
		out.Reset()
		if err := g.run(append(global, args...)); err != nil {
			t.Fatalf("%v: %s", args, err)
		}
		return out.String()
	}

	s := run("locate", "--path", "glusterfs:///striped", "--start", "200000", "--length", "300000")
	exp := "131072\t131072\tvm-3,vm-4\n262144\t131072\tvm-5,vm-6\n393216\t106784\tvm-1,vm-2\n"
	if s != exp {
		t.Errorf("expected\n%s\ngot\n%s", exp, s)
	}

	s = run("topology", "--path", "glusterfs:///striped")
	if !strings.Contains(s, "stripe size: 131072") || !strings.Contains(s, "unit 2: vm-5 vm-6") {
		t.Errorf("unexpected topology\n%s", s)
	}

	s = run("locate", "--path", "glusterfs:///missing", "--length", "10")
	if s != "no locality available\n" {
		t.Errorf("unexpected output %q", s)
	}

	if s = run("clear"); s != "cleared 2\n" {
		t.Errorf("unexpected output %q", s)
	}

	raw := filepath.Join(dir, "raw")
	ioutil.WriteFile(raw, []byte("# file: x\n"+striped+"\n"), 0644)
	if s = run("parse", "--file", raw); !strings.Contains(s, "unit 0: vm-1 vm-2") {
		t.Errorf("unexpected parse output\n%s", s)
	}
	ioutil.WriteFile(raw, []byte("dsfsffsfdsf"), 0644)
	if s = run("parse", "--file", raw); !strings.HasPrefix(s, "invalid (no_envelope)") {
		t.Errorf("unexpected parse output %q", s)
	}
}

func TestExportImportCommands(t *testing.T) {
	dir, err := ioutil.TempDir("", "glustercli_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "src.db")
	db, err := snapshot.Open(src)
	if err != nil {
		t.Fatal(err)
	}
	db.Put("/mnt/vol/a", striped)
	db.Put("/mnt/vol/b", striped)
	db.Close()

	g := newGlCli()
	var out bytes.Buffer
	g.out = &out

	stream := filepath.Join(dir, "stream")
	if err := g.run([]string{"glustercli", "export", "--db", src, "--file", stream}); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := g.run([]string{"glustercli", "import", "--db", filepath.Join(dir, "dst.db"), "--file", stream}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "2 records\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}
