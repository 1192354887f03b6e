// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package disk

import (
	"io/ioutil"
	"os"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func tempFile(t *testing.T) string {
	f, err := ioutil.TempFile("", "xattr_test")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

// setOrSkip sets a user attribute, skipping the test if the filesystem
// holding the temp dir doesn't support them.
func setOrSkip(t *testing.T, path, name string, value []byte) {
	if err := unix.Setxattr(path, name, value, 0); err != nil {
		if err == unix.ENOTSUP || err == unix.EPERM {
			t.Skipf("xattrs not supported here: %s", err)
		}
		t.Fatal(err)
	}
}

// Test that values larger than the first buffer are read completely.
func TestGetxattr(t *testing.T) {
	path := tempFile(t)
	defer os.Remove(path)

	small := []byte("small")
	big := []byte(strings.Repeat("x", initialSize*2+17))
	setOrSkip(t, path, "user.small", small)
	setOrSkip(t, path, "user.big", big)

	for name, exp := range map[string][]byte{"user.small": small, "user.big": big} {
		got, err := Getxattr(path, name)
		if err != nil {
			t.Fatalf("%s: %s", name, err)
		}
		if !reflect.DeepEqual(got, exp) {
			t.Errorf("%s: expected %d bytes and got %d", name, len(exp), len(got))
		}
	}

	names, err := Listxattr(path)
	if err != nil {
		t.Fatal(err)
	}
	found := 0
	for _, n := range names {
		if n == "user.small" || n == "user.big" {
			found++
		}
	}
	if found != 2 {
		t.Errorf("expected both attributes listed and got %v", names)
	}
}

func TestGetxattrMissing(t *testing.T) {
	path := tempFile(t)
	defer os.Remove(path)

	_, err := Getxattr(path, "user.missing")
	xe, ok := err.(*XattrError)
	if !ok {
		t.Fatalf("expected an *XattrError and got %v", err)
	}
	if xe.Path != path || xe.Name != "user.missing" {
		t.Errorf("unexpected error fields: %+v", xe)
	}
	if !xe.NoAttr() {
		t.Errorf("expected a missing attribute and got %s", xe.Err)
	}

	if _, err = Getxattr(path+".gone", "user.missing"); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}

func TestConvertCStrings(t *testing.T) {
	got := convertCStrings([]byte("user.a\x00trusted.b\x00\x00"))
	if exp := []string{"user.a", "trusted.b"}; !reflect.DeepEqual(got, exp) {
		t.Errorf("expected %v and got %v", exp, got)
	}
}
