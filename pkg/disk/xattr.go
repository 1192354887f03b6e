// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Package disk reads extended file attributes by path.

package disk

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// XattrError records an error and the operation, file path and attribute name
// that caused it.
type XattrError struct {
	Op   string // What is the operation?
	Path string // What is the file path?
	Name string // What is the name of the attribute?
	Err  error  // What is the error?
}

// Error implements error.
func (x *XattrError) Error() string {
	return fmt.Sprintf("xattr error, op=%s, path=%s, name=%s, error=%s", x.Op, x.Path, x.Name, x.Err)
}

// NoAttr reports whether the attribute, or the file, doesn't exist.
func (x *XattrError) NoAttr() bool {
	return x.Err == unix.ENODATA || x.Err == unix.ENOENT || x.Err == unix.ENOTSUP
}

func newXattrError(op, path, name string, err error) *XattrError {
	return &XattrError{Op: op, Path: path, Name: name, Err: err}
}

// initialSize is the first buffer we try. Pathinfo values of a striped and
// replicated file easily exceed a page.
const initialSize = 4096

// Getxattr gets the value of the attribute 'name' of the file at 'path'. The
// name is used as given, including its namespace.
func Getxattr(path, name string) ([]byte, error) {
	value := make([]byte, initialSize)
	size, err := unix.Getxattr(path, name, value)
	if nil == err {
		return value[:size], nil
	}

	// Return the error if it's not complaining about the buffer size.
	if unix.ERANGE != err {
		return nil, newXattrError("getxattr", path, name, err)
	}

	// The value grew beyond our buffer. Ask for the proper size directly, a
	// nil buffer returns the current size of the attribute.
	if size, err = unix.Getxattr(path, name, nil); nil != err {
		return nil, newXattrError("getxattr", path, name, err)
	}
	if size <= 0 {
		return nil, newXattrError("getxattr", path, name, fmt.Errorf("size cannot be non-positive"))
	}
	value = make([]byte, size)
	if size, err = unix.Getxattr(path, name, value); nil != err {
		return nil, newXattrError("getxattr", path, name, err)
	}
	return value[:size], nil
}

// Listxattr returns the names of all attributes of the file at 'path'.
func Listxattr(path string) ([]string, error) {
	size, err := unix.Listxattr(path, nil)
	if nil != err {
		return nil, newXattrError("listxattr", path, "", err)
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	if size, err = unix.Listxattr(path, buf); nil != err {
		return nil, newXattrError("listxattr", path, "", err)
	}
	return convertCStrings(buf[:size]), nil
}

// convertCStrings converts a set of NULL-terminated UTF-8 strings to a set of
// go strings.
func convertCStrings(cstrings []byte) []string {
	return strings.FieldsFunc(string(cstrings), func(c rune) bool { return 0 == c })
}
