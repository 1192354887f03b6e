// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package gluster

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	shlex "github.com/flynn-archive/go-shlex"
	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/glusterloc/internal/core"
	"github.com/westerndigitalcorporation/glusterloc/pkg/disk"
)

// Fetcher returns the raw pathinfo attribute of a file, in the form
// trusted.glusterfs.pathinfo="...".
type Fetcher interface {
	Fetch(path string) (string, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(path string) (string, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(path string) (string, error) {
	return f(path)
}

// XattrFetcher reads the attribute with getxattr(2). The path must be on a
// GlusterFS FUSE mount, which synthesizes the value on each call.
type XattrFetcher struct{}

// Fetch implements Fetcher.
func (XattrFetcher) Fetch(path string) (string, error) {
	value, err := disk.Getxattr(path, core.PathInfoKey)
	if err != nil {
		return "", err
	}
	// The kernel hands us the bare value, possibly NUL terminated.
	value = bytes.TrimRight(value, "\x00")
	return Envelope(string(value)), nil
}

// Envelope wraps an attribute value the way getfattr prints it.
func Envelope(value string) string {
	return core.PathInfoKey + `="` + value + `"`
}

// DefaultGetfattrCmd is the command CommandFetcher runs if none is given.
const DefaultGetfattrCmd = "getfattr -m . -n " + core.PathInfoKey

// CommandFetcher runs an external command with the path appended and returns
// its standard output. This is useful where reading trusted.* attributes
// requires privileges, e.g. "sudo getfattr ...".
type CommandFetcher struct {
	args []string
}

// NewCommandFetcher splits 'cmdline' into arguments with shell quoting rules.
// An empty command line means DefaultGetfattrCmd.
func NewCommandFetcher(cmdline string) (*CommandFetcher, error) {
	if strings.TrimSpace(cmdline) == "" {
		cmdline = DefaultGetfattrCmd
	}
	args, err := shlex.Split(cmdline)
	if err != nil {
		return nil, fmt.Errorf("bad command %q: %s", cmdline, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("bad command %q: no program", cmdline)
	}
	return &CommandFetcher{args: args}, nil
}

// Fetch implements Fetcher.
func (c *CommandFetcher) Fetch(path string) (string, error) {
	cmd := exec.Command(c.args[0], append(c.args[1:], path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %s: %s", strings.Join(c.args, " "), path, err, strings.TrimSpace(stderr.String()))
	}
	log.V(2).Infof("%s %s: %q", c.args[0], path, out)
	return string(out), nil
}

// String returns the command line.
func (c *CommandFetcher) String() string {
	return strings.Join(c.args, " ")
}
