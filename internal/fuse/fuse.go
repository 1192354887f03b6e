// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// This package serves a flat directory of fake files, each of which answers
// getxattr(2) for trusted.glusterfs.pathinfo with a configured value, the way
// a GlusterFS FUSE mount does. Reads return zeros.
//
// This is not for production use! It's intended for exercising locality
// tooling on machines without a gluster volume.

package fuse

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	log "github.com/golang/glog"
	"golang.org/x/net/context"

	"github.com/westerndigitalcorporation/glusterloc/internal/core"
)

// File describes one fake file.
type File struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	PathInfo string `json:"pathinfo"` // The attribute value, without the key="..." wrapping.
}

// Layout describes the whole mount.
type Layout struct {
	Files []File `json:"files"`
}

// LoadLayout decodes a json Layout from 'r' and checks it.
func LoadLayout(r io.Reader) (*Layout, error) {
	var l Layout
	if err := json.NewDecoder(r).Decode(&l); err != nil {
		return nil, fmt.Errorf("failed to decode layout: %s", err)
	}
	seen := make(map[string]bool)
	for _, f := range l.Files {
		if f.Name == "" || f.Name == "." || f.Name == ".." || strings.ContainsRune(f.Name, '/') {
			return nil, fmt.Errorf("bad file name %q", f.Name)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate file name %q", f.Name)
		}
		if f.Size < 0 {
			return nil, fmt.Errorf("%s: negative size", f.Name)
		}
		seen[f.Name] = true
	}
	return &l, nil
}

// MountState holds information about a current mount.
type MountState struct {
	path   string       // the path we mounted on
	err    atomic.Value // an error value returned from fuse, or nil if no error so far
	exited atomic.Value // nil if the fuse server goroutine is still running, non-nil if not
}

// Mount mounts the files of 'layout' on the given path and runs the FUSE
// server in a goroutine. It returns immediately.
func Mount(layout *Layout, path string) *MountState {
	ms := &MountState{path: path}
	go ms.mount(layout)
	return ms
}

// mount is the actual mount process.
func (ms *MountState) mount(layout *Layout) {
	defer ms.exited.Store("true")

	conn, err := fuse.Mount(
		ms.path,
		fuse.FSName("pathinfo"),
		fuse.Subtype("pathinfofs"),
		fuse.ReadOnly(),
	)
	if err != nil {
		ms.err.Store(err)
		return
	}
	defer conn.Close()

	log.Infof("Serving %d fake files on %s", len(layout.Files), ms.path)
	if err = fs.Serve(conn, newPathInfoFS(layout)); err != nil {
		ms.err.Store(err)
		return
	}

	// check if the mount process has an error to report
	<-conn.Ready
	if conn.MountError != nil {
		ms.err.Store(conn.MountError)
	}
}

// Unmount tries to unmount an existing FUSE mount.
func (ms *MountState) Unmount() error {
	return fuse.Unmount(ms.path)
}

// String returns a string representation of the state of this mount.
func (ms *MountState) String() string {
	return fmt.Sprintf("on %q, error %v, exited %v",
		ms.path, ms.err.Load(), ms.Exited())
}

// Exited returns true if the FUSE goroutine has exited.
func (ms *MountState) Exited() bool {
	return ms.exited.Load() != nil
}

type pathInfoFS struct {
	files  []*fileNode
	byName map[string]*fileNode
}

func newPathInfoFS(layout *Layout) *pathInfoFS {
	p := &pathInfoFS{byName: make(map[string]*fileNode)}
	for i, f := range layout.Files {
		// Inode 1 is the root.
		n := &fileNode{inode: uint64(i) + 2, file: f}
		p.files = append(p.files, n)
		p.byName[f.Name] = n
	}
	return p
}

func (p *pathInfoFS) Root() (fs.Node, error) {
	return (*rootDir)(p), nil
}

type rootDir pathInfoFS

func (r *rootDir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Inode = 1
	a.Mode = os.ModeDir | 0555
	return nil
}

func (r *rootDir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	if n, ok := r.byName[name]; ok {
		return n, nil
	}
	return nil, fuse.ENOENT
}

func (r *rootDir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	out := make([]fuse.Dirent, 0, len(r.files))
	for _, n := range r.files {
		out = append(out, fuse.Dirent{Inode: n.inode, Name: n.file.Name, Type: fuse.DT_File})
	}
	return out, nil
}

// fileNode is both the Node and the Handle of a fake file.
type fileNode struct {
	inode uint64
	file  File
}

func (n *fileNode) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Inode = n.inode
	a.Mode = 0444
	a.Size = uint64(n.file.Size)
	a.Blocks = (a.Size + 511) / 512
	return nil
}

func (n *fileNode) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	left := n.file.Size - req.Offset
	if left <= 0 {
		resp.Data = resp.Data[:0]
		return nil
	}
	size := int64(req.Size)
	if size > left {
		size = left
	}
	data := make([]byte, size)
	resp.Data = data
	return nil
}

func (n *fileNode) Getxattr(ctx context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	if req.Name != core.PathInfoKey || n.file.PathInfo == "" {
		return fuse.ErrNoXattr
	}
	log.V(2).Infof("getxattr %s on %s", req.Name, n.file.Name)
	resp.Xattr = []byte(n.file.PathInfo)
	return nil
}

func (n *fileNode) Listxattr(ctx context.Context, req *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	if n.file.PathInfo != "" {
		resp.Append(core.PathInfoKey)
	}
	return nil
}
