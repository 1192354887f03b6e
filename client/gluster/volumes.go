// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package gluster

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Scheme is the URI scheme of paths on a gluster volume.
const Scheme = "glusterfs"

var (
	// ErrUnknownVolume is returned for a URI naming a volume we have no mount
	// point for.
	ErrUnknownVolume = errors.New("unknown gluster volume")

	// ErrNotGlusterPath is returned for anything that isn't a glusterfs URI or
	// an absolute local path.
	ErrNotGlusterPath = errors.New("not a gluster path")
)

// volumeMap maps volume names to the FUSE mount points they're mounted at.
type volumeMap struct {
	mounts map[string]string
	def    string

	// Volume names by decreasing mount point length, so that the most specific
	// mount wins when mapping a local path back.
	byMount []string
}

func newVolumeMap(volumes map[string]string, def string) *volumeMap {
	vm := &volumeMap{mounts: make(map[string]string, len(volumes)), def: def}
	for name, mount := range volumes {
		vm.mounts[name] = path.Clean(mount)
		vm.byMount = append(vm.byMount, name)
	}
	sort.Slice(vm.byMount, func(i, j int) bool {
		a, b := vm.mounts[vm.byMount[i]], vm.mounts[vm.byMount[j]]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return vm.byMount[i] < vm.byMount[j]
	})
	if vm.def == "" && len(vm.byMount) > 0 {
		// Deterministic even though the map isn't ordered.
		names := append([]string(nil), vm.byMount...)
		sort.Strings(names)
		vm.def = names[0]
	}
	return vm
}

// resolve maps glusterfs://volume/p to <mount>/p. An empty volume means the
// default one. Absolute local paths are returned cleaned.
func (vm *volumeMap) resolve(p string) (string, error) {
	if strings.HasPrefix(p, "/") {
		return path.Clean(p), nil
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != Scheme {
		return "", ErrNotGlusterPath
	}
	volume := u.Host
	if volume == "" {
		volume = vm.def
	}
	mount, ok := vm.mounts[volume]
	if !ok {
		return "", ErrUnknownVolume
	}
	return path.Join(mount, "/"+u.Path), nil
}

// toURI is the inverse of resolve for paths under a known mount point. The
// name of the default volume is left out.
func (vm *volumeMap) toURI(local string) (string, error) {
	local = path.Clean(local)
	for _, name := range vm.byMount {
		mount := vm.mounts[name]
		var rest string
		switch {
		case local == mount:
			rest = "/"
		case mount == "/":
			rest = local
		case strings.HasPrefix(local, mount+"/"):
			rest = local[len(mount):]
		default:
			continue
		}
		if name == vm.def {
			name = ""
		}
		return Scheme + "://" + name + rest, nil
	}
	return "", ErrUnknownVolume
}
