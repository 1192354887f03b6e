// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package gluster answers "which hosts hold this byte range of this file" for
// files on GlusterFS volumes, from the trusted.glusterfs.pathinfo attribute.
package gluster

import (
	"sort"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/glusterloc/internal/core"
	"github.com/westerndigitalcorporation/glusterloc/internal/server"
)

// OpMetric for everything the client does on behalf of callers.
var clientOps = server.NewOpMetric("glusterloc_client_ops", "op", "instance")

// Options contains configurations of a client.
type Options struct {
	// Volume name -> FUSE mount point.
	Volumes map[string]string

	// The volume glusterfs:///path refers to. If empty, the first volume by
	// name is used.
	DefaultVolume string

	// How attributes are read. XattrFetcher if nil.
	Fetcher Fetcher

	// Maximum number of cached topologies, 0 for no limit.
	CacheSize int

	// Whether client will use cache. Without it every call fetches and parses
	// the attribute again.
	DisableCache bool

	// An optional label to differentiate metrics from different client
	// instances. It will be "default" if it's not specified.
	Instance string
}

// Client maps paths and byte ranges to the hosts storing them.
type Client struct {
	volumes       *volumeMap
	fetcher       Fetcher
	cache         *TopologyCache
	cacheDisabled bool
	instance      string
}

// NewClient returns a new Client. You must pass an Option object that contains
// the configuration of the client.
func NewClient(options Options) *Client {
	if options.Instance == "" {
		options.Instance = "default"
	}
	if options.Fetcher == nil {
		options.Fetcher = XattrFetcher{}
	}
	c := &Client{
		volumes:       newVolumeMap(options.Volumes, options.DefaultVolume),
		fetcher:       options.Fetcher,
		cache:         NewTopologyCache(options.CacheSize, options.Instance),
		cacheDisabled: options.DisableCache,
		instance:      options.Instance,
	}
	for _, name := range c.VolumeNames() {
		log.Infof("Gluster volume: %s at: %s", name, c.volumes.mounts[name])
	}
	return c
}

// ResolvePath maps a glusterfs URI, or an absolute local path, to the local
// path on the FUSE mount.
func (c *Client) ResolvePath(p string) (string, error) {
	return c.volumes.resolve(p)
}

// FileToURI maps a local path under one of the mount points back to a
// glusterfs URI.
func (c *Client) FileToURI(local string) (string, error) {
	return c.volumes.toURI(local)
}

// DefaultVolume returns the name of the default volume, or "" if there are no
// volumes configured.
func (c *Client) DefaultVolume() string {
	return c.volumes.def
}

// VolumeNames returns the configured volume names, sorted.
func (c *Client) VolumeNames() []string {
	names := make([]string, 0, len(c.volumes.mounts))
	for name := range c.volumes.mounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fetcher returns the fetcher the client reads attributes with.
func (c *Client) Fetcher() Fetcher {
	return c.fetcher
}

// Topology returns the topology of the file at 'p', which is core.Invalid if
// the attribute couldn't be read or parsed. An error is returned only if 'p'
// can't be resolved.
func (c *Client) Topology(p string) (*core.Topology, error) {
	op := clientOps.Start("topology", c.instance)
	defer op.End()

	t, err := c.topology(p)
	if err != nil {
		op.Failed()
	}
	return t, err
}

func (c *Client) topology(p string) (*core.Topology, error) {
	local, err := c.ResolvePath(p)
	if err != nil {
		return nil, err
	}
	if c.cacheDisabled {
		return fetchAndParse(local, c.fetcher), nil
	}
	return c.cache.GetOrParse(local, c.fetcher), nil
}

// BlockLocations returns the hosts storing each block of [start, start+length)
// of the file at 'p'. The result is nil if locality isn't available.
func (c *Client) BlockLocations(p string, start, length int64) ([]core.BlockLocation, error) {
	op := clientOps.Start("locate", c.instance)
	defer op.End()

	t, err := c.topology(p)
	if err != nil {
		op.Failed()
		return nil, err
	}
	return core.Locate(t, start, length), nil
}

// BlockSize returns the block size to report for the file at 'p' with length
// 'fileLen': the stripe size for striped files, the whole file otherwise.
func (c *Client) BlockSize(p string, fileLen int64) (int64, error) {
	t, err := c.topology(p)
	if err != nil {
		return 0, err
	}
	return t.BlockSize(fileLen), nil
}

// ClearCache drops all cached topologies.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// CacheLen returns the number of cached topologies.
func (c *Client) CacheLen() int {
	return c.cache.Len()
}

// CacheStats returns the cache counters.
func (c *Client) CacheStats() CacheStats {
	return c.cache.Stats()
}

// OpStrings returns latency information of client operations, for status
// pages.
func (c *Client) OpStrings() map[string]string {
	out := make(map[string]string)
	for _, op := range []string{"topology", "locate"} {
		out[op] = clientOps.String(op, c.instance)
	}
	return out
}
