// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package localityd

import (
	"fmt"
	"io"
	"time"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/glusterloc/client/gluster"
	"github.com/westerndigitalcorporation/glusterloc/internal/snapshot"
)

// Config encapsulates parameters for the locality service.
type Config struct {
	Addr string // Address for HTTP requests.

	Volumes       map[string]string // Volume name -> FUSE mount point.
	DefaultVolume string            // Volume for glusterfs:///path, first by name if empty.

	GetfattrCmd  string // If set, read attributes by running this command instead of getxattr(2).
	SnapshotPath string // If set, serve attributes recorded in this snapshot instead of the volume.

	FetchRate    float64 // Max attribute reads per second from the volume, 0 for no limit.
	FetchRetries int     // Attempts per attribute read from the volume.

	CacheSize int    // Max number of cached topologies, 0 for no limit.
	Instance  string // Metric label for this service's client.
}

// DefaultConfig specifies the default values for Config.
var DefaultConfig = Config{
	Addr:         ":4460",
	Volumes:      map[string]string{},
	FetchRetries: 3,
	Instance:     "localityd",
}

// Validate validates the configuration object has reasonable (not obviously
// wrong) values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("address of the locality service can not be empty")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size can not be negative")
	}
	if c.FetchRate < 0 {
		return fmt.Errorf("fetch rate can not be negative")
	}
	if c.GetfattrCmd != "" && c.SnapshotPath != "" {
		return fmt.Errorf("getfattr command and snapshot are mutually exclusive")
	}
	if _, ok := c.Volumes[c.DefaultVolume]; c.DefaultVolume != "" && !ok {
		return fmt.Errorf("default volume %q has no mount point", c.DefaultVolume)
	}
	for name, mount := range c.Volumes {
		if mount == "" {
			return fmt.Errorf("volume %q has no mount point", name)
		}
	}
	return nil
}

// Backoff and burst for reads from a live volume.
const (
	retryMinSleep = 50 * time.Millisecond
	retryMaxSleep = time.Second
	fetchBurst    = 16
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewClient creates the client described by 'cfg'. The returned Closer
// releases whatever the fetcher holds open and must be closed after the
// client is no longer used.
func NewClient(cfg Config) (*gluster.Client, io.Closer, error) {
	var fetcher gluster.Fetcher
	var closer io.Closer = nopCloser{}

	switch {
	case cfg.SnapshotPath != "":
		db, err := snapshot.Open(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("Serving %d recorded attributes from %s", db.Len(), cfg.SnapshotPath)
		fetcher, closer = db, db
	case cfg.GetfattrCmd != "":
		cf, err := gluster.NewCommandFetcher(cfg.GetfattrCmd)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("Reading attributes with %q", cf)
		fetcher = cf
	default:
		fetcher = gluster.XattrFetcher{}
	}
	if cfg.SnapshotPath == "" {
		fetcher = gluster.WithRetries(fetcher, cfg.FetchRetries, retryMinSleep, retryMaxSleep)
		fetcher = gluster.Throttled(fetcher, cfg.FetchRate, fetchBurst)
	}

	client := gluster.NewClient(gluster.Options{
		Volumes:       cfg.Volumes,
		DefaultVolume: cfg.DefaultVolume,
		Fetcher:       fetcher,
		CacheSize:     cfg.CacheSize,
		Instance:      cfg.Instance,
	})
	return client, closer, nil
}
