// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/glusterloc/internal/localityd"
)

/*

Configuring various parameters follows three steps:

  (1) Default config parameters are pulled from 'localityd.DefaultConfig'.

  (2) An optional configuration file (in json format) can be specified via the command-line flag '-cfg' to override the default values.

  (3) Optional flags can be used to override each individual parameter set in the previous two steps, e.g., '-getfattr="sudo getfattr -m . -n trusted.glusterfs.pathinfo"'.

*/

// volumeFlags collects repeated -volume name=mount flags.
type volumeFlags map[string]string

func (v volumeFlags) String() string {
	var parts []string
	for name, mount := range v {
		parts = append(parts, name+"="+mount)
	}
	return strings.Join(parts, ",")
}

func (v volumeFlags) Set(s string) error {
	i := strings.IndexByte(s, '=')
	if i <= 0 || i == len(s)-1 {
		return fmt.Errorf("expected name=mount, got %q", s)
	}
	v[s[:i]] = s[i+1:]
	return nil
}

var (
	cfg = localityd.DefaultConfig

	// Config file name.
	cfgFile = flag.String("cfg", "", "configuration file for the locality service")

	// Config parameters.
	addr          = flag.String("addr", "", "address to listen on for requests")
	defaultVolume = flag.String("defaultVolume", "", "volume that glusterfs:///path refers to")
	getfattr      = flag.String("getfattr", "", "read attributes by running this command with the path appended")
	snapshotPath  = flag.String("snapshot", "", "serve attributes recorded in this snapshot file")
	cacheSize     = flag.Int("cacheSize", -1, "max number of cached topologies, 0 for no limit")
	fetchRate     = flag.Float64("fetchRate", -1, "max attribute reads per second from the volumes, 0 for no limit")
	volumes       = volumeFlags{}
)

// Initialize config parameters. It first tries to read from the configuration
// file and then applies the command-line flags to override specified values.
func init() {
	flag.Var(volumes, "volume", "volume to serve, as name=mount; may be repeated")
	flag.Parse()

	if "" != *cfgFile {
		f, err := os.Open(*cfgFile)
		if nil != err {
			log.Fatalf("couldn't open the provided config file: %s", err)
		}
		dec := json.NewDecoder(f)
		if err = dec.Decode(&cfg); nil != err {
			log.Fatalf("failed to decode the config file: %s", err)
		}
		f.Close()
	}

	// Override values from command-line flags. Flags left at their default
	// values don't override anything.
	if "" != *addr {
		cfg.Addr = *addr
	}
	if len(volumes) > 0 {
		cfg.Volumes = map[string]string(volumes)
	}
	if "" != *defaultVolume {
		cfg.DefaultVolume = *defaultVolume
	}
	if "" != *getfattr {
		cfg.GetfattrCmd = *getfattr
	}
	if "" != *snapshotPath {
		cfg.SnapshotPath = *snapshotPath
	}
	if *cacheSize >= 0 {
		cfg.CacheSize = *cacheSize
	}
	if *fetchRate >= 0 {
		cfg.FetchRate = *fetchRate
	}
}

func main() {
	if err := cfg.Validate(); nil != err {
		log.Fatalf("invalid configuration: %s", err)
	}
	if len(cfg.Volumes) == 0 {
		log.Warningf("no volumes configured, only absolute paths can be served")
	}

	client, closer, err := localityd.NewClient(cfg)
	if nil != err {
		log.Fatalf("failed to create client: %s", err)
	}
	defer closer.Close()

	server := localityd.NewServer(cfg, client)
	log.Infof("starting locality service...")
	if e := server.Start(); nil != e {
		log.Fatalf("locality service failed: %s", e)
	}
}
