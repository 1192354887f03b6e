// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package snapshot

import (
	"os"
	"path/filepath"

	log "github.com/golang/glog"
)

// Fetcher returns the raw pathinfo attribute of a file.
type Fetcher interface {
	Fetch(path string) (string, error)
}

// How many records go into one transaction while recording.
const recordBatch = 1000

// Record fetches the attribute of every regular file under 'root' and stores
// it. Files whose attribute can't be fetched are counted and skipped. An error
// is returned only if the walk or the database fails.
func (d *DB) Record(root string, f Fetcher) (recorded, failed int, err error) {
	batch := make(map[string]string)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := d.PutAll(batch); err != nil {
			return err
		}
		recorded += len(batch)
		batch = make(map[string]string)
		return nil
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warningf("Skipping %s: %s", path, err)
			failed++
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		raw, err := f.Fetch(path)
		if err != nil {
			log.Warningf("Failed to fetch pathinfo of %s: %s", path, err)
			failed++
			return nil
		}
		batch[path] = raw
		if len(batch) >= recordBatch {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	log.Infof("Recorded %d files under %s, %d failed", recorded, root, failed)
	return
}
