// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package snapshot keeps recorded pathinfo attributes in a boltdb file, so that
// locality can be computed, and problems reproduced, away from the volume.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/boltdb/bolt"
	log "github.com/golang/glog"
	"github.com/golang/snappy"
)

var (
	mode       = 0600
	attrBucket = []byte("pathinfo")

	// ErrNotRecorded is returned by Fetch for paths not in the snapshot.
	ErrNotRecorded = errors.New("path not recorded in snapshot")

	// streamMagic starts every exported stream.
	streamMagic = []byte("gpisnap1")
)

// maxRecord bounds the length of a path or attribute in an imported stream.
const maxRecord = 1 << 20

// DB maps file paths to their raw pathinfo attribute.
type DB struct {
	db *bolt.DB
}

// Open opens the database at 'path', creating it if it doesn't exist.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, os.FileMode(mode), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %q: %s", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(attrBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket in %q: %s", path, err)
	}
	log.Infof("Opened snapshot %s", path)
	return &DB{db: db}, nil
}

// Put records the attribute of 'path'.
func (d *DB) Put(path, raw string) error {
	return d.PutAll(map[string]string{path: raw})
}

// PutAll records many attributes in one transaction.
func (d *DB) PutAll(attrs map[string]string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(attrBucket)
		for path, raw := range attrs {
			if path == "" {
				return fmt.Errorf("empty path")
			}
			if err := b.Put([]byte(path), []byte(raw)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the attribute recorded for 'path'.
func (d *DB) Get(path string) (raw string, ok bool) {
	d.db.View(func(tx *bolt.Tx) error {
		// Values are only valid during the transaction; string() copies.
		if v := tx.Bucket(attrBucket).Get([]byte(path)); v != nil {
			raw, ok = string(v), true
		}
		return nil
	})
	return
}

// Fetch returns the recorded attribute of 'path', so that a DB can stand in
// for the live volume.
func (d *DB) Fetch(path string) (string, error) {
	if raw, ok := d.Get(path); ok {
		return raw, nil
	}
	return "", ErrNotRecorded
}

// ListPaths returns all recorded paths starting with the given prefix, in
// lexicographic order.
func (d *DB) ListPaths(prefix string) (out []string) {
	d.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(attrBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	return
}

// Len returns the number of recorded paths.
func (d *DB) Len() (n int) {
	d.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(attrBucket).Stats().KeyN
		return nil
	})
	return
}

// WriteTo writes every record to 'w' as a snappy compressed stream. The stream
// is the magic string followed by (path length, path, value length, value)
// records with little endian uint32 lengths.
func (d *DB) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	sw := snappy.NewBufferedWriter(cw)

	var n int
	err := d.db.View(func(tx *bolt.Tx) error {
		if _, err := sw.Write(streamMagic); err != nil {
			return err
		}
		return tx.Bucket(attrBucket).ForEach(func(k, v []byte) error {
			n++
			if err := writeRecord(sw, k); err != nil {
				return err
			}
			return writeRecord(sw, v)
		})
	})
	if err == nil {
		err = sw.Close()
	}
	if err != nil {
		return cw.n, fmt.Errorf("failed to export snapshot: %s", err)
	}
	log.Infof("Exported %d records, %d bytes", n, cw.n)
	return cw.n, nil
}

// ReadFrom reads a stream written by WriteTo and records everything in it,
// replacing existing records for the same paths.
func (d *DB) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	sr := snappy.NewReader(cr)

	magic := make([]byte, len(streamMagic))
	if _, err := io.ReadFull(sr, magic); err != nil || !bytes.Equal(magic, streamMagic) {
		return cr.n, fmt.Errorf("not a snapshot stream")
	}

	var n int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(attrBucket)
		for {
			k, err := readRecord(sr)
			if err == io.EOF {
				return nil
			} else if err != nil {
				return err
			}
			v, err := readRecord(sr)
			if err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return err
			}
			if err := b.Put(k, v); err != nil {
				return err
			}
			n++
		}
	})
	if err != nil {
		return cr.n, fmt.Errorf("failed to import snapshot: %s", err)
	}
	log.Infof("Imported %d records", n)
	return cr.n, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func writeRecord(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readRecord returns io.EOF only if the stream ends before the record starts.
func readRecord(r io.Reader) ([]byte, error) {
	var l uint32
	if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
		return nil, err
	}
	if l > maxRecord {
		return nil, fmt.Errorf("record too long: %d", l)
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return b, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
