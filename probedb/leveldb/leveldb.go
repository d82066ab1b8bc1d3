// Copyright 2024 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package leveldb implements the probedb.KeyValueStore interface on top of
// syndtr/goleveldb, for caching compiled rocket prototypes on disk between
// process invocations.
package leveldb

import (
	"github.com/probechain/go-probe/probedb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Database is a persistent prototype cache backed by a LevelDB instance.
type Database struct {
	db *leveldb.DB
}

// New opens a LevelDB database rooted at file, creating it if it does not
// already exist. cacheSize and handles tune the block cache size (MiB) and
// the number of open file handles, mirroring the teacher's chain database
// defaults.
func New(file string, cacheSize, handles int) (*Database, error) {
	if cacheSize < 16 {
		cacheSize = 16
	}
	if handles < 16 {
		handles = 16
	}
	db, err := leveldb.OpenFile(file, &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cacheSize / 2 * opt.MiB,
		WriteBuffer:            cacheSize / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	})
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// NewMemory opens an in-memory LevelDB instance, useful for tests and for
// hosts that only want a bounded in-process prototype cache.
func NewMemory() (*Database, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

func (db *Database) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

func (db *Database) Get(key []byte) ([]byte, error) {
	dat, err := db.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, probedb.ErrNotFound
		}
		return nil, err
	}
	return dat, nil
}

func (db *Database) Put(key []byte, value []byte) error {
	return db.db.Put(key, value, nil)
}

func (db *Database) Delete(key []byte) error {
	return db.db.Delete(key, nil)
}

func (db *Database) Stat(property string) (string, error) {
	if property == "" {
		property = "leveldb.stats"
	}
	return db.db.GetProperty(property)
}

func (db *Database) Compact(start []byte, limit []byte) error {
	return db.db.CompactRange(util.Range{Start: start, Limit: limit})
}

func (db *Database) NewBatch() probedb.Batch {
	return &batch{db: db.db, b: new(leveldb.Batch)}
}

func (db *Database) NewIterator(prefix []byte, start []byte) probedb.Iterator {
	return db.db.NewIterator(bytesPrefixRange(prefix, start), nil)
}

func (db *Database) Close() error {
	return db.db.Close()
}

// batch buffers Put/Delete calls and flushes them atomically on Write, so a
// recompiled source tree is cached in a single disk write instead of one
// write per prototype.
type batch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *batch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *batch) ValueSize() int { return b.size }

func (b *batch) Write() error {
	return b.db.Write(b.b, nil)
}

func (b *batch) Reset() {
	b.b.Reset()
	b.size = 0
}

func bytesPrefixRange(prefix, start []byte) *util.Range {
	r := util.BytesPrefix(prefix)
	r.Start = append(r.Start, start...)
	return r
}

// the leveldb iterator.Iterator already satisfies probedb.Iterator's method
// set (Next/Error/Key/Value/Release); assert it at compile time.
var _ probedb.Iterator = (iterator.Iterator)(nil)
