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

package compile

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/probechain/go-probe/lang/vm"
	"github.com/probechain/go-probe/log"
	"github.com/probechain/go-probe/probedb"
)

const defaultLRUSize = 256

// Cache wraps Compile with a bounded in-memory LRU and an optional on-disk
// store, both keyed by the SHA-256 of the source text so identical chunks
// compiled under different names still share a cache entry.
type Cache struct {
	mu   sync.Mutex
	mem  *lru.Cache
	disk probedb.KeyValueStore
	log  log.Logger
}

// NewCache returns a Cache with an in-memory LRU of size entries (or
// defaultLRUSize if size <= 0) and no on-disk backing.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = defaultLRUSize
	}
	mem, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{mem: mem, log: log.Root().New("module", "rocket-compile")}, nil
}

// WithDisk installs an on-disk store backing in-memory misses; db is
// typically a *probedb/leveldb.Database.
func (c *Cache) WithDisk(db probedb.KeyValueStore) *Cache {
	c.disk = db
	return c
}

func sourceKey(src string) []byte {
	sum := sha256.Sum256([]byte(src))
	return []byte(hex.EncodeToString(sum[:]))
}

// Compile returns the cached Prototype for src if one exists (checking
// memory, then disk), compiling and populating both levels otherwise.
func (c *Cache) Compile(name, src string) (*vm.Prototype, error) {
	key := sourceKey(src)

	c.mu.Lock()
	if v, ok := c.mem.Get(string(key)); ok {
		c.mu.Unlock()
		return v.(*vm.Prototype), nil
	}
	c.mu.Unlock()

	if c.disk != nil {
		if data, err := c.disk.Get(key); err == nil {
			proto, err := decodeProto(data)
			if err == nil {
				c.mu.Lock()
				c.mem.Add(string(key), proto)
				c.mu.Unlock()
				return proto, nil
			}
			c.log.Warn("discarding corrupt cached prototype", "name", name, "err", err)
		}
	}

	proto, err := Compile(name, src)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.mem.Add(string(key), proto)
	c.mu.Unlock()

	if c.disk != nil {
		if data, err := encodeProto(proto); err != nil {
			c.log.Warn("not caching prototype to disk", "name", name, "err", err)
		} else if err := c.disk.Put(key, data); err != nil {
			c.log.Warn("writing cached prototype failed", "name", name, "err", err)
		}
	}

	return proto, nil
}
