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

package value

import "github.com/cespare/xxhash/v2"

// String is an interned, immutable byte string. Two String values with
// equal contents are always the same pointer once both have gone through
// StringPool.Intern, which lets == do the job of a content comparison
// everywhere except inside the pool itself.
type String struct {
	Data    string
	Hash    uint64
	Managed bool // unmanaged strings (compiled-in constants) are never swept
	next    *String
}

func (s *String) Len() int { return len(s.Data) }

// NewUnmanagedString returns a String outside any pool or collector, for
// sentinels that must remain usable even when allocation itself is failing
// (e.g. the out-of-memory error message) and for parser-time constants that
// get canonicalized into the pool only later, at load time.
func NewUnmanagedString(data string) *String {
	return &String{Data: data, Hash: xxhash.Sum64String(data), Managed: false}
}

// StringPool interns strings in chained hash buckets. Sweep removes the
// entries its keep callback rejects; the lang/vm collector calls it with a
// callback that keeps every string, so an interned string stays in the pool
// for the life of its State.
type StringPool struct {
	buckets []*String
	count   int
}

// NewStringPool returns an empty pool with an initial bucket count.
func NewStringPool() *StringPool {
	return &StringPool{buckets: make([]*String, 64)}
}

// Intern returns the canonical *String for data, allocating and chaining a
// new node if this is the first time data has been seen.
func (p *StringPool) Intern(data string) *String {
	h := xxhash.Sum64String(data)
	idx := h % uint64(len(p.buckets))

	for s := p.buckets[idx]; s != nil; s = s.next {
		if s.Hash == h && s.Data == data {
			return s
		}
	}

	s := &String{Data: data, Hash: h, Managed: true}
	p.insert(idx, s)
	p.count++
	if p.count > len(p.buckets)*2 {
		p.grow()
	}
	return s
}

func (p *StringPool) insert(idx uint64, s *String) {
	s.next = p.buckets[idx]
	p.buckets[idx] = s
}

func (p *StringPool) grow() {
	old := p.buckets
	p.buckets = make([]*String, len(old)*2)
	for _, head := range old {
		for s := head; s != nil; {
			next := s.next
			idx := s.Hash % uint64(len(p.buckets))
			s.next = p.buckets[idx]
			p.buckets[idx] = s
			s = next
		}
	}
}

// Sweep removes every interned string for which alive returns false,
// matching StringPool_SweepStrings's weak-reference discipline: the pool
// holds no strong reference of its own, so a string with no remaining
// root-reachable reference is simply unlinked here rather than traced.
func (p *StringPool) Sweep(alive func(*String) bool) {
	for i, head := range p.buckets {
		var kept *String
		for s := head; s != nil; {
			next := s.next
			if alive(s) || !s.Managed {
				s.next = kept
				kept = s
			} else {
				p.count--
			}
			s = next
		}
		// Reverse the relinked list back to original relative order isn't
		// required for a hash bucket; kept is already a valid chain.
		p.buckets[i] = kept
	}
}

// All calls fn for every interned string currently in the pool, used by the
// GC to walk string nodes during sweep without exposing bucket internals.
func (p *StringPool) All(fn func(*String)) {
	for _, head := range p.buckets {
		for s := head; s != nil; s = s.next {
			fn(s)
		}
	}
}

// Count returns the number of interned strings currently pooled.
func (p *StringPool) Count() int { return p.count }
