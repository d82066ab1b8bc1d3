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

import (
	"errors"
	"math"
)

// ErrNaNKey is returned by Table.Set when asked to store a NaN key: NaN is
// never equal to itself, so a hash entry keyed on it could never be
// retrieved again.
var ErrNaNKey = errors.New("table index is NaN")

// Table is a hybrid array+hash associative structure: small positive
// integer keys starting at 1 live in a dense Go slice (array), everything
// else lives in a Go map (hash). Promotion from hash to array happens when
// more than half of the array part's would-be slots are occupied, matching
// the classic Lua table-growth heuristic.
type Table struct {
	array []Value
	hash  map[Value]Value
	Meta  *Table
	mode  weakMode
}

type weakMode uint8

const (
	modeStrong weakMode = iota
	modeWeakKeys
	modeWeakValues
	modeWeakBoth
)

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{hash: make(map[Value]Value)}
}

// SetMode sets the table's weak-reference mode ("k", "v" or "kv"); an
// empty or unrecognized string restores the strong (default) mode. It is
// not called when a metatable with a __mode field is installed.
func (t *Table) SetMode(m string) {
	switch m {
	case "k":
		t.mode = modeWeakKeys
	case "v":
		t.mode = modeWeakValues
	case "kv":
		t.mode = modeWeakBoth
	default:
		t.mode = modeStrong
	}
}

func (t *Table) WeakKeys() bool   { return t.mode == modeWeakKeys || t.mode == modeWeakBoth }
func (t *Table) WeakValues() bool { return t.mode == modeWeakValues || t.mode == modeWeakBoth }

// Get returns the value stored at key, or Nil if absent.
func (t *Table) Get(key Value) Value {
	if key.kind == KindNumber {
		if idx, ok := arrayIndex(key.n); ok && idx >= 1 && idx <= len(t.array) {
			return t.array[idx-1]
		}
	}
	if v, ok := t.hash[normalizeKey(key)]; ok {
		return v
	}
	return Nil
}

// Set stores value at key, removing the entry if value is Nil. Setting
// array[len(array)+1] appends and then tries to absorb any contiguous hash
// keys that follow it (array/hash promotion). Returns ErrNaNKey without
// storing anything if key is NaN.
func (t *Table) Set(key Value, val Value) error {
	if key.kind == KindNumber && math.IsNaN(key.n) {
		return ErrNaNKey
	}
	key = normalizeKey(key)
	if key.kind == KindNumber {
		if idx, ok := arrayIndex(key.n); ok && idx >= 1 {
			if idx <= len(t.array) {
				t.array[idx-1] = val
				if val.IsNil() && idx == len(t.array) {
					t.shrinkArray()
				}
				return nil
			}
			if idx == len(t.array)+1 && !val.IsNil() {
				t.array = append(t.array, val)
				t.absorbFromHash()
				return nil
			}
		}
	}
	if val.IsNil() {
		delete(t.hash, key)
		return nil
	}
	if t.hash == nil {
		t.hash = make(map[Value]Value)
	}
	t.hash[key] = val
	t.maybePromote()
	return nil
}

func (t *Table) shrinkArray() {
	n := len(t.array)
	for n > 0 && t.array[n-1].IsNil() {
		n--
	}
	t.array = t.array[:n]
}

// absorbFromHash pulls consecutive integer keys out of the hash part and
// into the array part as long as they immediately follow the array's
// current end, so `t[1]=a; t[3]=c; t[2]=b` ends up fully array-resident.
func (t *Table) absorbFromHash() {
	for {
		next := Number(float64(len(t.array) + 1))
		v, ok := t.hash[next]
		if !ok {
			return
		}
		delete(t.hash, next)
		t.array = append(t.array, v)
	}
}

// maybePromote runs the array/hash occupancy heuristic: if more than half
// of the slots a larger array part would span are occupied by present
// integer keys, migrate them into the array in one pass.
func (t *Table) maybePromote() {
	if len(t.hash) == 0 {
		return
	}
	counts := make(map[int]int)
	maxKey := 0
	for k := range t.hash {
		if k.kind != KindNumber {
			continue
		}
		idx, ok := arrayIndex(k.n)
		if !ok || idx < 1 {
			continue
		}
		bucket := 1
		for bucket < idx {
			bucket *= 2
		}
		counts[bucket]++
		if idx > maxKey {
			maxKey = idx
		}
	}
	total := 0
	bestSize := len(t.array)
	for size := 1; size <= maxKey; size *= 2 {
		total += counts[size]
		if total > size/2 {
			bestSize = size
		}
	}
	if bestSize <= len(t.array) {
		return
	}
	newArray := make([]Value, bestSize)
	copy(newArray, t.array)
	for i := len(t.array); i < bestSize; i++ {
		key := Number(float64(i + 1))
		if v, ok := t.hash[key]; ok {
			newArray[i] = v
			delete(t.hash, key)
		} else {
			newArray[i] = Nil
		}
	}
	t.array = newArray
}

// Len implements the '#' length operator: the array part's length when it
// has no internal nil holes, matching Lua's "a border" semantics for the
// common dense-array case.
func (t *Table) Len() int {
	n := len(t.array)
	for n > 0 && t.array[n-1].IsNil() {
		n--
	}
	return n
}

// Next implements stateless iteration for the VM's pairs()/next() support.
// A zero Value key starts iteration; Next returns ok=false once exhausted.
func (t *Table) Next(key Value) (Value, Value, bool) {
	if key.IsNil() {
		for i, v := range t.array {
			if !v.IsNil() {
				return Number(float64(i + 1)), v, true
			}
		}
		return t.firstHashEntry()
	}
	if key.kind == KindNumber {
		if idx, ok := arrayIndex(key.n); ok && idx >= 1 && idx <= len(t.array) {
			for i := idx; i < len(t.array); i++ {
				if !t.array[i].IsNil() {
					return Number(float64(i + 1)), t.array[i], true
				}
			}
			return t.firstHashEntry()
		}
	}
	return t.hashEntryAfter(normalizeKey(key))
}

func (t *Table) firstHashEntry() (Value, Value, bool) {
	for k, v := range t.hash {
		return k, v, true
	}
	return Nil, Nil, false
}

// hashEntryAfter relies on Go's map iteration providing a stable (if
// unordered) traversal within a single unmodified map generation: it scans
// until it finds `after`, then returns the next entry.
func (t *Table) hashEntryAfter(after Value) (Value, Value, bool) {
	found := false
	for k, v := range t.hash {
		if found {
			return k, v, true
		}
		if RawEqual(k, after) {
			found = true
		}
	}
	return Nil, Nil, false
}

// arrayIndex reports whether n is an integer (of either sign), returning it
// as an int.
func arrayIndex(n float64) (int, bool) {
	if n != float64(int(n)) {
		return 0, false
	}
	return int(n), true
}

// normalizeKey collapses integer-valued float keys so that t[1] and
// t[1.0] refer to the same slot.
func normalizeKey(key Value) Value {
	if key.kind == KindNumber {
		if idx, ok := arrayIndex(key.n); ok {
			return Number(float64(idx))
		}
	}
	return key
}

// ArrayPart exposes the dense array slots for the GC mark phase; index 0
// corresponds to key 1.
func (t *Table) ArrayPart() []Value { return t.array }

// HashPart exposes the hash slots for the GC mark phase.
func (t *Table) HashPart() map[Value]Value { return t.hash }
