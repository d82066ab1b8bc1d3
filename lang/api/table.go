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

package api

import (
	"fmt"

	"github.com/probechain/go-probe/lang/value"
)

// NewTable allocates a table and pushes it.
func (s *State) NewTable() { s.push(value.Tab(s.vm.NewTable())) }

// RawGet pops a key and pushes t[idx][key], bypassing any __index
// metamethod.
func (s *State) RawGet(idx int) {
	t := s.at(idx)
	key := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	if !t.IsTable() {
		s.push(value.Nil)
		return
	}
	s.push(t.AsTable().Get(key))
}

// RawSet pops a value then a key and stores t[idx][key] = value, bypassing
// any __newindex metamethod. Returns an error if key is NaN.
func (s *State) RawSet(idx int) error {
	t := s.at(idx)
	if len(s.stack) < 2 {
		return nil
	}
	val := s.stack[len(s.stack)-1]
	key := s.stack[len(s.stack)-2]
	s.stack = s.stack[:len(s.stack)-2]
	if t.IsTable() {
		if err := t.AsTable().Set(key, val); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}
	return nil
}

// RawGeti pushes t[idx][n], bypassing __index.
func (s *State) RawGeti(idx int, n int64) {
	t := s.at(idx)
	if !t.IsTable() {
		s.push(value.Nil)
		return
	}
	s.push(t.AsTable().Get(value.Number(float64(n))))
}

// RawSeti pops a value and stores t[idx][n] = value, bypassing
// __newindex.
func (s *State) RawSeti(idx int, n int64) {
	t := s.at(idx)
	if len(s.stack) == 0 {
		return
	}
	val := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	if t.IsTable() {
		t.AsTable().Set(value.Number(float64(n)), val)
	}
}

// GetTable pops a key and pushes t[idx][key], following __index.
func (s *State) GetTable(idx int) error {
	t := s.at(idx)
	key := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	v, err := s.vm.Index(t, key)
	if err != nil {
		return err
	}
	s.push(v)
	return nil
}

// SetTable pops a value then a key and performs t[idx][key] = value,
// following __newindex.
func (s *State) SetTable(idx int) error {
	t := s.at(idx)
	if len(s.stack) < 2 {
		return nil
	}
	val := s.stack[len(s.stack)-1]
	key := s.stack[len(s.stack)-2]
	s.stack = s.stack[:len(s.stack)-2]
	return s.vm.NewIndex(t, key, val)
}

// GetField pushes t[idx][field], following __index.
func (s *State) GetField(idx int, field string) error {
	v, err := s.vm.Index(s.at(idx), value.Str(s.vm.Intern(field)))
	if err != nil {
		return err
	}
	s.push(v)
	return nil
}

// SetField pops a value and performs t[idx][field] = value, following
// __newindex.
func (s *State) SetField(idx int, field string) error {
	if len(s.stack) == 0 {
		return nil
	}
	// idx is resolved with the value still on top, matching SetTable/RawSet:
	// a negative idx counts the pending pop as still present.
	target := s.at(idx)
	val := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return s.vm.NewIndex(target, value.Str(s.vm.Intern(field)), val)
}

// Next pops a key and, if the table at idx has a following entry, pushes
// the next key then its value and returns true; otherwise pushes nothing
// and returns false, ending iteration.
func (s *State) Next(idx int) bool {
	t := s.at(idx)
	key := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	if !t.IsTable() {
		return false
	}
	k, v, ok := t.AsTable().Next(key)
	if !ok {
		return false
	}
	s.push(k)
	s.push(v)
	return true
}

// RawEqual reports whether the values at idx1 and idx2 are primitively
// equal (no __eq metamethod dispatch).
func (s *State) RawEqual(idx1, idx2 int) bool {
	return value.RawEqual(s.at(idx1), s.at(idx2))
}

// GetGlobal pushes the value of global name.
func (s *State) GetGlobal(name string) {
	s.push(s.vm.Globals.Get(value.Str(s.vm.Intern(name))))
}

// SetGlobal pops the top value and stores it as global name.
func (s *State) SetGlobal(name string) {
	if len(s.stack) == 0 {
		return
	}
	val := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	s.vm.Globals.Set(value.Str(s.vm.Intern(name)), val)
}

// GetMetatable pushes the metatable of the value at idx and returns true,
// or pushes nothing and returns false if it has none.
func (s *State) GetMetatable(idx int) bool {
	mt := s.vm.Metatable(s.at(idx))
	if mt == nil {
		return false
	}
	s.push(value.Tab(mt))
	return true
}

// SetMetatable pops a table (or nil, to remove one) and installs it as the
// metatable of the value at idx. Returns false if idx's kind cannot carry
// a metatable.
func (s *State) SetMetatable(idx int) bool {
	if len(s.stack) == 0 {
		return false
	}
	// target is resolved against the stack as it stands with the new
	// metatable still on top, so a negative idx (e.g. -2, "the value just
	// below what I'm about to pop") addresses what the caller expects.
	target := s.at(idx)
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	var mt *value.Table
	if top.IsTable() {
		mt = top.AsTable()
	}
	return s.vm.SetMetatable(target, mt)
}
