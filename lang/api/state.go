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

// Package api is the stack-discipline embedding surface in front of
// lang/vm, generalizing the teacher's probe-lang/integration host wrapper
// (which shuttled a single Contract in and a single ExecutionResult back
// out of a freshly built VM) into the indexed value-stack convention a
// general-purpose embedder needs: push arguments, call, read results back
// off the same stack, all without the host ever touching a lang/value.Value
// directly. Every operation addresses the stack with an index, positive
// counting from the bottom (1 is the first pushed value) or negative
// counting from the top (-1 is the last pushed value), exactly as in the
// modeled scripting language's own C embedding API.
package api

import (
	"github.com/probechain/go-probe/lang/value"
	"github.com/probechain/go-probe/lang/vm"
	"github.com/probechain/go-probe/log"
)

// State is one embeddable interpreter instance: a lang/vm.State plus the
// value stack every host-facing operation in this package indexes into.
// Open returns a State with empty stack, globals and registry; Close
// releases the host's reference to it (the heap itself is reclaimed by
// Go's GC once unreachable — there is no separate free() step).
type State struct {
	vm    *vm.State
	stack []value.Value
	log   log.Logger
}

// Open returns a freshly initialized State. alloc and ud mirror the
// modeled API's allocator-hook signature for embedding parity, but are
// unused: Go's runtime is the only allocator lang/vm ever calls, so a host
// wanting to account for or bound memory use should read VM().Stats()
// instead of installing a custom allocator.
func Open(alloc func(ptr interface{}, osize, nsize int) interface{}, ud interface{}) *State {
	return &State{
		vm:  vm.NewState(),
		log: log.Root().New("module", "rocket-api"),
	}
}

// Close releases s. Present for symmetry with Open and for hosts that want
// an explicit lifecycle boundary; it does not need to run anything since
// the underlying heap is reclaimed once s is no longer referenced.
func (s *State) Close() {
	s.stack = nil
}

// VM exposes the underlying lang/vm.State for callers that need direct
// access (e.g. cmd/rocket reading heap statistics through Stats),
// bypassing the stack discipline.
func (s *State) VM() *vm.State { return s.vm }

// Top returns the number of values currently on the stack (equivalently,
// the largest valid positive index).
func (s *State) Top() int { return len(s.stack) }

// SetTop adjusts the stack to hold exactly n values: growing pads with
// nil, shrinking discards the excess from the top.
func (s *State) SetTop(n int) {
	switch {
	case n < 0:
		n = len(s.stack) + n + 1
	case n == len(s.stack):
		return
	}
	if n < 0 {
		n = 0
	}
	if n <= len(s.stack) {
		s.stack = s.stack[:n]
		return
	}
	for len(s.stack) < n {
		s.stack = append(s.stack, value.Nil)
	}
}

// absIndex converts a possibly-negative stack index into an absolute
// 0-based slice index, or -1 if idx is out of range.
func (s *State) absIndex(idx int) int {
	if idx > 0 {
		if idx > len(s.stack) {
			return -1
		}
		return idx - 1
	}
	if idx < 0 {
		pos := len(s.stack) + idx
		if pos < 0 {
			return -1
		}
		return pos
	}
	return -1
}

// at returns the value at idx, or Nil if idx addresses no live slot —
// mirroring the modeled API's convention that reading past the stack top
// yields nil rather than panicking the host.
func (s *State) at(idx int) value.Value {
	i := s.absIndex(idx)
	if i < 0 {
		return value.Nil
	}
	return s.stack[i]
}

func (s *State) push(v value.Value) { s.stack = append(s.stack, v) }

// Pop discards the top n values.
func (s *State) Pop(n int) {
	if n <= 0 {
		return
	}
	if n > len(s.stack) {
		n = len(s.stack)
	}
	s.stack = s.stack[:len(s.stack)-n]
}

// PushNil pushes nil.
func (s *State) PushNil() { s.push(value.Nil) }

// PushBool pushes a boolean.
func (s *State) PushBool(b bool) { s.push(value.Bool(b)) }

// PushNumber pushes a float64.
func (s *State) PushNumber(n float64) { s.push(value.Number(n)) }

// PushInteger pushes n as a number (the runtime has no separate integer
// subtype; every number is a float64, matching lang/value.Value).
func (s *State) PushInteger(n int64) { s.push(value.Number(float64(n))) }

// PushString interns str in this State's heap and pushes it.
func (s *State) PushString(str string) { s.push(value.Str(s.vm.Intern(str))) }

// PushGoFunction pushes a host-native function as a callable value.
func (s *State) PushGoFunction(fn value.GoFunction) { s.push(value.GoFunc(fn)) }

// PushLightUserData pushes an opaque host pointer the collector never
// manages.
func (s *State) PushLightUserData(p interface{}) { s.push(value.LightUD(p)) }

// PushValue pushes a copy of the value already at idx onto the top.
func (s *State) PushValue(idx int) { s.push(s.at(idx)) }

// Insert moves the top value into position idx, shifting values originally
// at and above idx up by one.
func (s *State) Insert(idx int) {
	i := s.absIndex(idx)
	if i < 0 || len(s.stack) == 0 {
		return
	}
	top := s.stack[len(s.stack)-1]
	copy(s.stack[i+1:], s.stack[i:len(s.stack)-1])
	s.stack[i] = top
}

// Remove deletes the value at idx, shifting everything above it down by
// one.
func (s *State) Remove(idx int) {
	i := s.absIndex(idx)
	if i < 0 {
		return
	}
	s.stack = append(s.stack[:i], s.stack[i+1:]...)
}

// Replace pops the top value and stores it at idx.
func (s *State) Replace(idx int) {
	if len(s.stack) == 0 {
		return
	}
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	i := s.absIndex(idx)
	if i < 0 {
		return
	}
	s.stack[i] = top
}

// Type reports the kind of the value at idx.
func (s *State) Type(idx int) value.Kind { return s.at(idx).Kind() }

func (s *State) IsNil(idx int) bool      { return s.at(idx).IsNil() }
func (s *State) IsBool(idx int) bool     { return s.at(idx).IsBoolean() }
func (s *State) IsNumber(idx int) bool   { return s.at(idx).IsNumber() }
func (s *State) IsString(idx int) bool   { return s.at(idx).IsString() }
func (s *State) IsTable(idx int) bool    { return s.at(idx).IsTable() }
func (s *State) IsFunction(idx int) bool { return s.at(idx).IsFunction() }
func (s *State) IsUserData(idx int) bool { return s.at(idx).IsUserData() }

// ToBool reads idx as Lua-style truthiness, not a strict boolean check.
func (s *State) ToBool(idx int) bool { return s.at(idx).Truthy() }

// ToNumber returns the number at idx and whether it was in fact a number.
func (s *State) ToNumber(idx int) (float64, bool) {
	v := s.at(idx)
	if !v.IsNumber() {
		return 0, false
	}
	return v.AsNumber(), true
}

// ToInteger truncates the number at idx towards zero.
func (s *State) ToInteger(idx int) (int64, bool) {
	n, ok := s.ToNumber(idx)
	return int64(n), ok
}

// ToString returns the string at idx, or its printable representation if
// it is a number (the one implicit-conversion the modeled API grants),
// and whether idx addressed a string or number at all.
func (s *State) ToString(idx int) (string, bool) {
	v := s.at(idx)
	switch {
	case v.IsString():
		return v.AsString().Data, true
	case v.IsNumber():
		return v.String(), true
	default:
		return "", false
	}
}

// ToPointer exposes the heap object's identity for reference-kind values,
// for hosts that need to key a side-table on "this exact table/closure"
// without retaining a typed handle.
func (s *State) ToPointer(idx int) interface{} { return s.at(idx).Obj() }

// Describe returns the human-readable form of the value at idx for any
// kind (nil/boolean/"table: 0x..."/etc.), the print()-style rendering
// rather than ToString's stricter string-or-number conversion.
func (s *State) Describe(idx int) string { return s.at(idx).String() }
