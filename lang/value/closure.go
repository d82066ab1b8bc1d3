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

// UpvalDesc describes, at compile time, where a closure's Nth upvalue comes
// from: a register in the immediately enclosing function's frame (when
// FromParentLocal is true) or the enclosing function's own upvalue list.
type UpvalDesc struct {
	Name            string
	FromParentLocal bool
	Index           int
}

// Prototype is the compiled, immutable body of a function: its
// instructions, constant pool and metadata, shared by every Closure built
// over it. Prototypes never change after the parser finishes emitting them.
type Prototype struct {
	Source      string
	LineDefined int
	NumParams   int
	IsVararg    bool
	NumRegs     int
	Code        []uint32
	Lines       []int32
	Constants   []Value
	Upvals      []UpvalDesc
	Protos      []*Prototype
}

// UpValue is a shared, possibly-still-stack-resident reference cell. While
// Closed is false, V points at a live register in an enclosing call frame's
// register window (Stack/Index); Close copies that register's value into
// the upvalue's own storage once the frame it pointed into returns.
type UpValue struct {
	Closed bool
	Stack  []Value // the owning frame's register window, while open
	Index  int     // index into Stack, while open
	value  Value   // storage, once closed
}

// NewOpenUpValue returns an upvalue referencing stack[index], shared by any
// number of closures created in enclosing scopes before the frame returns.
func NewOpenUpValue(stack []Value, index int) *UpValue {
	return &UpValue{Stack: stack, Index: index}
}

// Get returns the upvalue's current value, whether open or closed.
func (u *UpValue) Get() Value {
	if u.Closed {
		return u.value
	}
	return u.Stack[u.Index]
}

// Set stores val into the upvalue's current location.
func (u *UpValue) Set(val Value) {
	if u.Closed {
		u.value = val
		return
	}
	u.Stack[u.Index] = val
}

// Close copies the referenced register into the upvalue's own storage and
// severs its dependency on the enclosing frame's stack, called when that
// frame returns while a nested closure still references one of its locals.
func (u *UpValue) Close() {
	if u.Closed {
		return
	}
	u.value = u.Stack[u.Index]
	u.Closed = true
	u.Stack = nil
}

// Closure pairs a Prototype with the upvalues captured at the point the
// closure expression was evaluated.
type Closure struct {
	Proto   *Prototype
	Upvals  []*UpValue
}

// NewClosure allocates a Closure over proto with upvals already resolved by
// the VM's OpClosure handler.
func NewClosure(proto *Prototype, upvals []*UpValue) *Closure {
	return &Closure{Proto: proto, Upvals: upvals}
}
