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

package vm

import (
	"errors"
	"fmt"

	"github.com/probechain/go-probe/lang/value"
	"github.com/probechain/go-probe/log"
)

var (
	ErrStackOverflow   = errors.New("vm: stack overflow")
	ErrInvalidOpcode   = errors.New("vm: invalid opcode")
	ErrNotCallable     = errors.New("vm: attempt to call a non-function value")
	ErrUnsupportedOp   = errors.New("vm: unsupported native operation")
)

// MaxCallDepth bounds the Go-native call stack used for nested pcall/call
// frames, standing in for the teacher's gas-metered loop bound.
const MaxCallDepth = 200

// frame is one active (or, while open upvalues still reference it, recently
// returned) call record, patterned on the teacher's
// {returnPC, returnReg, baseReg} call-frame struct generalized with an
// owned register window so upvalues can outlive the frame.
type frame struct {
	cl       *value.Closure
	regs     []value.Value
	varargs  []value.Value
	pc       int
	openUps  map[int]*value.UpValue
	tailcall bool
}

// closure returns the closure this frame is executing.
func (f *frame) closure() *value.Closure { return f.cl }

func (f *frame) openUpvalue(h *heap, idx int) *value.UpValue {
	if f.openUps == nil {
		f.openUps = make(map[int]*value.UpValue)
	}
	if up, ok := f.openUps[idx]; ok {
		return up
	}
	up := value.NewOpenUpValue(f.regs, idx)
	h.registerUpvalue(up)
	f.openUps[idx] = up
	return up
}

func (f *frame) closeUpvalsFrom(idx int) {
	for i, up := range f.openUps {
		if i >= idx {
			up.Close()
			delete(f.openUps, i)
		}
	}
}

// State is one independent VM instance: its own heap, globals table and
// call stack. Concurrent scripts get independent States; sharing mutable
// values across States is the embedder's responsibility, matching the
// teacher's per-chain-client VM instantiation.
type State struct {
	heap     *heap
	Globals  *value.Table
	Registry *value.Table
	frames   []*frame
	log      log.Logger
	onPanic  []func(error)

	// oomMessage is allocated once at State creation, outside the pool and
	// the heap's accounted allocations, so it remains usable as an error
	// value even when the collector's allocation debt is already exhausted.
	oomMessage *value.String
}

// NewState returns a freshly initialized State with empty globals and
// registry tables.
func NewState() *State {
	h := newHeap()
	return &State{
		heap:       h,
		Globals:    h.newTable(),
		Registry:   h.newTable(),
		log:        log.Root().New("module", "rocket-vm"),
		oomMessage: value.NewUnmanagedString("not enough memory"),
	}
}

// OutOfMemoryError returns the pre-allocated out-of-memory error value, safe
// to hand back to a caller even while the heap itself cannot satisfy a new
// allocation.
func (s *State) OutOfMemoryError() value.Value { return value.Str(s.oomMessage) }

// Intern returns the canonical *value.String for s from this state's string
// pool.
func (s *State) Intern(str string) *value.String { return s.heap.internString(str) }

// NewTable allocates a heap-tracked table.
func (s *State) NewTable() *value.Table { return s.heap.newTable() }

// NewUserData allocates a heap-tracked userdata wrapping data.
func (s *State) NewUserData(data interface{}) *value.UserData { return s.heap.newUserData(data) }

// SetFinalizer installs the callback run on UserData values the collector
// determines are unreachable, the only kind of value __gc ever fires for.
func (s *State) SetFinalizer(fn func(*value.UserData)) { s.heap.onFinalize = fn }

// Stats reports current heap occupancy for host introspection.
func (s *State) Stats() Stats { return s.heap.stats() }

// Collect forces an immediate garbage collection cycle.
func (s *State) Collect() {
	s.heap.collect(s.currentRoots())
}

func (s *State) currentRoots() roots {
	r := roots{globals: s.Globals, registry: s.Registry, frames: s.frames}
	for _, f := range s.frames {
		for _, up := range f.openUps {
			r.openUps = append(r.openUps, up)
		}
	}
	return r
}

func (s *State) maybeCollect() {
	if s.heap.needsCollection() {
		s.Collect()
	}
}

// NewClosure wraps proto with upvals into a heap-tracked closure value.
func (s *State) NewClosure(proto *value.Prototype, upvals []*value.UpValue) *value.Closure {
	c := value.NewClosure(proto, upvals)
	s.heap.registerClosure(c)
	return c
}

// runtimeError carries a script-level error value through Go's error
// interface so pcall can hand the original value.Value back to the caller
// instead of a stringified message.
type runtimeError struct {
	val   value.Value
	trace string
}

func (e *runtimeError) Error() string {
	if e.val.IsString() {
		return e.val.AsString().Data
	}
	return e.val.String()
}

// RuntimeError wraps an arbitrary script-level error value (as thrown by
// `error(v)`) so it can propagate through Go's error return path to PCall.
func RuntimeError(v value.Value) error { return &runtimeError{val: v} }

// ErrorValue extracts the original value.Value from a runtime error created
// by RuntimeError, or wraps err's message as a string Value otherwise.
func (s *State) ErrorValue(err error) value.Value {
	var re *runtimeError
	if errors.As(err, &re) {
		return re.val
	}
	return value.Str(s.Intern(err.Error()))
}

// Call invokes fn with args and returns its results, or the error fn
// raised (see PCall for Lua-style protected calls).
func (s *State) Call(fn value.Value, args []value.Value) ([]value.Value, error) {
	switch fn.Kind() {
	case value.KindGoFunction:
		return fn.AsGoFunction()(args)
	case value.KindClosure:
		return s.callClosure(fn.AsClosure(), args, false)
	default:
		if mm := s.metamethod(fn, "__call"); !mm.IsNil() {
			return s.Call(mm, append([]value.Value{fn}, args...))
		}
		return nil, ErrNotCallable
	}
}

// PCall invokes fn the way Lua's pcall does: Go panics and runtime errors
// alike are recovered and reported as (nil results, error) instead of
// propagating to the caller, implementing the spec's protected-call
// unwind.
func (s *State) PCall(fn value.Value, args []value.Value) (results []value.Value, err error) {
	savedFrames := len(s.frames)
	defer func() {
		if r := recover(); r != nil {
			s.frames = s.frames[:savedFrames]
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("vm: %v", r)
			}
		}
	}()
	return s.Call(fn, args)
}

func (s *State) callClosure(c *value.Closure, args []value.Value, isTail bool) ([]value.Value, error) {
	if len(s.frames) >= MaxCallDepth {
		return nil, ErrStackOverflow
	}

	f := &frame{cl: c, regs: make([]value.Value, max(c.Proto.NumRegs, len(args)+1)), tailcall: isTail}
	for i := 0; i < c.Proto.NumParams && i < len(args); i++ {
		f.regs[i] = args[i]
	}
	if c.Proto.IsVararg && len(args) > c.Proto.NumParams {
		f.varargs = append([]value.Value(nil), args[c.Proto.NumParams:]...)
	}

	s.frames = append(s.frames, f)
	defer func() {
		f.closeUpvalsFrom(0)
		s.frames = s.frames[:len(s.frames)-1]
	}()

	return s.run(f)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Index implements GETTABLE (obj[key]) with __index metamethod fallback,
// exported for the embedding API's gettable/getfield.
func (s *State) Index(obj, key value.Value) (value.Value, error) { return s.index(obj, key) }

// NewIndex implements SETTABLE (obj[key] = val) with __newindex metamethod
// fallback, exported for the embedding API's settable/setfield.
func (s *State) NewIndex(obj, key, val value.Value) error { return s.newindex(obj, key, val) }

// Metamethod looks up event on v's metatable, exported for the embedding
// API's getmetatable-driven helpers.
func (s *State) Metamethod(v value.Value, event string) value.Value { return s.metamethod(v, event) }

// Metatable returns v's metatable (nil if it has none or cannot carry one).
func (s *State) Metatable(v value.Value) *value.Table {
	switch v.Kind() {
	case value.KindTable:
		return v.AsTable().Meta
	case value.KindUserData:
		return v.AsUserData().Meta
	}
	return nil
}

// SetMetatable installs mt as v's metatable. Returns false for value kinds
// that cannot carry one (only tables and userdata can).
func (s *State) SetMetatable(v value.Value, mt *value.Table) bool {
	switch v.Kind() {
	case value.KindTable:
		v.AsTable().Meta = mt
		return true
	case value.KindUserData:
		v.AsUserData().Meta = mt
		return true
	}
	return false
}

// metamethod looks up event on v's metatable, if v is a table or userdata
// carrying one.
func (s *State) metamethod(v value.Value, event string) value.Value {
	var mt *value.Table
	switch v.Kind() {
	case value.KindTable:
		mt = v.AsTable().Meta
	case value.KindUserData:
		mt = v.AsUserData().Meta
	}
	if mt == nil {
		return value.Nil
	}
	return mt.Get(value.Str(s.Intern(event)))
}
