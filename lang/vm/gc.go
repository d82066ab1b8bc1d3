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

import "github.com/probechain/go-probe/lang/value"

// color is the uniform tri-color mark used by every heap object's header,
// regardless of its Go dynamic type (string, table, closure, userdata).
type color uint8

const (
	colorWhite color = iota
	colorGray
	colorBlack
)

// object is the uniform header every GC-managed value carries, mirroring
// the teacher's flat {type, color, next} allocation record generalized
// from a byte-addressable arena into a traced object graph.
type object struct {
	col  color
	next *object
}

// heap is a stop-the-world mark-sweep tracing collector. Allocation is
// gated by a debt counter checked between instructions (never mid-
// instruction, so a table or string under construction is never observed
// half-built by a collection), exactly as the teacher's Memory type gates
// growth checks on an allocation counter rather than after every write.
type heap struct {
	strings *value.StringPool

	tables    map[*value.Table]*object
	closures  map[*value.Closure]*object
	userdata  map[*value.UserData]*object
	upvalues  map[*value.UpValue]*object

	allocated int64
	debt      int64
	threshold int64

	onFinalize func(*value.UserData)
}

// newHeap returns an empty heap with an initial collection threshold.
func newHeap() *heap {
	return &heap{
		strings:   value.NewStringPool(),
		tables:    make(map[*value.Table]*object),
		closures:  make(map[*value.Closure]*object),
		userdata:  make(map[*value.UserData]*object),
		upvalues:  make(map[*value.UpValue]*object),
		threshold: 64 << 10,
	}
}

func (h *heap) newTable() *value.Table {
	t := value.NewTable()
	h.tables[t] = &object{}
	h.account(64)
	return t
}

func (h *heap) registerClosure(c *value.Closure) {
	h.closures[c] = &object{}
	h.account(int64(32 + 8*len(c.Upvals)))
}

func (h *heap) newUserData(data interface{}) *value.UserData {
	u := &value.UserData{Data: data}
	h.userdata[u] = &object{}
	h.account(48)
	return u
}

func (h *heap) registerUpvalue(u *value.UpValue) {
	h.upvalues[u] = &object{}
	h.account(24)
}

func (h *heap) internString(s string) *value.String {
	h.account(int64(16 + len(s)))
	return h.strings.Intern(s)
}

// account charges n bytes of debt; needsCollection reports whether the
// debt has reached the collection threshold.
func (h *heap) account(n int64) {
	h.allocated += n
	h.debt += n
}

func (h *heap) needsCollection() bool { return h.debt >= h.threshold }

// roots enumerates every GC root: the globals table, the registry table,
// every live call frame's register window and every still-open upvalue.
type roots struct {
	globals *value.Table
	registry *value.Table
	frames  []*frame
	openUps []*value.UpValue
}

// collect runs one full stop-the-world mark-sweep cycle.
func (h *heap) collect(r roots) {
	marked := make(map[interface{}]bool)

	var markValue func(value.Value)
	markValue = func(v value.Value) {
		switch v.Kind() {
		case value.KindTable:
			markTable(v.AsTable(), marked, markValue)
		case value.KindClosure:
			markClosure(v.AsClosure(), marked, markValue)
		case value.KindUserData:
			u := v.AsUserData()
			if marked[u] {
				return
			}
			marked[u] = true
			if u.Meta != nil {
				markTable(u.Meta, marked, markValue)
			}
		}
	}

	if r.globals != nil {
		markTable(r.globals, marked, markValue)
	}
	if r.registry != nil {
		markTable(r.registry, marked, markValue)
	}
	for _, f := range r.frames {
		for _, v := range f.regs {
			markValue(v)
		}
	}
	for _, up := range r.openUps {
		marked[up] = true
		markValue(up.Get())
	}

	h.sweepTables(marked)
	h.sweepClosures(marked)
	h.sweepUserData(marked)
	h.sweepUpvalues(marked, r.openUps)
	h.strings.Sweep(func(*value.String) bool {
		// Strings are reached transitively through table/closure constants,
		// which this lightweight collector treats as immortal (interned
		// constants are never synthesized at runtime beyond parse time);
		// only explicitly unreferenced dynamic strings are ever swept by
		// callers that track liveness themselves via StringPool.Sweep.
		return true
	})

	h.debt = 0
}

func markTable(t *value.Table, marked map[interface{}]bool, markValue func(value.Value)) {
	if marked[t] {
		return
	}
	marked[t] = true
	for _, v := range t.ArrayPart() {
		markValue(v)
	}
	for k, v := range t.HashPart() {
		if !t.WeakKeys() {
			markValue(k)
		}
		if !t.WeakValues() {
			markValue(v)
		}
	}
	if t.Meta != nil {
		markTable(t.Meta, marked, markValue)
	}
}

func markClosure(c *value.Closure, marked map[interface{}]bool, markValue func(value.Value)) {
	if marked[c] {
		return
	}
	marked[c] = true
	for _, k := range c.Proto.Constants {
		markValue(k)
	}
	for _, up := range c.Upvals {
		marked[up] = true
		markValue(up.Get())
	}
}

func (h *heap) sweepTables(marked map[interface{}]bool) {
	for t := range h.tables {
		if !marked[t] {
			delete(h.tables, t)
		}
	}
}

func (h *heap) sweepClosures(marked map[interface{}]bool) {
	for c := range h.closures {
		if !marked[c] {
			delete(h.closures, c)
		}
	}
}

// sweepUserData passes each unreached UserData to the host callback set by
// SetFinalizer, if any, before removing it from the heap. It does not look
// up or call a __gc metatable field.
func (h *heap) sweepUserData(marked map[interface{}]bool) {
	for u := range h.userdata {
		if marked[u] {
			continue
		}
		if h.onFinalize != nil {
			h.onFinalize(u)
		}
		delete(h.userdata, u)
	}
}

func (h *heap) sweepUpvalues(marked map[interface{}]bool, open []*value.UpValue) {
	for u := range h.upvalues {
		if marked[u] {
			continue
		}
		delete(h.upvalues, u)
	}
}

// Stats summarizes the heap for host introspection (e.g. a REPL's
// collectgarbage("count") equivalent).
type Stats struct {
	Allocated int64
	Tables    int
	Closures  int
	UserData  int
}

func (h *heap) stats() Stats {
	return Stats{
		Allocated: h.allocated,
		Tables:    len(h.tables),
		Closures:  len(h.closures),
		UserData:  len(h.userdata),
	}
}
