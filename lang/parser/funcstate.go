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

// Package parser implements a single-pass recursive-descent compiler that
// emits vm bytecode directly while parsing, with no intermediate AST:
// expressions commit to registers as they are parsed and jump targets are
// patched through label/patch-list bookkeeping kept on each FuncState.
package parser

import (
	"github.com/probechain/go-probe/lang/value"
	"github.com/probechain/go-probe/lang/vm"
)

// localVar is a committed local variable: once a name is declared it owns
// register reg for the rest of its enclosing block.
type localVar struct {
	name string
	reg  int
	// captured is set once some nested closure has captured this local as
	// an upvalue, so leaving its block must close it rather than merely
	// free its register.
	captured bool
}

// blockScope tracks one lexical block: the set of locals declared since
// its start (for un-declaring on block exit) and, for loop bodies, the
// jump patch list for pending `break` statements.
type blockScope struct {
	firstLocal  int
	isLoop      bool
	breakPatches []int
}

// funcState accumulates one function prototype's bytecode as the parser
// descends through its body; nested function literals push a new
// funcState that chains to parent via upvalue resolution.
type funcState struct {
	parent *funcState

	code      []uint32
	lines     []int32
	constants []value.Value
	constMap  map[value.Value]int
	protos    []*protoBuilder

	locals []localVar
	blocks []*blockScope

	upvals    []upvalDesc
	upvalMap  map[string]int

	freeReg   int
	numRegs   int
	numParams int
	isVararg  bool
	line      int
}

type upvalDesc struct {
	name            string
	fromParentLocal bool
	index           int
}

// protoBuilder is the finished, nested form of a funcState once its body
// has been fully parsed, ready for Prototype conversion.
type protoBuilder = funcState

func newFuncState(parent *funcState) *funcState {
	fs := &funcState{
		parent:   parent,
		constMap: make(map[value.Value]int),
		upvalMap: make(map[string]int),
	}
	fs.enterBlock(false)
	return fs
}

func (fs *funcState) enterBlock(isLoop bool) {
	fs.blocks = append(fs.blocks, &blockScope{firstLocal: len(fs.locals), isLoop: isLoop})
}

// leaveBlock pops the innermost block, freeing its locals' registers and
// returning any pending break-jump offsets for the caller to patch once it
// knows the loop's exit address.
func (fs *funcState) leaveBlock() []int {
	b := fs.blocks[len(fs.blocks)-1]
	fs.blocks = fs.blocks[:len(fs.blocks)-1]
	fs.locals = fs.locals[:b.firstLocal]
	// Loop control registers are not locals, so the next free register is
	// one past the highest remaining local rather than the local count.
	fs.freeReg = fs.numParamRegsBase()
	if len(fs.locals) > 0 {
		fs.freeReg = fs.locals[len(fs.locals)-1].reg + 1
	}
	return b.breakPatches
}

// numParamRegsBase exists only so freeReg recompute reads consistently;
// locals always start at register 0 in this allocator (params are locals).
func (fs *funcState) numParamRegsBase() int { return 0 }

func (fs *funcState) addBreakPatch(pc int) {
	for i := len(fs.blocks) - 1; i >= 0; i-- {
		if fs.blocks[i].isLoop {
			fs.blocks[i].breakPatches = append(fs.blocks[i].breakPatches, pc)
			return
		}
	}
}

func (fs *funcState) inLoop() bool {
	for i := len(fs.blocks) - 1; i >= 0; i-- {
		if fs.blocks[i].isLoop {
			return true
		}
	}
	return false
}

// declareLocal commits name to the next free register and returns that
// register.
func (fs *funcState) declareLocal(name string) int {
	reg := fs.freeReg
	fs.locals = append(fs.locals, localVar{name: name, reg: reg})
	fs.reserveRegs(1)
	return reg
}

func (fs *funcState) reserveRegs(n int) {
	fs.freeReg += n
	if fs.freeReg > fs.numRegs {
		fs.numRegs = fs.freeReg
	}
}

// resolveLocal searches only this function's own locals.
func (fs *funcState) resolveLocal(name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return fs.locals[i].reg, true
		}
	}
	return 0, false
}

// resolveUpval resolves name as an upvalue of fs, recursing into fs.parent
// and recording a FromParentLocal or chained upvalue descriptor the first
// time name is seen, memoizing subsequent lookups via upvalMap.
func (fs *funcState) resolveUpval(name string) (int, bool) {
	if idx, ok := fs.upvalMap[name]; ok {
		return idx, true
	}
	if fs.parent == nil {
		return 0, false
	}
	if reg, ok := fs.parent.resolveLocal(name); ok {
		fs.parent.markCaptured(reg)
		idx := len(fs.upvals)
		fs.upvals = append(fs.upvals, upvalDesc{name: name, fromParentLocal: true, index: reg})
		fs.upvalMap[name] = idx
		return idx, true
	}
	if pidx, ok := fs.parent.resolveUpval(name); ok {
		idx := len(fs.upvals)
		fs.upvals = append(fs.upvals, upvalDesc{name: name, fromParentLocal: false, index: pidx})
		fs.upvalMap[name] = idx
		return idx, true
	}
	return 0, false
}

func (fs *funcState) markCaptured(reg int) {
	for i := range fs.locals {
		if fs.locals[i].reg == reg {
			fs.locals[i].captured = true
		}
	}
}

// emit appends an instruction and its source line, returning its pc.
func (fs *funcState) emit(instr uint32, line int) int {
	fs.code = append(fs.code, instr)
	fs.lines = append(fs.lines, int32(line))
	return len(fs.code) - 1
}

func (fs *funcState) emitJump(line int) int {
	return fs.emit(vm.EncodeAsBx(vm.OpJmp, 0, 0), line)
}

// patchJump backfills the jump at pc to land at the current end of the
// instruction stream.
func (fs *funcState) patchJump(pc int) {
	fs.patchJumpTo(pc, len(fs.code))
}

func (fs *funcState) patchJumpTo(pc, target int) {
	offset := target - (pc + 1)
	op := vm.DecodeOp(fs.code[pc])
	a := vm.DecodeA(fs.code[pc])
	fs.code[pc] = vm.EncodeAsBx(op, a, offset)
}

func (fs *funcState) pc() int { return len(fs.code) }

// markTailCall rewrites the CALL instruction at pc into a TAILCALL in
// place, keeping its A (base) and B (nargs+1) operands.
func (fs *funcState) markTailCall(pc int) {
	instr := fs.code[pc]
	a, b := vm.DecodeA(instr), vm.DecodeB(instr)
	fs.code[pc] = vm.Encode(vm.OpTailCall, a, b, 0)
}

// kConstant interns value v into this function's constant pool, reusing an
// existing slot for an equal constant.
func (fs *funcState) kConstant(v value.Value) int {
	if idx, ok := fs.constMap[v]; ok {
		return idx
	}
	idx := len(fs.constants)
	fs.constants = append(fs.constants, v)
	fs.constMap[v] = idx
	return idx
}
