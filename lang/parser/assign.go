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

package parser

import (
	"github.com/probechain/go-probe/lang/value"
	"github.com/probechain/go-probe/lang/vm"
)

// assignTarget is the write side of an lvalue: a local register, an
// upvalue slot, a global name or a table field/index, each emitting the
// appropriate SET* instruction once the right-hand value is ready in reg.
type assignTarget interface {
	store(p *Parser, reg int, line int) error
}

type localTarget struct{ reg int }

func (t localTarget) store(p *Parser, reg int, line int) error {
	if t.reg != reg {
		p.fs.emit(vm.Encode(vm.OpMove, t.reg, reg, 0), line)
	}
	return nil
}

type upvalTarget struct{ idx int }

func (t upvalTarget) store(p *Parser, reg int, line int) error {
	p.fs.emit(vm.Encode(vm.OpSetUpval, reg, t.idx, 0), line)
	return nil
}

type globalTarget struct{ constIdx int }

func (t globalTarget) store(p *Parser, reg int, line int) error {
	p.fs.emit(vm.EncodeABx(vm.OpSetGlobal, reg, t.constIdx), line)
	return nil
}

type indexTarget struct {
	objReg int
	keyRK  int
}

func (t indexTarget) store(p *Parser, reg int, line int) error {
	p.fs.emit(vm.Encode(vm.OpSetTable, t.objReg, t.keyRK, reg), line)
	return nil
}

// fieldTarget is the pre-resolution form built while parsing a chained
// `a.b.c` function-declaration name; store() is never called on it
// directly since functionStat evaluates it down to an indexTarget first.
type fieldTarget struct {
	obj assignTarget
	key string
}

func (t fieldTarget) store(p *Parser, reg int, line int) error {
	objReg := p.fs.freeReg
	p.fs.reserveRegs(1)
	if err := t.loadObj(p, objReg, line); err != nil {
		return err
	}
	k := p.fs.kConstant(value.Str(internConst(t.key)))
	p.fs.emit(vm.Encode(vm.OpSetTable, objReg, vm.RKConst(k), reg), line)
	return nil
}

func (t fieldTarget) loadObj(p *Parser, reg int, line int) error {
	switch o := t.obj.(type) {
	case localTarget:
		if o.reg != reg {
			p.fs.emit(vm.Encode(vm.OpMove, reg, o.reg, 0), line)
		}
	case globalTarget:
		p.fs.emit(vm.EncodeABx(vm.OpGetGlobal, reg, o.constIdx), line)
	case upvalTarget:
		p.fs.emit(vm.Encode(vm.OpGetUpval, reg, o.idx, 0), line)
	case fieldTarget:
		innerReg := p.fs.freeReg
		p.fs.reserveRegs(1)
		if err := o.loadObj(p, innerReg, line); err != nil {
			return err
		}
		k := p.fs.kConstant(value.Str(internConst(o.key)))
		p.fs.emit(vm.Encode(vm.OpGetTable, reg, innerReg, vm.RKConst(k)), line)
	}
	return nil
}
