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
	"math"
	"testing"

	"github.com/probechain/go-probe/lang/value"
)

// buildAddOne builds a prototype for: function(x) return x + 1 end
func buildAddOne() *value.Prototype {
	p := &value.Prototype{
		NumParams: 1,
		NumRegs:   2,
		Constants: []value.Value{value.Number(1)},
	}
	p.Code = []uint32{
		Encode(OpAdd, 1, 0, RKConst(0)),
		Encode(OpReturn, 1, 2, 0),
	}
	return p
}

func TestCallClosureArithmetic(t *testing.T) {
	s := NewState()
	proto := buildAddOne()
	cl := s.NewClosure(proto, nil)

	results, err := s.Call(value.Clo(cl), []value.Value{value.Number(41)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(results) != 1 || results[0].AsNumber() != 42 {
		t.Fatalf("results = %v, want [42]", results)
	}
}

func TestInstructionEncodingRoundTrip(t *testing.T) {
	instr := Encode(OpAdd, 1, 2, RKConst(3))
	if DecodeOp(instr) != OpAdd {
		t.Fatalf("op = %v, want OpAdd", DecodeOp(instr))
	}
	if DecodeA(instr) != 1 || DecodeB(instr) != 2 {
		t.Fatalf("A/B = %d/%d, want 1/2", DecodeA(instr), DecodeB(instr))
	}
	c := DecodeC(instr)
	if !IsConstant(c) || ConstIndex(c) != 3 {
		t.Fatalf("C = %d, want constant index 3", c)
	}
}

func TestJumpEncodingSigned(t *testing.T) {
	instr := EncodeAsBx(OpJmp, 0, -5)
	if DecodeSBx(instr) != -5 {
		t.Fatalf("sbx = %d, want -5", DecodeSBx(instr))
	}
}

func TestTableMetaIndex(t *testing.T) {
	s := NewState()
	base := s.NewTable()
	base.Set(value.Str(s.Intern("greeting")), value.Str(s.Intern("hi")))

	derived := s.NewTable()
	meta := s.NewTable()
	meta.Set(value.Str(s.Intern("__index")), value.Tab(base))
	derived.Meta = meta

	got, err := s.index(value.Tab(derived), value.Str(s.Intern("greeting")))
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if got.AsString().Data != "hi" {
		t.Fatalf("got %v, want hi", got)
	}
}

func TestPCallRecoversError(t *testing.T) {
	s := NewState()
	boom := value.GoFunc(func(args []value.Value) ([]value.Value, error) {
		return nil, RuntimeError(value.Str(s.Intern("boom")))
	})

	_, err := s.PCall(boom, nil)
	if err == nil {
		t.Fatalf("expected error from PCall")
	}
	ev := s.ErrorValue(err)
	if ev.AsString().Data != "boom" {
		t.Fatalf("error value = %v, want boom", ev)
	}
}

func TestUpvalueCloseOnReturn(t *testing.T) {
	stack := []value.Value{value.Number(7)}
	up := value.NewOpenUpValue(stack, 0)
	if up.Get().AsNumber() != 7 {
		t.Fatalf("open Get() = %v, want 7", up.Get())
	}
	up.Close()
	stack[0] = value.Number(999)
	if up.Get().AsNumber() != 7 {
		t.Fatalf("closed Get() = %v, want 7 (detached from stack)", up.Get())
	}
}

func TestArithMetamethodFallback(t *testing.T) {
	s := NewState()
	tbl := s.NewTable()
	meta := s.NewTable()
	meta.Set(value.Str(s.Intern("__add")), value.GoFunc(func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Number(100)}, nil
	}))
	tbl.Meta = meta

	got, err := s.arith(OpAdd, value.Tab(tbl), value.Number(1))
	if err != nil {
		t.Fatalf("arith: %v", err)
	}
	if got.AsNumber() != 100 {
		t.Fatalf("got %v, want 100", got)
	}
}

func TestArithStringCoercion(t *testing.T) {
	s := NewState()
	got, err := s.arith(OpAdd, value.Str(s.Intern("10")), value.Number(5))
	if err != nil {
		t.Fatalf("arith: %v", err)
	}
	if got.AsNumber() != 15 {
		t.Fatalf("got %v, want 15", got)
	}

	if _, err := s.arith(OpAdd, value.Str(s.Intern("abc")), value.Number(5)); err == nil {
		t.Fatalf("expected error adding a non-numeric string")
	}
}

func TestNewIndexRejectsNaNKey(t *testing.T) {
	s := NewState()
	tbl := s.NewTable()
	err := s.newindex(value.Tab(tbl), value.Number(math.NaN()), value.Number(1))
	if err == nil {
		t.Fatalf("expected error setting a NaN key")
	}
}

func TestConcat(t *testing.T) {
	s := NewState()
	got, err := s.concat([]value.Value{value.Str(s.Intern("a")), value.Number(1), value.Str(s.Intern("b"))})
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	if got.AsString().Data != "a1b" {
		t.Fatalf("got %q, want a1b", got.AsString().Data)
	}
}
