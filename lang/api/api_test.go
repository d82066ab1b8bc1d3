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
	"math"
	"testing"

	"github.com/probechain/go-probe/lang/value"
)

func TestLoadAndCallReturnsResult(t *testing.T) {
	s := Open(nil, nil)
	defer s.Close()

	if err := s.Load(`return 6 * 7`, "t"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Call(0, 1); err != nil {
		t.Fatalf("Call: %v", err)
	}
	n, ok := s.ToNumber(-1)
	if !ok || n != 42 {
		t.Fatalf("got (%v, %v), want (42, true)", n, ok)
	}
}

func TestLoadSyntaxErrorPushesMessage(t *testing.T) {
	s := Open(nil, nil)
	defer s.Close()

	err := s.Load(`return (`, "bad")
	if err == nil {
		t.Fatal("expected a syntax error")
	}
	msg, ok := s.ToString(-1)
	if !ok || msg == "" {
		t.Fatalf("expected a non-empty message pushed, got (%q, %v)", msg, ok)
	}
}

func TestPCallRecoversRuntimeError(t *testing.T) {
	s := Open(nil, nil)
	defer s.Close()

	if err := s.Load(`return nil + 1`, "t"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	err := s.PCall(0, MultRet, 0)
	if err == nil {
		t.Fatal("expected PCall to report the runtime error")
	}
	msg, ok := s.ToString(-1)
	if !ok || msg == "" {
		t.Fatal("expected an error message pushed after a failed PCall")
	}
}

func TestGlobalsRoundTrip(t *testing.T) {
	s := Open(nil, nil)
	defer s.Close()

	s.PushNumber(99)
	s.SetGlobal("answer")

	if err := s.Load(`return answer + 1`, "t"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Call(0, 1); err != nil {
		t.Fatalf("Call: %v", err)
	}
	n, ok := s.ToNumber(-1)
	if !ok || n != 100 {
		t.Fatalf("got (%v, %v), want (100, true)", n, ok)
	}
}

func TestTableRawAndFieldAccess(t *testing.T) {
	s := Open(nil, nil)
	defer s.Close()

	s.NewTable()
	s.PushString("value")
	s.SetField(-2, "key")

	if err := s.GetField(-1, "key"); err != nil {
		t.Fatalf("GetField: %v", err)
	}
	got, ok := s.ToString(-1)
	if !ok || got != "value" {
		t.Fatalf("got (%q, %v), want (\"value\", true)", got, ok)
	}
	s.Pop(1)

	s.PushNumber(10)
	s.RawSeti(-2, 1)
	s.RawGeti(-1, 1)
	n, ok := s.ToNumber(-1)
	if !ok || n != 10 {
		t.Fatalf("RawGeti got (%v, %v), want (10, true)", n, ok)
	}
}

func TestRawSetRejectsNaNKey(t *testing.T) {
	s := Open(nil, nil)
	defer s.Close()

	s.NewTable()
	s.PushNumber(math.NaN())
	s.PushString("value")
	if err := s.RawSet(-3); err == nil {
		t.Fatal("expected RawSet to reject a NaN key")
	}
}

func TestMetatableIndexFallback(t *testing.T) {
	s := Open(nil, nil)
	defer s.Close()

	s.NewTable() // base table, index 1
	s.NewTable() // metatable, index 2

	s.PushGoFunction(func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Number(7)}, nil
	})
	s.SetField(-2, "__index")
	s.SetMetatable(-2) // pops the metatable off the top, installs on base table

	if err := s.GetField(1, "missing"); err != nil {
		t.Fatalf("GetField: %v", err)
	}
	n, ok := s.ToNumber(-1)
	if !ok || n != 7 {
		t.Fatalf("got (%v, %v), want (7, true) via __index function", n, ok)
	}
}

func TestStackManipulation(t *testing.T) {
	s := Open(nil, nil)
	defer s.Close()

	s.PushNumber(1)
	s.PushNumber(2)
	s.PushNumber(3)

	s.Remove(1) // stack: 2, 3
	if n, _ := s.ToNumber(1); n != 2 {
		t.Fatalf("after Remove(1), bottom = %v, want 2", n)
	}

	s.Insert(1) // move top (3) to the bottom: 3, 2
	if n, _ := s.ToNumber(1); n != 3 {
		t.Fatalf("after Insert(1), bottom = %v, want 3", n)
	}

	s.PushNumber(99)
	s.Replace(1) // stack: 99, 2
	if n, _ := s.ToNumber(1); n != 99 {
		t.Fatalf("after Replace(1), bottom = %v, want 99", n)
	}
	if s.Top() != 2 {
		t.Fatalf("Top() = %d, want 2", s.Top())
	}
}

func TestNextIteratesTable(t *testing.T) {
	s := Open(nil, nil)
	defer s.Close()

	s.NewTable()
	s.PushNumber(10)
	s.RawSeti(-2, 1)

	s.PushNil() // starting key
	if !s.Next(-2) {
		t.Fatal("expected Next to find the first entry")
	}
	key, _ := s.ToNumber(-2)
	val, _ := s.ToNumber(-1)
	if key != 1 || val != 10 {
		t.Fatalf("got key=%v val=%v, want key=1 val=10", key, val)
	}
	s.Pop(2)

	s.PushNumber(1) // key for the (only) entry, should have no successor
	if s.Next(-2) {
		t.Fatal("expected Next to report exhaustion after the only entry")
	}
}
