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
	"testing"

	"github.com/probechain/go-probe/lang/value"
	"github.com/probechain/go-probe/lang/vm"
)

// run compiles src, loads it into a fresh State and calls it with no
// arguments, returning whatever it returns.
func run(t *testing.T, src string) ([]value.Value, *vm.State) {
	t.Helper()
	return runWithGlobals(t, src, nil)
}

// runWithGlobals is like run but lets the caller install host globals (e.g.
// a minimal ipairs) into the State before the chunk executes.
func runWithGlobals(t *testing.T, src string, setup func(*vm.State)) ([]value.Value, *vm.State) {
	t.Helper()
	proto, err := Parse("test", src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := vm.NewState()
	if setup != nil {
		setup(s)
	}
	cl := s.Load(proto)
	results, err := s.Call(value.Clo(cl), nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	return results, s
}

// installIpairs registers a minimal ipairs(t) -> iterator, t, 0 triple,
// standing in for the language's standard library in these parser-level
// generic-for tests.
func installIpairs(s *vm.State) {
	next := value.GoFunc(func(args []value.Value) ([]value.Value, error) {
		tbl := args[0].AsTable()
		i := args[1].AsNumber() + 1
		v := tbl.Get(value.Number(i))
		if v.IsNil() {
			return []value.Value{value.Nil}, nil
		}
		return []value.Value{value.Number(i), v}, nil
	})
	ipairs := value.GoFunc(func(args []value.Value) ([]value.Value, error) {
		return []value.Value{next, args[0], value.Number(0)}, nil
	})
	s.Globals.Set(value.Str(s.Intern("ipairs")), ipairs)
}

func TestArithmeticAndReturn(t *testing.T) {
	results, _ := run(t, `return 1 + 2 * 3`)
	if len(results) != 1 || results[0].AsNumber() != 7 {
		t.Fatalf("results = %v, want [7]", results)
	}
}

func TestLocalsAndAssignment(t *testing.T) {
	results, _ := run(t, `
		local a, b = 1, 2
		a, b = b, a
		return a, b
	`)
	if len(results) != 2 || results[0].AsNumber() != 2 || results[1].AsNumber() != 1 {
		t.Fatalf("results = %v, want [2 1]", results)
	}
}

func TestIfElseif(t *testing.T) {
	src := `
		local function classify(n)
			if n < 0 then
				return "neg"
			elseif n == 0 then
				return "zero"
			else
				return "pos"
			end
		end
		return classify(-5), classify(0), classify(5)
	`
	results, _ := run(t, src)
	if len(results) != 3 {
		t.Fatalf("results = %v, want 3 values", results)
	}
	want := []string{"neg", "zero", "pos"}
	for i, w := range want {
		if results[i].AsString().Data != w {
			t.Fatalf("results[%d] = %q, want %q", i, results[i].AsString().Data, w)
		}
	}
}

func TestWhileLoop(t *testing.T) {
	results, _ := run(t, `
		local i, sum = 0, 0
		while i < 5 do
			i = i + 1
			sum = sum + i
		end
		return sum
	`)
	if len(results) != 1 || results[0].AsNumber() != 15 {
		t.Fatalf("results = %v, want [15]", results)
	}
}

func TestRepeatUntil(t *testing.T) {
	results, _ := run(t, `
		local i = 0
		repeat
			i = i + 1
		until i >= 3
		return i
	`)
	if len(results) != 1 || results[0].AsNumber() != 3 {
		t.Fatalf("results = %v, want [3]", results)
	}
}

func TestNumericForAccumulates(t *testing.T) {
	results, _ := run(t, `
		local sum = 0
		for i = 1, 10 do
			sum = sum + i
		end
		return sum
	`)
	if len(results) != 1 || results[0].AsNumber() != 55 {
		t.Fatalf("results = %v, want [55]", results)
	}
}

func TestNumericForBreak(t *testing.T) {
	results, _ := run(t, `
		local last = 0
		for i = 1, 10 do
			if i > 3 then
				break
			end
			last = i
		end
		return last
	`)
	if len(results) != 1 || results[0].AsNumber() != 3 {
		t.Fatalf("results = %v, want [3]", results)
	}
}

func TestGenericForOverTable(t *testing.T) {
	results, _ := runWithGlobals(t, `
		local t = {10, 20, 30}
		local sum = 0
		for i, v in ipairs(t) do
			sum = sum + v
		end
		return sum
	`, installIpairs)
	if len(results) != 1 || results[0].AsNumber() != 60 {
		t.Fatalf("results = %v, want [60]", results)
	}
}

func TestClosureUpvalue(t *testing.T) {
	results, _ := run(t, `
		local function counter()
			local n = 0
			return function()
				n = n + 1
				return n
			end
		end
		local next = counter()
		next()
		next()
		return next()
	`)
	if len(results) != 1 || results[0].AsNumber() != 3 {
		t.Fatalf("results = %v, want [3]", results)
	}
}

func TestTableConstructorAndIndex(t *testing.T) {
	results, _ := run(t, `
		local t = {1, 2, 3, name = "probe"}
		return t[1] + t[2] + t[3], t.name, #t
	`)
	if len(results) != 3 {
		t.Fatalf("results = %v, want 3 values", results)
	}
	if results[0].AsNumber() != 6 {
		t.Fatalf("sum = %v, want 6", results[0])
	}
	if results[1].AsString().Data != "probe" {
		t.Fatalf("name = %v, want probe", results[1])
	}
	if results[2].AsNumber() != 3 {
		t.Fatalf("len = %v, want 3", results[2])
	}
}

func TestMethodCallSelf(t *testing.T) {
	results, _ := run(t, `
		local obj = {x = 10}
		function obj:getX()
			return self.x
		end
		return obj:getX()
	`)
	if len(results) != 1 || results[0].AsNumber() != 10 {
		t.Fatalf("results = %v, want [10]", results)
	}
}

func TestVarargsForwarding(t *testing.T) {
	results, _ := runWithGlobals(t, `
		local function sum(...)
			local total = 0
			local vals = {...}
			for i, v in ipairs(vals) do
				total = total + v
			end
			return total
		end
		return sum(1, 2, 3, 4)
	`, installIpairs)
	if len(results) != 1 || results[0].AsNumber() != 10 {
		t.Fatalf("results = %v, want [10]", results)
	}
}

func TestAndOrShortCircuit(t *testing.T) {
	results, _ := run(t, `
		local function calls(n, v)
			return v
		end
		local a = false and calls(1, "unreached")
		local b = true or calls(2, "unreached")
		local c = nil or "fallback"
		return a, b, c
	`)
	if len(results) != 3 {
		t.Fatalf("results = %v, want 3 values", results)
	}
	if results[0].Truthy() {
		t.Fatalf("a = %v, want falsy", results[0])
	}
	if !results[1].Truthy() {
		t.Fatalf("b = %v, want truthy", results[1])
	}
	if results[2].AsString().Data != "fallback" {
		t.Fatalf("c = %v, want fallback", results[2])
	}
}

func TestConcatOperator(t *testing.T) {
	results, _ := run(t, `return "a" .. "b" .. 1`)
	if len(results) != 1 || results[0].AsString().Data != "ab1" {
		t.Fatalf("results = %v, want [ab1]", results)
	}
}

func TestTailCallDeepRecursionDoesNotOverflow(t *testing.T) {
	results, _ := run(t, `
		local function loop(n, acc)
			if n == 0 then
				return acc
			end
			return loop(n - 1, acc + n)
		end
		return loop(1000000, 0)
	`)
	if len(results) != 1 || results[0].AsNumber() != 500000500000 {
		t.Fatalf("results = %v, want [500000500000]", results)
	}
}

func TestNonTailCallStillNests(t *testing.T) {
	results, _ := run(t, `
		local function inc(n)
			return n + 1
		end
		local function wrapper(n)
			local v = inc(n)
			return v
		end
		return wrapper(41)
	`)
	if len(results) != 1 || results[0].AsNumber() != 42 {
		t.Fatalf("results = %v, want [42]", results)
	}
}

func TestParseErrorReportsPosition(t *testing.T) {
	_, err := Parse("bad", "local 1 = 2")
	if err == nil {
		t.Fatalf("expected parse error")
	}
	var perr *Error
	if pe, ok := err.(*Error); ok {
		perr = pe
	} else {
		t.Fatalf("err is %T, want *Error", err)
	}
	if perr.Pos.Line != 1 {
		t.Fatalf("err.Pos.Line = %d, want 1", perr.Pos.Line)
	}
}
