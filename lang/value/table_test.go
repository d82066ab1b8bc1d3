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

import (
	"errors"
	"math"
	"testing"
)

func TestTableArrayAppend(t *testing.T) {
	tbl := NewTable()
	tbl.Set(Number(1), Number(10))
	tbl.Set(Number(2), Number(20))
	tbl.Set(Number(3), Number(30))

	if got := tbl.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	if len(tbl.HashPart()) != 0 {
		t.Fatalf("expected all keys to land in the array part, hash has %d entries", len(tbl.HashPart()))
	}
	if tbl.Get(Number(2)).AsNumber() != 20 {
		t.Fatalf("Get(2) = %v, want 20", tbl.Get(Number(2)))
	}
}

func TestTableHashToArrayPromotion(t *testing.T) {
	tbl := NewTable()
	// Insert out of order and starting from the hash part.
	tbl.Set(Number(3), Number(3))
	tbl.Set(Number(1), Number(1))
	tbl.Set(Number(2), Number(2))
	tbl.Set(Number(4), Number(4))

	for i := 1; i <= 4; i++ {
		if got := tbl.Get(Number(float64(i))).AsNumber(); got != float64(i) {
			t.Fatalf("Get(%d) = %v, want %d", i, got, i)
		}
	}
}

func TestTableStringKeys(t *testing.T) {
	pool := NewStringPool()
	tbl := NewTable()
	key := Str(pool.Intern("name"))
	tbl.Set(key, Str(pool.Intern("rocket")))

	got := tbl.Get(Str(pool.Intern("name")))
	if got.IsNil() || got.AsString().Data != "rocket" {
		t.Fatalf("Get(name) = %v, want rocket", got)
	}
}

func TestTableDeleteShrinksArray(t *testing.T) {
	tbl := NewTable()
	tbl.Set(Number(1), Number(1))
	tbl.Set(Number(2), Number(2))
	tbl.Set(Number(2), Nil)
	if got := tbl.Len(); got != 1 {
		t.Fatalf("Len() after delete = %d, want 1", got)
	}
}

func TestTableNextIteratesArrayThenHash(t *testing.T) {
	tbl := NewTable()
	pool := NewStringPool()
	tbl.Set(Number(1), Number(10))
	tbl.Set(Str(pool.Intern("k")), Number(99))

	k, v, ok := tbl.Next(Nil)
	if !ok || k.AsNumber() != 1 || v.AsNumber() != 10 {
		t.Fatalf("first Next = (%v, %v, %v), want (1, 10, true)", k, v, ok)
	}
	k2, v2, ok2 := tbl.Next(k)
	if !ok2 || !k2.IsString() || v2.AsNumber() != 99 {
		t.Fatalf("second Next = (%v, %v, %v)", k2, v2, ok2)
	}
	_, _, ok3 := tbl.Next(k2)
	if ok3 {
		t.Fatalf("expected iteration to terminate")
	}
}

func TestTableSetRejectsNaNKey(t *testing.T) {
	tbl := NewTable()
	err := tbl.Set(Number(math.NaN()), Number(1))
	if !errors.Is(err, ErrNaNKey) {
		t.Fatalf("Set(NaN) err = %v, want ErrNaNKey", err)
	}
	if len(tbl.HashPart()) != 0 {
		t.Fatalf("expected no entry stored, hash has %d entries", len(tbl.HashPart()))
	}
}

func TestTableWeakMode(t *testing.T) {
	tbl := NewTable()
	tbl.SetMode("k")
	if !tbl.WeakKeys() || tbl.WeakValues() {
		t.Fatalf("SetMode(k) produced wrong weak flags")
	}
	tbl.SetMode("kv")
	if !tbl.WeakKeys() || !tbl.WeakValues() {
		t.Fatalf("SetMode(kv) produced wrong weak flags")
	}
}
