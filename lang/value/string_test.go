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

import "testing"

func TestInternReturnsSamePointer(t *testing.T) {
	pool := NewStringPool()
	a := pool.Intern("hello")
	b := pool.Intern("hello")
	if a != b {
		t.Fatalf("Intern returned distinct pointers for equal content")
	}
	if pool.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", pool.Count())
	}
}

func TestInternDistinctStrings(t *testing.T) {
	pool := NewStringPool()
	a := pool.Intern("a")
	b := pool.Intern("b")
	if a == b {
		t.Fatalf("distinct content interned to the same string")
	}
	if pool.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", pool.Count())
	}
}

func TestSweepRemovesDead(t *testing.T) {
	pool := NewStringPool()
	a := pool.Intern("alive")
	pool.Intern("dead")

	pool.Sweep(func(s *String) bool { return s == a })

	if pool.Count() != 1 {
		t.Fatalf("Count() after sweep = %d, want 1", pool.Count())
	}
	found := false
	pool.All(func(s *String) {
		if s.Data == "dead" {
			found = true
		}
	})
	if found {
		t.Fatalf("swept string still present in pool")
	}
}

func TestGrowRehashesAllBuckets(t *testing.T) {
	pool := NewStringPool()
	for i := 0; i < 200; i++ {
		pool.Intern(string(rune('a' + i%26)))
	}
	// Re-interning every key should still find the same canonical strings.
	seen := map[*String]bool{}
	for i := 0; i < 26; i++ {
		s := pool.Intern(string(rune('a' + i)))
		seen[s] = true
	}
	if len(seen) != 26 {
		t.Fatalf("expected 26 distinct interned strings after growth, got %d", len(seen))
	}
}
