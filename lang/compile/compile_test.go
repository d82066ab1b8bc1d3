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

package compile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/go-probe/lang/value"
	"github.com/probechain/go-probe/lang/vm"
	"github.com/probechain/go-probe/probedb/leveldb"
)

func TestCompileReturnsRunnablePrototype(t *testing.T) {
	proto, err := Compile("t", `return 1 + 2`)
	require.NoError(t, err)

	s := vm.NewState()
	cl := s.Load(proto)
	results, err := s.Call(value.Clo(cl), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, float64(3), results[0].AsNumber())
}

func TestCacheHitsMemoryOnSecondCompile(t *testing.T) {
	c, err := NewCache(8)
	require.NoError(t, err)

	src := `return "cached"`
	first, err := c.Compile("a", src)
	require.NoError(t, err)
	second, err := c.Compile("b", src)
	require.NoError(t, err)

	require.Same(t, first, second, "identical source should share one cached Prototype regardless of chunk name")
}

func TestCacheRoundTripsThroughDisk(t *testing.T) {
	db, err := leveldb.NewMemory()
	require.NoError(t, err)
	defer db.Close()

	c, err := NewCache(8)
	require.NoError(t, err)
	c.WithDisk(db)

	src := `return 21 * 2`
	_, err = c.Compile("t", src)
	require.NoError(t, err)

	data, err := db.Get(sourceKey(src))
	require.NoError(t, err)
	back, err := decodeProto(data)
	require.NoError(t, err)

	s := vm.NewState()
	cl := s.Load(back)
	results, err := s.Call(value.Clo(cl), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, float64(42), results[0].AsNumber())
}
