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

package leveldb

import (
	"testing"

	"github.com/probechain/go-probe/probedb"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetDelete(t *testing.T) {
	db := openTestDB(t)

	ok, err := db.Has([]byte("proto:main"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.Put([]byte("proto:main"), []byte("bytecode-bytes")))

	ok, err = db.Has([]byte("proto:main"))
	require.NoError(t, err)
	require.True(t, ok)

	got, err := db.Get([]byte("proto:main"))
	require.NoError(t, err)
	require.Equal(t, []byte("bytecode-bytes"), got)

	require.NoError(t, db.Delete([]byte("proto:main")))

	_, err = db.Get([]byte("proto:main"))
	require.ErrorIs(t, err, probedb.ErrNotFound)
}

func TestBatch(t *testing.T) {
	db := openTestDB(t)

	b := db.NewBatch()
	require.NoError(t, b.Put([]byte("proto:a"), []byte("1")))
	require.NoError(t, b.Put([]byte("proto:b"), []byte("2")))
	require.Greater(t, b.ValueSize(), 0)
	require.NoError(t, b.Write())

	got, err := db.Get([]byte("proto:a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	b.Reset()
	require.Equal(t, 0, b.ValueSize())
}

func TestIterator(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Put([]byte("proto:a"), []byte("1")))
	require.NoError(t, db.Put([]byte("proto:b"), []byte("2")))
	require.NoError(t, db.Put([]byte("other:c"), []byte("3")))

	it := db.NewIterator([]byte("proto:"), nil)
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.ElementsMatch(t, []string{"proto:a", "proto:b"}, keys)
}
