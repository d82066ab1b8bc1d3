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

// Package compile is the host-facing convenience layer in front of
// lang/lexer and lang/parser: Compile turns source text into a
// *vm.Prototype, and Cache wraps that with an in-memory LRU plus an
// optional on-disk store so a host that repeatedly loads the same chunk
// (e.g. a `dofile`-style embedding loop) never re-lexes/re-parses it.
package compile

import (
	"github.com/probechain/go-probe/lang/parser"
	"github.com/probechain/go-probe/lang/vm"
)

// Compile lexes and parses src (named name for error messages and
// Prototype.Source) into a top-level Prototype, with no caching.
func Compile(name, src string) (*vm.Prototype, error) {
	return parser.Parse(name, src)
}
