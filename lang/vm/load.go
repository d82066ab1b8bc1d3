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

import "github.com/probechain/go-probe/lang/value"

// Prototype is value.Prototype under the name the parser and compile
// packages use for a compiled function body.
type Prototype = value.Prototype

// Load canonicalizes every string constant reachable from proto (and its
// nested function prototypes) against this State's string pool, then
// returns a Closure ready to Call. The parser emits constant strings as
// freestanding, unpooled value.String nodes since it compiles without any
// State in scope; Load is the point, analogous to a real interpreter's
// load-time string interning, where those constants become identical
// pointers to any equal string already live in this State, so that
// string equality across different compiled chunks works by identity.
func (s *State) Load(proto *value.Prototype) *value.Closure {
	s.internProtoStrings(proto, make(map[*value.Prototype]bool))
	return s.NewClosure(proto, nil)
}

func (s *State) internProtoStrings(proto *value.Prototype, seen map[*value.Prototype]bool) {
	if seen[proto] {
		return
	}
	seen[proto] = true
	for i, k := range proto.Constants {
		if k.IsString() {
			proto.Constants[i] = value.Str(s.Intern(k.AsString().Data))
		}
	}
	for _, sub := range proto.Protos {
		s.internProtoStrings(sub, seen)
	}
}
