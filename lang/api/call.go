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
	"fmt"

	"github.com/probechain/go-probe/lang/compile"
	"github.com/probechain/go-probe/lang/value"
	"github.com/probechain/go-probe/lang/vm"
)

// MultRet, passed as nresults to Call or PCall, keeps every result the
// callee produced instead of padding/truncating to a fixed count.
const MultRet = -1

// popCallFrame removes the function at the bottom of the nargs+1 values at
// the top of the stack and returns it along with a copy of its arguments.
func (s *State) popCallFrame(nargs int) (value.Value, []value.Value) {
	if nargs < 0 {
		nargs = 0
	}
	fnIdx := len(s.stack) - nargs - 1
	if fnIdx < 0 {
		fnIdx = 0
	}
	fn := s.stack[fnIdx]
	args := append([]value.Value(nil), s.stack[fnIdx+1:]...)
	s.stack = s.stack[:fnIdx]
	return fn, args
}

func (s *State) pushResults(results []value.Value, nresults int) {
	if nresults == MultRet {
		s.stack = append(s.stack, results...)
		return
	}
	for i := 0; i < nresults; i++ {
		if i < len(results) {
			s.push(results[i])
		} else {
			s.push(value.Nil)
		}
	}
}

// Call invokes the function at stack position -(nargs+1) with the nargs
// values above it as arguments, replacing all of it with nresults return
// values (MultRet keeps every one the callee returned). An error from the
// callee is returned as is, matching lang/vm.State.Call's contract, and
// nothing is pushed in that case; see PCall for a protected call.
func (s *State) Call(nargs, nresults int) error {
	fn, args := s.popCallFrame(nargs)
	results, err := s.vm.Call(fn, args)
	if err != nil {
		return err
	}
	s.pushResults(results, nresults)
	return nil
}

// PCall invokes the function at stack position -(nargs+1) the way the
// modeled API's protected call does: panics and runtime errors alike are
// recovered rather than propagated. If errfunc is nonzero it names a stack
// index (below the function being called) of a message handler invoked
// with the raw error value to produce the value ultimately pushed; on
// failure that one value is pushed and a non-nil error returned, on
// success nresults values are pushed and the error is nil.
func (s *State) PCall(nargs, nresults, errfunc int) error {
	var handler value.Value
	if errfunc != 0 {
		handler = s.at(errfunc)
	}
	fn, args := s.popCallFrame(nargs)
	results, err := s.vm.PCall(fn, args)
	if err != nil {
		errVal := s.vm.ErrorValue(err)
		if handler.IsFunction() {
			if hres, herr := s.vm.Call(handler, []value.Value{errVal}); herr == nil && len(hres) > 0 {
				errVal = hres[0]
			}
		}
		s.push(errVal)
		return err
	}
	s.pushResults(results, nresults)
	return nil
}

// Error pops the top-of-stack value and wraps it as the error a
// host-registered GoFunction can return from its own call, raising it
// through Call/PCall exactly as a script's own `error(v)` would.
func (s *State) Error() error {
	if len(s.stack) == 0 {
		return fmt.Errorf("api: error() called with an empty stack")
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return vm.RuntimeError(v)
}

// Load compiles src (named chunkname for error messages) and pushes the
// resulting closure ready to Call; on a lex/syntax error it instead pushes
// the error message string and returns the error, mirroring the modeled
// API's load(reader, chunkname) status convention.
func (s *State) Load(src, chunkname string) error {
	proto, err := compile.Compile(chunkname, src)
	if err != nil {
		s.push(value.Str(s.vm.Intern(err.Error())))
		return err
	}
	cl := s.vm.Load(proto)
	s.push(value.Clo(cl))
	return nil
}
