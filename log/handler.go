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

package log

import (
	"io"
	"sync"

	"github.com/mattn/go-colorable"
)

// StreamHandler writes formatted records to w, one per call, serialized by
// a mutex since the VM and compiler may log from multiple embedding hosts
// sharing a root logger.
func StreamHandler(w io.Writer, fmtr Format) Handler {
	h := &streamHandler{w: w, fmtr: fmtr}
	return h
}

type streamHandler struct {
	mu   sync.Mutex
	w    io.Writer
	fmtr Format
}

func (h *streamHandler) Log(r *Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(h.fmtr.Format(r))
	return err
}

// NewColorableStderrHandler returns a handler that writes to os.Stderr
// through mattn/go-colorable so ANSI color codes render correctly on
// Windows consoles as well as ANSI terminals.
func NewColorableStderrHandler() Handler {
	return StreamHandler(colorable.NewColorableStderr(), NewTerminalFormat(true))
}

// LvlFilterHandler wraps inner so that records above maxLvl (i.e. less
// severe) are dropped before ever reaching the formatter.
func LvlFilterHandler(maxLvl Lvl, inner Handler) Handler {
	return &lvlFilterHandler{maxLvl: maxLvl, inner: inner}
}

type lvlFilterHandler struct {
	maxLvl Lvl
	inner  Handler
}

func (h *lvlFilterHandler) Log(r *Record) error {
	if r.Lvl > h.maxLvl {
		return nil
	}
	return h.inner.Log(r)
}

// MultiHandler fans a record out to every handler in hs, useful for a host
// that wants both a human terminal stream and a JSON file sink.
func MultiHandler(hs ...Handler) Handler {
	return &multiHandler{hs: hs}
}

type multiHandler struct{ hs []Handler }

func (h *multiHandler) Log(r *Record) error {
	var firstErr error
	for _, sub := range h.hs {
		if err := sub.Log(r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DiscardHandler drops every record, used by tests that don't want log
// noise on stderr.
func DiscardHandler() Handler { return discardHandler{} }

type discardHandler struct{}

func (discardHandler) Log(*Record) error { return nil }
