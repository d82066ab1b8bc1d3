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

// Package log implements leveled, structured logging for the rocket
// runtime: compiler diagnostics, VM traces and host-embedding events all
// flow through the same Logger interface.
package log

import (
	"os"
	"time"

	"github.com/go-stack/stack"
)

// Lvl is a logging level, ordered from most to least severe.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "crit"
	case LvlError:
		return "eror"
	case LvlWarn:
		return "warn"
	case LvlInfo:
		return "info"
	case LvlDebug:
		return "dbug"
	case LvlTrace:
		return "trce"
	}
	return "unkn"
}

// Record is a single log event with its context key/value pairs flattened
// into Ctx in the order they were supplied.
type Record struct {
	Time    time.Time
	Lvl     Lvl
	Msg     string
	Ctx     []interface{}
	Call    stack.Call
	KeyVals map[string]interface{}
}

// Logger writes structured, leveled log records, optionally annotated with
// persistent context established via New.
type Logger interface {
	New(ctx ...interface{}) Logger

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})

	GetHandler() Handler
	SetHandler(h Handler)
}

// Handler processes a Record, e.g. formatting and writing it to a stream.
type Handler interface {
	Log(r *Record) error
}

type logger struct {
	ctx []interface{}
	h   *swapHandler
}

// swapHandler lets SetHandler replace the active handler; the swap is a
// plain field assignment with no synchronization.
type swapHandler struct {
	h Handler
}

func (s *swapHandler) Log(r *Record) error { return s.h.Log(r) }

// Root is the default, process-wide root logger. Root().New(...) is the
// idiomatic way to obtain a module-scoped child logger.
var root = &logger{h: &swapHandler{h: StreamHandler(os.Stderr, NewTerminalFormat(isTerminal(os.Stderr)))}}

// Root returns the default root Logger.
func Root() Logger { return root }

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	r := &Record{
		Time: time.Now(),
		Lvl:  lvl,
		Msg:  msg,
		Ctx:  append(append([]interface{}{}, l.ctx...), ctx...),
		Call: stack.Caller(2),
	}
	_ = l.h.Log(r)
}

func (l *logger) New(ctx ...interface{}) Logger {
	child := &logger{h: l.h}
	child.ctx = append(append([]interface{}{}, l.ctx...), ctx...)
	return child
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

func (l *logger) GetHandler() Handler { return l.h.h }
func (l *logger) SetHandler(h Handler) { l.h.h = h }

// New returns a fresh root-less logger with its own handler, for hosts that
// want to fully isolate one embedding's log stream from another.
func New(ctx ...interface{}) Logger {
	l := &logger{h: &swapHandler{h: StreamHandler(os.Stderr, NewTerminalFormat(isTerminal(os.Stderr)))}}
	l.ctx = ctx
	return l
}
