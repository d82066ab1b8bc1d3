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
	"bytes"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Format renders a Record to bytes.
type Format interface {
	Format(r *Record) []byte
}

type formatFunc func(*Record) []byte

func (f formatFunc) Format(r *Record) []byte { return f(r) }

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// NewTerminalFormat returns a human-readable, optionally colorized
// single-line format matching the teacher's TTY-aware console logger.
func NewTerminalFormat(colorize bool) Format {
	return formatFunc(func(r *Record) []byte {
		var buf bytes.Buffer

		lvl := r.Lvl.String()
		if colorize {
			if c, ok := levelColor[r.Lvl]; ok {
				lvl = c.Sprint(lvl)
			}
		}

		fmt.Fprintf(&buf, "%s[%s] %s", r.Time.Format("2006-01-02T15:04:05-0700"), lvl, r.Msg)
		for i := 0; i+1 < len(r.Ctx); i += 2 {
			fmt.Fprintf(&buf, " %v=%v", r.Ctx[i], r.Ctx[i+1])
		}
		if r.Lvl <= LvlError && len(r.Call.String()) > 0 {
			fmt.Fprintf(&buf, " caller=%s", r.Call)
		}
		buf.WriteByte('\n')
		return buf.Bytes()
	})
}

// NewJSONFormat returns a machine-readable one-JSON-object-per-line format, used by
// hosts piping rocket's log output into another structured log sink.
func NewJSONFormat() Format {
	return formatFunc(func(r *Record) []byte {
		var buf bytes.Buffer
		fmt.Fprintf(&buf, `{"t":%q,"lvl":%q,"msg":%q`, r.Time.Format("2006-01-02T15:04:05-0700"), r.Lvl.String(), r.Msg)
		for i := 0; i+1 < len(r.Ctx); i += 2 {
			fmt.Fprintf(&buf, `,%q:%q`, fmt.Sprint(r.Ctx[i]), fmt.Sprint(r.Ctx[i+1]))
		}
		buf.WriteString("}\n")
		return buf.Bytes()
	})
}

// isTerminal reports whether f is attached to an interactive terminal,
// gating whether StreamHandler colorizes its output.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
