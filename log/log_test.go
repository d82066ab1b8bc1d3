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
	"strings"
	"testing"
)

func TestStreamHandlerWritesFormattedRecord(t *testing.T) {
	var buf bytes.Buffer
	l := New("module", "test")
	l.SetHandler(StreamHandler(&buf, NewTerminalFormat(false)))

	l.Info("compiled chunk", "bytes", 128)

	out := buf.String()
	if !strings.Contains(out, "compiled chunk") {
		t.Fatalf("output %q missing message", out)
	}
	if !strings.Contains(out, "module=test") {
		t.Fatalf("output %q missing inherited context", out)
	}
	if !strings.Contains(out, "bytes=128") {
		t.Fatalf("output %q missing call-site context", out)
	}
}

func TestLvlFilterHandlerDropsBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetHandler(LvlFilterHandler(LvlWarn, StreamHandler(&buf, NewTerminalFormat(false))))

	l.Debug("should be dropped")
	l.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("debug record leaked through filter: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	l := New()
	l.SetHandler(MultiHandler(
		StreamHandler(&a, NewJSONFormat()),
		StreamHandler(&b, NewTerminalFormat(false)),
	))

	l.Error("panic recovered")

	if !strings.Contains(a.String(), `"msg":"panic recovered"`) {
		t.Fatalf("json sink missing record: %q", a.String())
	}
	if !strings.Contains(b.String(), "panic recovered") {
		t.Fatalf("terminal sink missing record: %q", b.String())
	}
}

func TestChildLoggerInheritsContext(t *testing.T) {
	var buf bytes.Buffer
	root := New("service", "rocket")
	root.SetHandler(StreamHandler(&buf, NewTerminalFormat(false)))
	child := root.New("component", "vm")

	child.Info("closure created")

	out := buf.String()
	if !strings.Contains(out, "service=rocket") || !strings.Contains(out, "component=vm") {
		t.Fatalf("missing inherited context chain: %q", out)
	}
}
