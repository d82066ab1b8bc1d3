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

// Command rocket is the embedding host for the language runtime: given a
// source file it compiles and runs it (or dumps tokens/bytecode instead of
// running), and with no file argument it drops into a line-edited REPL.
//
// Usage:
//
//	rocket [flags] [source.lua]
//
// Flags:
//
//	-emit <stage>  tokens, disasm, run (default: run)
//	-trace         print a heap stats line after each top-level call
//	-version       print version and exit
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"

	"github.com/probechain/go-probe/lang/api"
	"github.com/probechain/go-probe/lang/lexer"
	"github.com/probechain/go-probe/lang/value"
	"github.com/probechain/go-probe/lang/vm"
)

const version = "0.1.0"

func main() {
	var (
		emit    = flag.String("emit", "run", "Emit stage: tokens, disasm, run")
		trace   = flag.Bool("trace", false, "Print a heap stats line after each top-level call")
		verFlag = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *verFlag {
		fmt.Printf("rocket %s\n", version)
		return
	}

	if flag.NArg() < 1 {
		runREPL(*trace)
		return
	}

	filename := flag.Arg(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch *emit {
	case "tokens":
		emitTokens(string(source))
	case "disasm":
		emitDisasm(filename, string(source))
	case "run":
		runFile(filename, string(source), *trace)
	default:
		fmt.Fprintf(os.Stderr, "unknown emit stage: %s\n", *emit)
		os.Exit(1)
	}
}

func emitTokens(source string) {
	tokens, err := lexer.Tokenize(source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for _, tok := range tokens {
		fmt.Printf("%s\t%s\t%q\n", tok.Pos, tok.Type, tok.Literal)
	}
}

func emitDisasm(filename, source string) {
	s := api.Open(nil, nil)
	defer s.Close()

	if err := s.Load(source, filename); err != nil {
		msg, _ := s.ToString(-1)
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		os.Exit(1)
	}
	if !s.IsFunction(-1) {
		fmt.Fprintln(os.Stderr, "error: Load did not push a function")
		os.Exit(1)
	}
	cl := s.ToPointer(-1).(*value.Closure)
	disassemble(cl.Proto, 0)
}

func disassemble(proto *value.Prototype, depth int) {
	heading := color.New(color.FgCyan, color.Bold)
	heading.Printf("%sfunction <%s:%d> (%d instructions, %d registers)\n",
		strings.Repeat("  ", depth), proto.Source, proto.LineDefined, len(proto.Code), proto.NumRegs)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"pc", "line", "op", "a", "b", "c"})
	table.SetAutoFormatHeaders(false)
	for pc, instr := range proto.Code {
		op := vm.DecodeOp(instr)
		line := 0
		if pc < len(proto.Lines) {
			line = int(proto.Lines[pc])
		}
		table.Append([]string{
			fmt.Sprintf("%d", pc),
			fmt.Sprintf("%d", line),
			op.String(),
			fmt.Sprintf("%d", vm.DecodeA(instr)),
			operandString(vm.DecodeB(instr)),
			operandString(vm.DecodeC(instr)),
		})
	}
	table.Render()

	for i, sub := range proto.Protos {
		fmt.Printf("%s-- closure %d --\n", strings.Repeat("  ", depth), i)
		disassemble(sub, depth+1)
	}
}

// operandString marks RK operands (register-or-constant slots) that
// address the constant pool, the same convention the parser's internal
// RKConst encoding uses.
func operandString(rk int) string {
	if vm.IsConstant(rk) {
		return fmt.Sprintf("K%d", vm.ConstIndex(rk))
	}
	return fmt.Sprintf("%d", rk)
}

func runFile(filename, source string, trace bool) {
	s := api.Open(nil, nil)
	defer s.Close()

	if err := s.Load(source, filename); err != nil {
		msg, _ := s.ToString(-1)
		fmt.Fprintf(os.Stderr, "%s\n", msg)
		os.Exit(1)
	}
	if err := s.PCall(0, api.MultRet, 0); err != nil {
		msg, _ := s.ToString(-1)
		fmt.Fprintln(os.Stderr, color.RedString("%s", msg))
		os.Exit(1)
	}
	if trace {
		printStats(s)
	}
}

func printStats(s *api.State) {
	st := s.VM().Stats()
	fmt.Fprintf(os.Stderr, "[heap: %d bytes, %d tables, %d closures, %d userdata]\n",
		st.Allocated, st.Tables, st.Closures, st.UserData)
}

// runREPL drives an interactive session over the same api.State across
// every line, so locals declared `global` (plain assignment without
// `local`) and functions defined in one line are visible to the next.
func runREPL(trace bool) {
	fmt.Printf("rocket %s -- Ctrl-D to quit\n", version)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	s := api.Open(nil, nil)
	defer s.Close()

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			break
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)
		evalLine(s, input, trace)
	}
}

// evalLine tries input as a statement first, falling back to `return
// <input>` so a bare expression (the common REPL case) prints its value
// instead of failing to parse as a statement.
func evalLine(s *api.State, input string, trace bool) {
	top := s.Top()
	err := s.Load(input, "=stdin")
	if err != nil {
		s.Pop(1)
		err = s.Load("return "+input, "=stdin")
	}
	if err != nil {
		msg, _ := s.ToString(-1)
		fmt.Fprintln(os.Stderr, color.RedString("%s", msg))
		s.SetTop(top)
		return
	}
	if err := s.PCall(0, api.MultRet, 0); err != nil {
		msg, _ := s.ToString(-1)
		fmt.Fprintln(os.Stderr, color.RedString("%s", msg))
		s.SetTop(top)
		return
	}
	for i := top + 1; i <= s.Top(); i++ {
		printResult(s, i)
	}
	s.SetTop(top)
	if trace {
		printStats(s)
	}
}

func printResult(s *api.State, idx int) {
	if s.Type(idx) == value.KindTable {
		spew.Dump(s.ToPointer(idx).(*value.Table))
		return
	}
	fmt.Println(s.Describe(idx))
}
