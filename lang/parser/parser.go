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

package parser

import (
	"fmt"
	"strconv"

	"github.com/probechain/go-probe/lang/lexer"
	"github.com/probechain/go-probe/lang/token"
	"github.com/probechain/go-probe/lang/value"
	"github.com/probechain/go-probe/lang/vm"
)

// Error is a compile-time diagnostic positioned in the source being parsed.
type Error struct {
	Pos token.Position
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

// Parser drives a single-pass compile from tokens straight into bytecode:
// there is no AST node ever built, only the current funcState's register
// file and instruction stream.
type Parser struct {
	lx   *lexer.Lexer
	cur  token.Token
	peek token.Token
	fs   *funcState
	src  string
}

// Parse compiles src (labelled name in error messages and Prototype.Source)
// into a top-level vararg Prototype.
func Parse(name, src string) (*vm.Prototype, error) {
	p := &Parser{lx: lexer.New(src), src: name}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	p.fs = newFuncState(nil)
	p.fs.isVararg = true
	p.fs.line = 1

	if err := p.block(); err != nil {
		return nil, err
	}
	if p.cur.Type != token.EOF {
		return nil, p.errf("unexpected %s", p.cur)
	}
	p.fs.emit(vm.Encode(vm.OpReturn, 0, 1, 0), p.cur.Pos.Line)

	return p.finish(p.fs), nil
}

func (p *Parser) finish(fs *funcState) *vm.Prototype {
	proto := &vm.Prototype{
		Source:      p.src,
		LineDefined: fs.line,
		NumParams:   fs.numParams,
		IsVararg:    fs.isVararg,
		NumRegs:     max(fs.numRegs, 2),
		Constants:   fs.constants,
	}
	proto.Code = fs.code
	proto.Lines = fs.lines
	for _, u := range fs.upvals {
		proto.Upvals = append(proto.Upvals, value.UpvalDesc{Name: u.name, FromParentLocal: u.fromParentLocal, Index: u.index})
	}
	for _, sub := range fs.protos {
		proto.Protos = append(proto.Protos, p.finish(sub))
	}
	return proto
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (p *Parser) advance() error {
	p.cur = p.peek
	tok, err := p.lx.NextToken()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

func (p *Parser) errf(format string, args ...interface{}) error {
	return &Error{Pos: p.cur.Pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(t token.Type) (token.Token, error) {
	if p.cur.Type != t {
		return token.Token{}, p.errf("expected %s, got %s", t, p.cur.Type)
	}
	tok := p.cur
	return tok, p.advance()
}

func blockEnd(t token.Type) bool {
	switch t {
	case token.EOF, token.END, token.ELSE, token.ELSEIF, token.UNTIL:
		return true
	}
	return false
}

// block parses a sequence of statements until a block-terminating token.
func (p *Parser) block() error {
	for !blockEnd(p.cur.Type) {
		if p.cur.Type == token.RETURN {
			return p.returnStat()
		}
		if err := p.statement(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) statement() error {
	switch p.cur.Type {
	case token.SEMI:
		return p.advance()
	case token.LOCAL:
		return p.localStat()
	case token.IF:
		return p.ifStat()
	case token.WHILE:
		return p.whileStat()
	case token.REPEAT:
		return p.repeatStat()
	case token.FOR:
		return p.forStat()
	case token.DO:
		if err := p.advance(); err != nil {
			return err
		}
		p.fs.enterBlock(false)
		if err := p.block(); err != nil {
			return err
		}
		p.fs.leaveBlock()
		_, err := p.expect(token.END)
		return err
	case token.FUNCTION:
		return p.functionStat()
	case token.BREAK:
		return p.breakStat()
	default:
		return p.exprStat()
	}
}

// returnStat parses `return [explist] [';']`. A return list consisting of
// exactly one bare call expression (`return f(...)`) compiles to a real
// tail call: the CALL instruction just emitted for it is rewritten in place
// to TAILCALL instead of being followed by a MOVE into the return registers,
// so the VM can reuse the current frame instead of recursing.
func (p *Parser) returnStat() error {
	line := p.cur.Pos.Line
	if err := p.advance(); err != nil {
		return err
	}
	base := p.fs.freeReg
	n := 0
	if !blockEnd(p.cur.Type) && p.cur.Type != token.SEMI {
		for {
			e, err := p.expr(0)
			if err != nil {
				return err
			}
			if p.cur.Type != token.COMMA {
				if n == 0 && e.kind == exCall {
					p.fs.markTailCall(e.callPC)
					p.fs.emit(vm.Encode(vm.OpReturn, base, 0, 0), line)
					if p.cur.Type == token.SEMI {
						return p.advance()
					}
					return nil
				}
				p.dischargeTo(&e, base+n)
				n++
				break
			}
			p.dischargeTo(&e, base+n)
			n++
			if err := p.advance(); err != nil {
				return err
			}
		}
	}
	p.fs.emit(vm.Encode(vm.OpReturn, base, n+1, 0), line)
	if p.cur.Type == token.SEMI {
		return p.advance()
	}
	return nil
}

func (p *Parser) breakStat() error {
	line := p.cur.Pos.Line
	if err := p.advance(); err != nil {
		return err
	}
	if !p.fs.inLoop() {
		return &Error{Pos: token.Position{Line: line}, Msg: "break outside a loop"}
	}
	pc := p.fs.emitJump(line)
	p.fs.addBreakPatch(pc)
	return nil
}

func (p *Parser) localStat() error {
	if err := p.advance(); err != nil {
		return err
	}
	if p.cur.Type == token.FUNCTION {
		return p.localFunctionStat()
	}
	var names []string
	for {
		name, err := p.expect(token.IDENT)
		if err != nil {
			return err
		}
		names = append(names, name.Literal)
		if p.cur.Type != token.COMMA {
			break
		}
		if err := p.advance(); err != nil {
			return err
		}
	}

	base := p.fs.freeReg
	n := 0
	if p.cur.Type == token.ASSIGN {
		if err := p.advance(); err != nil {
			return err
		}
		var err error
		n, err = p.exprList(base)
		if err != nil {
			return err
		}
	}
	for i := n; i < len(names); i++ {
		p.fs.emit(vm.Encode(vm.OpLoadNil, base+i, base+i, 0), p.cur.Pos.Line)
	}
	// The values sit in base..base+len(names)-1; the names take exactly
	// those registers, and any surplus values are dropped.
	p.fs.freeReg = base
	for _, name := range names {
		p.fs.declareLocal(name)
	}
	return nil
}

func (p *Parser) localFunctionStat() error {
	if err := p.advance(); err != nil { // consume 'function'
		return err
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return err
	}
	reg := p.fs.declareLocal(name.Literal)
	sub, err := p.functionBody(false)
	if err != nil {
		return err
	}
	idx := len(p.fs.protos)
	p.fs.protos = append(p.fs.protos, sub)
	p.fs.emit(vm.EncodeABx(vm.OpClosure, reg, idx), name.Pos.Line)
	return nil
}

func (p *Parser) functionStat() error {
	line := p.cur.Pos.Line
	if err := p.advance(); err != nil {
		return err
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return err
	}
	target, err := p.nameTarget(name.Literal, name.Pos)
	if err != nil {
		return err
	}
	isMethod := false
	for p.cur.Type == token.DOT || p.cur.Type == token.COLON {
		isMethod = p.cur.Type == token.COLON
		if err := p.advance(); err != nil {
			return err
		}
		field, err := p.expect(token.IDENT)
		if err != nil {
			return err
		}
		target = fieldTarget{obj: target, key: field.Literal}
		if isMethod {
			break
		}
	}
	sub, err := p.functionBody(isMethod)
	if err != nil {
		return err
	}
	idx := len(p.fs.protos)
	p.fs.protos = append(p.fs.protos, sub)
	reg := p.fs.freeReg
	p.fs.reserveRegs(1)
	p.fs.emit(vm.EncodeABx(vm.OpClosure, reg, idx), line)
	if err := target.store(p, reg, line); err != nil {
		return err
	}
	p.fs.freeReg = reg
	return nil
}

// functionBody parses "(" paramlist ")" block "end" into a nested funcState.
func (p *Parser) functionBody(isMethod bool) (*funcState, error) {
	line := p.cur.Pos.Line
	sub := newFuncState(p.fs)
	sub.line = line
	if isMethod {
		sub.declareLocal("self")
		sub.numParams++
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	for p.cur.Type != token.RPAREN {
		if p.cur.Type == token.ELLIPSIS {
			sub.isVararg = true
			if err := p.advance(); err != nil {
				return nil, err
			}
			break
		}
		param, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		sub.declareLocal(param.Literal)
		sub.numParams++
		if p.cur.Type == token.COMMA {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}

	outer := p.fs
	p.fs = sub
	if err := p.block(); err != nil {
		return nil, err
	}
	p.fs.emit(vm.Encode(vm.OpReturn, 0, 1, 0), p.cur.Pos.Line)
	p.fs = outer

	if _, err := p.expect(token.END); err != nil {
		return nil, err
	}
	return sub, nil
}

func (p *Parser) ifStat() error {
	var endPatches []int
	for {
		if err := p.advance(); err != nil { // consume IF/ELSEIF
			return err
		}
		cond, err := p.expr(0)
		if err != nil {
			return err
		}
		p.dischargeToAnyReg(&cond)
		testPc := p.fs.emit(vm.Encode(vm.OpTest, cond.reg, 0, 0), p.cur.Pos.Line)
		jmpOverPc := p.fs.emitJump(p.cur.Pos.Line)
		_ = testPc

		if _, err := p.expect(token.THEN); err != nil {
			return err
		}
		p.fs.enterBlock(false)
		if err := p.block(); err != nil {
			return err
		}
		p.fs.leaveBlock()

		if p.cur.Type == token.ELSEIF {
			exitPc := p.fs.emitJump(p.cur.Pos.Line)
			endPatches = append(endPatches, exitPc)
			p.fs.patchJump(jmpOverPc)
			continue
		}
		if p.cur.Type == token.ELSE {
			exitPc := p.fs.emitJump(p.cur.Pos.Line)
			endPatches = append(endPatches, exitPc)
			p.fs.patchJump(jmpOverPc)
			if err := p.advance(); err != nil {
				return err
			}
			p.fs.enterBlock(false)
			if err := p.block(); err != nil {
				return err
			}
			p.fs.leaveBlock()
			break
		}
		p.fs.patchJump(jmpOverPc)
		break
	}
	for _, pc := range endPatches {
		p.fs.patchJump(pc)
	}
	_, err := p.expect(token.END)
	return err
}

func (p *Parser) whileStat() error {
	startPc := p.fs.pc()
	if err := p.advance(); err != nil {
		return err
	}
	cond, err := p.expr(0)
	if err != nil {
		return err
	}
	p.dischargeToAnyReg(&cond)
	p.fs.emit(vm.Encode(vm.OpTest, cond.reg, 0, 0), p.cur.Pos.Line)
	exitJmp := p.fs.emitJump(p.cur.Pos.Line)

	if _, err := p.expect(token.DO); err != nil {
		return err
	}
	p.fs.enterBlock(true)
	if err := p.block(); err != nil {
		return err
	}
	breaks := p.fs.leaveBlock()
	backPc := p.fs.emitJump(p.cur.Pos.Line)
	p.fs.patchJumpTo(backPc, startPc)
	p.fs.patchJump(exitJmp)
	for _, b := range breaks {
		p.fs.patchJump(b)
	}
	_, err = p.expect(token.END)
	return err
}

func (p *Parser) repeatStat() error {
	startPc := p.fs.pc()
	if err := p.advance(); err != nil {
		return err
	}
	p.fs.enterBlock(true)
	if err := p.block(); err != nil {
		return err
	}
	if _, err := p.expect(token.UNTIL); err != nil {
		return err
	}
	cond, err := p.expr(0)
	if err != nil {
		return err
	}
	p.dischargeToAnyReg(&cond)
	p.fs.emit(vm.Encode(vm.OpTest, cond.reg, 0, 0), p.cur.Pos.Line)
	backPc := p.fs.emitJump(p.cur.Pos.Line)
	p.fs.patchJumpTo(backPc, startPc)
	breaks := p.fs.leaveBlock()
	for _, b := range breaks {
		p.fs.patchJump(b)
	}
	return nil
}

func (p *Parser) forStat() error {
	line := p.cur.Pos.Line
	if err := p.advance(); err != nil {
		return err
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return err
	}
	if p.cur.Type == token.ASSIGN {
		return p.numericFor(name.Literal, line)
	}
	return p.genericFor(name.Literal, line)
}

func (p *Parser) numericFor(name string, line int) error {
	if err := p.advance(); err != nil { // consume '='
		return err
	}
	base := p.fs.freeReg
	if err := p.exprInto(base); err != nil { // init
		return err
	}
	if _, err := p.expect(token.COMMA); err != nil {
		return err
	}
	if err := p.exprInto(base + 1); err != nil { // limit
		return err
	}
	if p.cur.Type == token.COMMA {
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.exprInto(base + 2); err != nil { // step
			return err
		}
	} else {
		p.fs.reserveRegs(1)
		one := p.fs.kConstant(value.Number(1))
		p.fs.emit(vm.EncodeABx(vm.OpLoadK, base+2, one), line)
	}
	p.fs.reserveRegs(1) // control var slot at base+3

	prepPc := p.fs.emit(vm.EncodeAsBx(vm.OpForPrep, base, 0), line)

	if _, err := p.expect(token.DO); err != nil {
		return err
	}
	p.fs.enterBlock(true)
	p.fs.declareLocal(name)
	if p.fs.locals[len(p.fs.locals)-1].reg != base+3 {
		// keep declared register aligned with the loop's control slot
		p.fs.locals[len(p.fs.locals)-1].reg = base + 3
	}
	bodyStart := p.fs.pc()
	if err := p.block(); err != nil {
		return err
	}
	breaks := p.fs.leaveBlock()
	p.fs.patchJumpTo(prepPc, p.fs.pc())
	loopPc := p.fs.emit(vm.EncodeAsBx(vm.OpForLoop, base, 0), p.cur.Pos.Line)
	p.fs.patchJumpTo(loopPc, bodyStart)
	for _, b := range breaks {
		p.fs.patchJump(b)
	}
	_, err := p.expect(token.END)
	return err
}

func (p *Parser) genericFor(first string, line int) error {
	names := []string{first}
	for p.cur.Type == token.COMMA {
		if err := p.advance(); err != nil {
			return err
		}
		n, err := p.expect(token.IDENT)
		if err != nil {
			return err
		}
		names = append(names, n.Literal)
	}
	if _, err := p.expect(token.IN); err != nil {
		return err
	}
	base := p.fs.freeReg
	n, err := p.exprList(base)
	if err != nil {
		return err
	}
	// A call in last position (`in ipairs(t)`) supplies the remaining slots
	// of the iterator/state/control triple from its extra results.
	if last := len(p.fs.code) - 1; n < 3 && vm.DecodeOp(p.fs.code[last]) == vm.OpCall && vm.DecodeA(p.fs.code[last]) == base+n-1 {
		p.fs.code[last] = vm.Encode(vm.OpCall, base+n-1, vm.DecodeB(p.fs.code[last]), 3-n+2)
		n = 3
	}
	for i := n; i < 3; i++ {
		p.fs.emit(vm.Encode(vm.OpLoadNil, base+i, base+i, 0), line)
	}
	p.fs.freeReg = base + 3

	if _, err := p.expect(token.DO); err != nil {
		return err
	}
	p.fs.enterBlock(true)
	ctrlReg := base + 2 // already holds the initial control value
	for _, nm := range names {
		p.fs.declareLocal(nm)
	}

	startPc := p.fs.pc()
	p.fs.emit(vm.Encode(vm.OpTForCall, base, 0, len(names)), p.cur.Pos.Line)
	loopPc := p.fs.pc()
	p.fs.emit(vm.EncodeAsBx(vm.OpTForLoop, ctrlReg, 0), p.cur.Pos.Line)
	// TFORLOOP jumps into the body while the first result is non-nil and
	// falls through to this exit jump once it is nil.
	exitPc := p.fs.emitJump(p.cur.Pos.Line)
	p.fs.patchJumpTo(loopPc, p.fs.pc())

	if err := p.block(); err != nil {
		return err
	}
	breaks := p.fs.leaveBlock()
	backPc := p.fs.emitJump(p.cur.Pos.Line)
	p.fs.patchJumpTo(backPc, startPc)
	p.fs.patchJump(exitPc)
	for _, b := range breaks {
		p.fs.patchJump(b)
	}
	_, err = p.expect(token.END)
	return err
}

func (p *Parser) exprStat() error {
	line := p.cur.Pos.Line
	e, err := p.suffixedExpr()
	if err != nil {
		return err
	}
	if p.cur.Type != token.ASSIGN && p.cur.Type != token.COMMA {
		if e.kind != exCall {
			return p.errf("syntax error: expression statement must be a call")
		}
		return nil
	}

	targets := []assignTarget{e.assignTarget()}
	for p.cur.Type == token.COMMA {
		if err := p.advance(); err != nil {
			return err
		}
		t, err := p.suffixedExpr()
		if err != nil {
			return err
		}
		targets = append(targets, t.assignTarget())
	}
	if _, err := p.expect(token.ASSIGN); err != nil {
		return err
	}
	base := p.fs.freeReg
	n, err := p.exprList(base)
	if err != nil {
		return err
	}
	for i := n; i < len(targets); i++ {
		p.fs.emit(vm.Encode(vm.OpLoadNil, base+i, base+i, 0), line)
	}
	// Assign in reverse so earlier targets' side effects (table/key regs)
	// computed before the RHS was parsed remain valid.
	for i := len(targets) - 1; i >= 0; i-- {
		if err := targets[i].store(p, base+i, line); err != nil {
			return err
		}
	}
	p.fs.freeReg = base
	return nil
}

// exprList parses a comma-separated expression list, placing each value
// into consecutive registers starting at base, and returns how many were
// written.
func (p *Parser) exprList(base int) (int, error) {
	n := 0
	for {
		if err := p.exprInto(base + n); err != nil {
			return 0, err
		}
		n++
		if p.cur.Type != token.COMMA {
			break
		}
		if err := p.advance(); err != nil {
			return 0, err
		}
	}
	if p.fs.freeReg < base+n {
		p.fs.freeReg = base + n
	}
	return n, nil
}

func (p *Parser) exprInto(reg int) error {
	e, err := p.expr(0)
	if err != nil {
		return err
	}
	p.dischargeTo(&e, reg)
	if p.fs.freeReg < reg+1 {
		p.fs.reserveRegs(reg + 1 - p.fs.freeReg)
	}
	return nil
}

func (p *Parser) atoi(lit string) (int, error) {
	n, err := strconv.Atoi(lit)
	if err != nil {
		return 0, err
	}
	return n, nil
}
