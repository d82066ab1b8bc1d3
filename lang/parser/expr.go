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
	"strconv"
	"strings"

	"github.com/probechain/go-probe/lang/token"
	"github.com/probechain/go-probe/lang/value"
	"github.com/probechain/go-probe/lang/vm"
)

type exKind int

const (
	exConst exKind = iota // constant pool index in constK, not yet loaded (dischargeTo emits LOADK)
	exLocal
	exUpval
	exGlobal
	exIndexed // table/key live in regs, value not yet loaded
	exCall    // just emitted a CALL; reg holds the first (possibly only) result
	exReloc   // instruction just emitted targets whatever reg we assign it (A field pending)
	exNonReloc
)

// expdesc is the deferred-emission expression descriptor every expr()
// production returns: the parser keeps deciding where a value should live
// until something forces it into a concrete register (dischargeTo).
type expdesc struct {
	kind   exKind
	reg    int // valid for exLocal/exNonReloc/exCall/exIndexed(table)/exReloc(pc)
	key    int // RK operand, valid for exIndexed
	constK int // constant pool index, valid for exGlobal/exUpval index
	name   string
	callPC int // pc of the CALL instruction, valid for exCall
}

func (e expdesc) assignTarget() assignTarget {
	switch e.kind {
	case exLocal:
		return localTarget{reg: e.reg}
	case exUpval:
		return upvalTarget{idx: e.constK}
	case exGlobal:
		return globalTarget{constIdx: e.constK}
	case exIndexed:
		return indexTarget{objReg: e.reg, keyRK: e.key}
	}
	return localTarget{reg: e.reg}
}

// dischargeToAnyReg ensures e's value lives in some register (allocating a
// fresh one if needed) and updates e.reg accordingly.
func (p *Parser) dischargeToAnyReg(e *expdesc) {
	if e.kind == exLocal || e.kind == exNonReloc {
		return
	}
	reg := p.fs.freeReg
	p.fs.reserveRegs(1)
	p.dischargeTo(e, reg)
}

// dischargeTo forces e's value into register reg, emitting whatever
// load/move instruction is needed for its current kind.
func (p *Parser) dischargeTo(e *expdesc, reg int) {
	line := p.cur.Pos.Line
	switch e.kind {
	case exConst:
		p.fs.emit(vm.EncodeABx(vm.OpLoadK, reg, e.constK), line)
	case exLocal:
		if e.reg != reg {
			p.fs.emit(vm.Encode(vm.OpMove, reg, e.reg, 0), line)
		}
	case exNonReloc:
		if e.reg != reg {
			p.fs.emit(vm.Encode(vm.OpMove, reg, e.reg, 0), line)
		}
	case exUpval:
		p.fs.emit(vm.Encode(vm.OpGetUpval, reg, e.constK, 0), line)
	case exGlobal:
		p.fs.emit(vm.EncodeABx(vm.OpGetGlobal, reg, e.constK), line)
	case exIndexed:
		p.fs.emit(vm.Encode(vm.OpGetTable, reg, e.reg, e.key), line)
	case exCall:
		if e.reg != reg {
			p.fs.emit(vm.Encode(vm.OpMove, reg, e.reg, 0), line)
		}
	case exReloc:
		patchRelocA(p.fs, e.reg, reg)
	}
	if reg >= p.fs.numRegs {
		p.fs.numRegs = reg + 1
	}
	e.kind = exNonReloc
	e.reg = reg
}

// patchRelocA backfills the A operand of the instruction at pc now that the
// caller has decided which register its result belongs in.
func patchRelocA(fs *funcState, pc, reg int) {
	instr := fs.code[pc]
	op := vm.DecodeOp(instr)
	b, c := vm.DecodeB(instr), vm.DecodeC(instr)
	fs.code[pc] = vm.Encode(op, reg, b, c)
}

// Binary operator precedence, loosely Lua's: or < and < comparisons <
// concat < +- < */ % // < unary < ^. The lexer tokenizes the bitwise
// punctuation (&, ~, |, <<, >>) since `~=` shares a prefix with standalone
// `~`, but no opcode backs a bitwise operator, so none of them appear here;
// encountering one mid-expression ends the expression, and the enclosing
// statement then reports the token as unexpected.
var binPrec = map[token.Type][2]int{
	token.OR:      {1, 1},
	token.AND:     {2, 2},
	token.LT:      {3, 3}, token.GT: {3, 3}, token.LE: {3, 3}, token.GE: {3, 3}, token.EQ: {3, 3}, token.NE: {3, 3},
	token.CONCAT:  {9, 8}, // right-associative
	token.PLUS:    {10, 10}, token.MINUS: {10, 10},
	token.STAR:    {11, 11}, token.SLASH: {11, 11}, token.DSLASH: {11, 11}, token.PERCENT: {11, 11},
	token.CARET:   {14, 13}, // right-associative, binds tighter than unary
}

const unaryPrec = 12

func (p *Parser) expr(limit int) (expdesc, error) {
	left, err := p.unaryExpr()
	if err != nil {
		return expdesc{}, err
	}
	for {
		prec, ok := binPrec[p.cur.Type]
		if !ok || prec[0] <= limit {
			break
		}
		op := p.cur.Type
		line := p.cur.Pos.Line
		if err := p.advance(); err != nil {
			return expdesc{}, err
		}

		if op == token.AND || op == token.OR {
			left, err = p.shortCircuit(left, op, prec[1], line)
			if err != nil {
				return expdesc{}, err
			}
			continue
		}

		p.dischargeToAnyReg(&left)
		lreg := left.reg
		right, err := p.expr(prec[1])
		if err != nil {
			return expdesc{}, err
		}
		left, err = p.emitBinOp(op, lreg, right, line)
		if err != nil {
			return expdesc{}, err
		}
	}
	return left, nil
}

func (p *Parser) shortCircuit(left expdesc, op token.Type, rprec int, line int) (expdesc, error) {
	p.dischargeToAnyReg(&left)
	// TEST skips the following JMP when Truthy(left) != (C != 0) (see
	// execute.go's OpTest), so the JMP fires when Truthy(left) == (C != 0).
	// AND must jump (short-circuit, skipping the right operand) when left is
	// falsy, which needs C=0; OR must jump when left is truthy, which needs C=1.
	testC := 0
	if op == token.OR {
		testC = 1
	}
	p.fs.emit(vm.Encode(vm.OpTest, left.reg, 0, testC), line)
	jmp := p.fs.emitJump(line)
	right, err := p.expr(rprec)
	if err != nil {
		return expdesc{}, err
	}
	p.dischargeTo(&right, left.reg)
	p.fs.patchJump(jmp)
	return expdesc{kind: exNonReloc, reg: left.reg}, nil
}

func (p *Parser) emitBinOp(op token.Type, lreg int, right expdesc, line int) (expdesc, error) {
	rOperand := p.rkOperand(&right)
	var opc vm.Opcode
	switch op {
	case token.PLUS:
		opc = vm.OpAdd
	case token.MINUS:
		opc = vm.OpSub
	case token.STAR:
		opc = vm.OpMul
	case token.SLASH:
		opc = vm.OpDiv
	case token.DSLASH:
		opc = vm.OpIDiv
	case token.PERCENT:
		opc = vm.OpMod
	case token.CARET:
		opc = vm.OpPow
	case token.CONCAT:
		// CONCAT joins the register range B..C, so both operands go into
		// two fresh consecutive registers.
		first := p.fs.freeReg
		p.fs.reserveRegs(2)
		p.fs.emit(vm.Encode(vm.OpMove, first, lreg, 0), line)
		p.dischargeTo(&right, first+1)
		pc := p.fs.emit(vm.Encode(vm.OpConcat, 0, first, first+1), line)
		return expdesc{kind: exReloc, reg: pc}, nil
	case token.EQ, token.NE:
		pc := p.fs.emit(vm.Encode(vm.OpEq, boolToInt(op == token.EQ), lreg, rOperand), line)
		return p.relationalResult(pc, line)
	case token.LT:
		pc := p.fs.emit(vm.Encode(vm.OpLt, 1, lreg, rOperand), line)
		return p.relationalResult(pc, line)
	case token.GT:
		pc := p.fs.emit(vm.Encode(vm.OpLt, 1, rOperand, lreg), line)
		return p.relationalResult(pc, line)
	case token.LE:
		pc := p.fs.emit(vm.Encode(vm.OpLe, 1, lreg, rOperand), line)
		return p.relationalResult(pc, line)
	case token.GE:
		pc := p.fs.emit(vm.Encode(vm.OpLe, 1, rOperand, lreg), line)
		return p.relationalResult(pc, line)
	default:
		return expdesc{}, p.errf("unsupported operator %s", op)
	}
	pc := p.fs.emit(vm.Encode(opc, 0, lreg, rOperand), line)
	return expdesc{kind: exReloc, reg: pc}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// relationalResult materializes a boolean from a comparison opcode using
// the standard two-instruction LOADBOOL/skip-LOADBOOL idiom.
func (p *Parser) relationalResult(condPc, line int) (expdesc, error) {
	reg := p.fs.freeReg
	p.fs.reserveRegs(1)
	trueLoad := p.fs.emit(vm.Encode(vm.OpLoadBool, reg, 1, 1), line)
	p.fs.emit(vm.Encode(vm.OpLoadBool, reg, 0, 0), line)
	_ = condPc
	_ = trueLoad
	return expdesc{kind: exNonReloc, reg: reg}, nil
}

// rkOperand returns an RK operand (register or constant index) for e
// without necessarily committing it to a fresh register. A constant whose
// pool index does not fit an RK field is loaded into a register instead.
func (p *Parser) rkOperand(e *expdesc) int {
	if e.kind == exConst && e.constK < vm.RKConst(0) {
		return vm.RKConst(e.constK)
	}
	p.dischargeToAnyReg(e)
	return e.reg
}

func (p *Parser) unaryExpr() (expdesc, error) {
	switch p.cur.Type {
	case token.NOT, token.MINUS, token.HASH:
		op := p.cur.Type
		line := p.cur.Pos.Line
		if err := p.advance(); err != nil {
			return expdesc{}, err
		}
		operand, err := p.expr(unaryPrec)
		if err != nil {
			return expdesc{}, err
		}
		p.dischargeToAnyReg(&operand)
		var opc vm.Opcode
		switch op {
		case token.NOT:
			opc = vm.OpNot
		case token.MINUS:
			opc = vm.OpUnm
		case token.HASH:
			opc = vm.OpLen
		}
		pc := p.fs.emit(vm.Encode(opc, 0, operand.reg, 0), line)
		return expdesc{kind: exReloc, reg: pc}, nil
	}
	return p.suffixedExpr()
}

// suffixedExpr parses a primary expression followed by any chain of
// `.name`, `[expr]`, `:name(args)` or `(args)` suffixes.
func (p *Parser) suffixedExpr() (expdesc, error) {
	e, err := p.primaryExpr()
	if err != nil {
		return expdesc{}, err
	}
	for {
		switch p.cur.Type {
		case token.DOT:
			if err := p.advance(); err != nil {
				return expdesc{}, err
			}
			field, err := p.expect(token.IDENT)
			if err != nil {
				return expdesc{}, err
			}
			p.dischargeToAnyReg(&e)
			k := p.fs.kConstant(value.Str(internConst(field.Literal)))
			e = expdesc{kind: exIndexed, reg: e.reg, key: vm.RKConst(k)}
		case token.LBRACKET:
			if err := p.advance(); err != nil {
				return expdesc{}, err
			}
			key, err := p.expr(0)
			if err != nil {
				return expdesc{}, err
			}
			if _, err := p.expect(token.RBRACKET); err != nil {
				return expdesc{}, err
			}
			p.dischargeToAnyReg(&e)
			krk := p.rkOperand(&key)
			e = expdesc{kind: exIndexed, reg: e.reg, key: krk}
		case token.COLON:
			if err := p.advance(); err != nil {
				return expdesc{}, err
			}
			method, err := p.expect(token.IDENT)
			if err != nil {
				return expdesc{}, err
			}
			p.dischargeToAnyReg(&e)
			base := p.fs.freeReg
			p.fs.reserveRegs(2)
			k := p.fs.kConstant(value.Str(internConst(method.Literal)))
			p.fs.emit(vm.Encode(vm.OpSelf, base, e.reg, vm.RKConst(k)), p.cur.Pos.Line)
			nargs, err := p.callArgs(base + 2)
			if err != nil {
				return expdesc{}, err
			}
			pc := p.fs.emit(vm.Encode(vm.OpCall, base, nargs+2, 2), p.cur.Pos.Line)
			e = expdesc{kind: exCall, reg: base, callPC: pc}
			p.fs.freeReg = base + 1
		case token.LPAREN, token.STRING, token.LBRACE:
			// CALL overwrites its base register and the ones after it, so the
			// callee goes into a fresh register unless it already is the top one.
			if !((e.kind == exNonReloc || e.kind == exCall) && e.reg == p.fs.freeReg-1) {
				reg := p.fs.freeReg
				p.fs.reserveRegs(1)
				p.dischargeTo(&e, reg)
			}
			base := e.reg
			nargs, err := p.callArgs(base + 1)
			if err != nil {
				return expdesc{}, err
			}
			pc := p.fs.emit(vm.Encode(vm.OpCall, base, nargs+1, 2), p.cur.Pos.Line)
			e = expdesc{kind: exCall, reg: base, callPC: pc}
			p.fs.freeReg = base + 1
		default:
			return e, nil
		}
	}
}

// callArgs parses a call's argument list (already positioned at the
// opening '(' or a bare string/table-constructor call) into consecutive
// registers starting at base, returning the argument count.
func (p *Parser) callArgs(base int) (int, error) {
	switch p.cur.Type {
	case token.STRING:
		if err := p.exprInto(base); err != nil {
			return 0, err
		}
		return 1, nil
	case token.LBRACE:
		if err := p.exprInto(base); err != nil {
			return 0, err
		}
		return 1, nil
	case token.LPAREN:
		if err := p.advance(); err != nil {
			return 0, err
		}
		if p.cur.Type == token.RPAREN {
			if err := p.advance(); err != nil {
				return 0, err
			}
			return 0, nil
		}
		n, err := p.exprList(base)
		if err != nil {
			return 0, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return 0, err
		}
		return n, nil
	}
	return 0, p.errf("expected call arguments")
}

// primaryExpr parses the innermost expression forms: literals, names,
// parenthesized expressions, table constructors and function literals.
func (p *Parser) primaryExpr() (expdesc, error) {
	tok := p.cur
	switch tok.Type {
	case token.NIL:
		if err := p.advance(); err != nil {
			return expdesc{}, err
		}
		k := p.fs.kConstant(value.Nil)
		return expdesc{kind: exConst, constK: k}, nil
	case token.TRUE, token.FALSE:
		if err := p.advance(); err != nil {
			return expdesc{}, err
		}
		k := p.fs.kConstant(value.Bool(tok.Type == token.TRUE))
		return expdesc{kind: exConst, constK: k}, nil
	case token.NUMBER:
		if err := p.advance(); err != nil {
			return expdesc{}, err
		}
		n, err := parseNumber(tok.Literal)
		if err != nil {
			return expdesc{}, &Error{Pos: tok.Pos, Msg: err.Error()}
		}
		k := p.fs.kConstant(value.Number(n))
		return expdesc{kind: exConst, constK: k}, nil
	case token.STRING:
		if err := p.advance(); err != nil {
			return expdesc{}, err
		}
		k := p.fs.kConstant(value.Str(internConst(tok.Literal)))
		return expdesc{kind: exConst, constK: k}, nil
	case token.ELLIPSIS:
		if err := p.advance(); err != nil {
			return expdesc{}, err
		}
		reg := p.fs.freeReg
		p.fs.reserveRegs(1)
		p.fs.emit(vm.Encode(vm.OpVararg, reg, 2, 0), tok.Pos.Line)
		return expdesc{kind: exNonReloc, reg: reg}, nil
	case token.FUNCTION:
		if err := p.advance(); err != nil {
			return expdesc{}, err
		}
		sub, err := p.functionBody(false)
		if err != nil {
			return expdesc{}, err
		}
		idx := len(p.fs.protos)
		p.fs.protos = append(p.fs.protos, sub)
		reg := p.fs.freeReg
		p.fs.reserveRegs(1)
		pc := p.fs.emit(vm.EncodeABx(vm.OpClosure, reg, idx), tok.Pos.Line)
		_ = pc
		return expdesc{kind: exNonReloc, reg: reg}, nil
	case token.LPAREN:
		if err := p.advance(); err != nil {
			return expdesc{}, err
		}
		e, err := p.expr(0)
		if err != nil {
			return expdesc{}, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return expdesc{}, err
		}
		return e, nil
	case token.LBRACE:
		return p.tableConstructor()
	case token.IDENT:
		if err := p.advance(); err != nil {
			return expdesc{}, err
		}
		return p.resolveName(tok.Literal), nil
	}
	return expdesc{}, p.errf("unexpected token %s", tok.Type)
}

func (p *Parser) resolveName(name string) expdesc {
	if reg, ok := p.fs.resolveLocal(name); ok {
		return expdesc{kind: exLocal, reg: reg, name: name}
	}
	if idx, ok := p.fs.resolveUpval(name); ok {
		return expdesc{kind: exUpval, constK: idx, name: name}
	}
	k := p.fs.kConstant(value.Str(internConst(name)))
	return expdesc{kind: exGlobal, constK: k, name: name}
}

func (p *Parser) nameTarget(name string, pos token.Position) (assignTarget, error) {
	e := p.resolveName(name)
	return e.assignTarget(), nil
}

func (p *Parser) tableConstructor() (expdesc, error) {
	line := p.cur.Pos.Line
	if _, err := p.expect(token.LBRACE); err != nil {
		return expdesc{}, err
	}
	reg := p.fs.freeReg
	p.fs.reserveRegs(1)
	tablePc := p.fs.emit(vm.Encode(vm.OpNewTable, reg, 0, 0), line)
	_ = tablePc

	arrayIdx := 0
	pendingArrayBase := p.fs.freeReg
	pendingArrayCount := 0

	flush := func() {
		if pendingArrayCount == 0 {
			return
		}
		p.fs.emit(vm.Encode(vm.OpSetList, reg, pendingArrayCount, arrayIdx-pendingArrayCount), line)
		p.fs.freeReg = pendingArrayBase
		pendingArrayCount = 0
	}

	for p.cur.Type != token.RBRACE {
		switch {
		case p.cur.Type == token.LBRACKET:
			flush()
			if err := p.advance(); err != nil {
				return expdesc{}, err
			}
			key, err := p.expr(0)
			if err != nil {
				return expdesc{}, err
			}
			if _, err := p.expect(token.RBRACKET); err != nil {
				return expdesc{}, err
			}
			if _, err := p.expect(token.ASSIGN); err != nil {
				return expdesc{}, err
			}
			val, err := p.expr(0)
			if err != nil {
				return expdesc{}, err
			}
			krk := p.rkOperand(&key)
			vrk := p.rkOperand(&val)
			p.fs.emit(vm.Encode(vm.OpSetTable, reg, krk, vrk), line)
			p.fs.freeReg = pendingArrayBase

		case p.cur.Type == token.IDENT && p.peek.Type == token.ASSIGN:
			flush()
			field := p.cur
			if err := p.advance(); err != nil {
				return expdesc{}, err
			}
			if err := p.advance(); err != nil { // '='
				return expdesc{}, err
			}
			val, err := p.expr(0)
			if err != nil {
				return expdesc{}, err
			}
			k := p.fs.kConstant(value.Str(internConst(field.Literal)))
			vrk := p.rkOperand(&val)
			p.fs.emit(vm.Encode(vm.OpSetTable, reg, vm.RKConst(k), vrk), line)
			p.fs.freeReg = pendingArrayBase

		default:
			slot := pendingArrayBase + pendingArrayCount
			if err := p.exprInto(slot); err != nil {
				return expdesc{}, err
			}
			pendingArrayCount++
			arrayIdx++
			p.fs.freeReg = pendingArrayBase + pendingArrayCount
		}

		if p.cur.Type == token.COMMA || p.cur.Type == token.SEMI {
			if err := p.advance(); err != nil {
				return expdesc{}, err
			}
			continue
		}
		break
	}
	flush()
	if _, err := p.expect(token.RBRACE); err != nil {
		return expdesc{}, err
	}
	p.fs.freeReg = reg + 1
	return expdesc{kind: exNonReloc, reg: reg}, nil
}

func parseNumber(lit string) (float64, error) {
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		if strings.ContainsAny(lit, "pP.") {
			return strconv.ParseFloat(lit, 64)
		}
		n, err := strconv.ParseInt(lit[2:], 16, 64)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
	return strconv.ParseFloat(lit, 64)
}

// internConst wraps a compile-time string literal; constant pool strings
// are unmanaged (never swept) since they are reachable for the lifetime of
// the Prototype that references them. vm.State.Load canonicalizes these
// against the running State's string pool before the chunk is ever called.
func internConst(s string) *value.String {
	return value.NewUnmanagedString(s)
}
