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

// Package vm implements the register-based bytecode interpreter: fixed
// 32-bit instruction encoding, the Prototype/Closure/UpValue object model,
// call-frame dispatch with tail calls and protected calls, metatable
// dispatch and a stop-the-world tracing garbage collector.
package vm

// Opcode identifies one of the fixed-width instructions a Prototype's Code
// stream is built from.
type Opcode uint8

const (
	OpMove Opcode = iota
	OpLoadK
	OpLoadBool
	OpLoadNil
	OpGetUpval
	OpSetUpval
	OpGetGlobal
	OpSetGlobal
	OpGetTable
	OpSetTable
	OpNewTable
	OpSelf
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIDiv
	OpMod
	OpPow
	OpUnm
	OpNot
	OpLen
	OpConcat
	OpJmp
	OpEq
	OpLt
	OpLe
	OpTest
	OpTestSet
	OpCall
	OpTailCall
	OpReturn
	OpForLoop
	OpForPrep
	OpTForCall
	OpTForLoop
	OpSetList
	OpClosure
	OpVararg
	OpClose

	// Native crypto operations, argument registers hold byte-string
	// operands and the result lands in RA; see crypto.go for bodies.
	OpSHA3
	OpSHAKE256
	OpMLDSAVerify
	OpFalcon512Verify
	OpSLHDSAVerify
	OpSecp256k1Recover
)

type operandForm uint8

const (
	formABC operandForm = iota
	formABx
	formAsBx
)

type opcodeInfo struct {
	name string
	form operandForm
}

var opcodeTable = [...]opcodeInfo{
	OpMove:             {"MOVE", formABC},
	OpLoadK:            {"LOADK", formABx},
	OpLoadBool:         {"LOADBOOL", formABC},
	OpLoadNil:          {"LOADNIL", formABC},
	OpGetUpval:         {"GETUPVAL", formABC},
	OpSetUpval:         {"SETUPVAL", formABC},
	OpGetGlobal:        {"GETGLOBAL", formABx},
	OpSetGlobal:        {"SETGLOBAL", formABx},
	OpGetTable:         {"GETTABLE", formABC},
	OpSetTable:         {"SETTABLE", formABC},
	OpNewTable:         {"NEWTABLE", formABC},
	OpSelf:             {"SELF", formABC},
	OpAdd:              {"ADD", formABC},
	OpSub:              {"SUB", formABC},
	OpMul:              {"MUL", formABC},
	OpDiv:              {"DIV", formABC},
	OpIDiv:             {"IDIV", formABC},
	OpMod:              {"MOD", formABC},
	OpPow:              {"POW", formABC},
	OpUnm:              {"UNM", formABC},
	OpNot:              {"NOT", formABC},
	OpLen:              {"LEN", formABC},
	OpConcat:           {"CONCAT", formABC},
	OpJmp:              {"JMP", formAsBx},
	OpEq:               {"EQ", formABC},
	OpLt:               {"LT", formABC},
	OpLe:               {"LE", formABC},
	OpTest:             {"TEST", formABC},
	OpTestSet:          {"TESTSET", formABC},
	OpCall:             {"CALL", formABC},
	OpTailCall:         {"TAILCALL", formABC},
	OpReturn:           {"RETURN", formABC},
	OpForLoop:          {"FORLOOP", formAsBx},
	OpForPrep:          {"FORPREP", formAsBx},
	OpTForCall:         {"TFORCALL", formABC},
	OpTForLoop:         {"TFORLOOP", formAsBx},
	OpSetList:          {"SETLIST", formABC},
	OpClosure:          {"CLOSURE", formABx},
	OpVararg:           {"VARARG", formABC},
	OpClose:            {"CLOSE", formABC},
	OpSHA3:             {"SHA3", formABC},
	OpSHAKE256:         {"SHAKE256", formABC},
	OpMLDSAVerify:      {"MLDSAVERIFY", formABC},
	OpFalcon512Verify:  {"FALCON512VERIFY", formABC},
	OpSLHDSAVerify:     {"SLHDSAVERIFY", formABC},
	OpSecp256k1Recover: {"SECP256K1RECOVER", formABC},
}

func (op Opcode) String() string {
	if int(op) < len(opcodeTable) {
		return opcodeTable[op].name
	}
	return "UNKNOWN"
}

// Instruction encoding: 6 bits opcode, then either
//   A(8) B(9) C(9)   — formABC, RK operands use the high bit of B/C
//   A(8) Bx(18)      — formABx, Bx is an unsigned constant/global index
//   A(8) sBx(18)     — formAsBx, sBx is Bx biased by -131071 for signed jumps
const (
	sizeOp = 6
	sizeA  = 8
	sizeB  = 9
	sizeC  = 9
	sizeBx = sizeB + sizeC

	posOp = 0
	posA  = posOp + sizeOp
	posB  = posA + sizeA
	posC  = posB + sizeB
	posBx = posA + sizeA

	maxArgBx  = 1<<sizeBx - 1
	biasSBx   = maxArgBx >> 1
	rkIsConst = 1 << (sizeB - 1)
)

func mask(bits int) uint32 { return 1<<bits - 1 }

// Encode packs an ABC-form instruction.
func Encode(op Opcode, a, b, c int) uint32 {
	return uint32(op)<<posOp | uint32(a&int(mask(sizeA)))<<posA |
		uint32(b&int(mask(sizeB)))<<posB | uint32(c&int(mask(sizeC)))<<posC
}

// EncodeABx packs an ABx-form instruction.
func EncodeABx(op Opcode, a, bx int) uint32 {
	return uint32(op)<<posOp | uint32(a&int(mask(sizeA)))<<posA | uint32(bx&maxArgBx)<<posBx
}

// EncodeAsBx packs an AsBx-form instruction, biasing sbx into the unsigned
// Bx field.
func EncodeAsBx(op Opcode, a, sbx int) uint32 {
	return EncodeABx(op, a, sbx+biasSBx)
}

func DecodeOp(instr uint32) Opcode { return Opcode(instr >> posOp & mask(sizeOp)) }
func DecodeA(instr uint32) int     { return int(instr >> posA & mask(sizeA)) }
func DecodeB(instr uint32) int     { return int(instr >> posB & mask(sizeB)) }
func DecodeC(instr uint32) int     { return int(instr >> posC & mask(sizeC)) }
func DecodeBx(instr uint32) int    { return int(instr >> posBx & mask(sizeBx)) }
func DecodeSBx(instr uint32) int   { return DecodeBx(instr) - biasSBx }

// IsConstant reports whether an RK-encoded operand refers to the constant
// pool rather than a register.
func IsConstant(rk int) bool { return rk&rkIsConst != 0 }

// ConstIndex strips the constant-marker bit from an RK operand.
func ConstIndex(rk int) int { return rk &^ rkIsConst }

// RKConst produces an RK operand referring to constant index idx.
func RKConst(idx int) int { return idx | rkIsConst }
