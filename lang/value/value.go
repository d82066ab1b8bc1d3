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

// Package value implements the tagged runtime value representation shared
// by the compiler, the register VM and the embedding API: nil, booleans,
// numbers, strings, tables, closures, userdata and the internal types
// (prototype, upvalue) that never escape to scripts.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which alternative of Value is active.
type Kind uint8

const (
	KindNil Kind = iota
	KindBoolean
	KindNumber
	KindString
	KindTable
	KindClosure
	KindGoFunction
	KindUserData
	KindLightUserData
	KindPrototype
	KindUpValue
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindClosure, KindGoFunction:
		return "function"
	case KindUserData, KindLightUserData:
		return "userdata"
	case KindPrototype:
		return "prototype"
	case KindUpValue:
		return "upvalue"
	}
	return "unknown"
}

// Value is a tagged union over every runtime value kind. It is passed by
// value throughout the VM; heap-allocated kinds (String, Table, Closure,
// UserData) carry a pointer in obj and are reference-counted only by the
// tracing GC, never by Go's own refcounting.
type Value struct {
	kind Kind
	n    float64
	obj  interface{}
}

// Nil is the canonical nil value.
var Nil = Value{kind: KindNil}

// True and False are the canonical boolean values.
var (
	True  = Value{kind: KindBoolean, n: 1}
	False = Value{kind: KindBoolean, n: 0}
)

// Bool returns the canonical True or False value for b.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Number wraps a float64 as a Value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Str wraps a *String as a Value.
func Str(s *String) Value { return Value{kind: KindString, obj: s} }

// Tab wraps a *Table as a Value.
func Tab(t *Table) Value { return Value{kind: KindTable, obj: t} }

// Clo wraps a *Closure as a Value.
func Clo(c *Closure) Value { return Value{kind: KindClosure, obj: c} }

// GoFunction is a Go-native function that GoFunc wraps as a callable Value.
type GoFunction func(args []Value) ([]Value, error)

// GoFunc wraps a GoFunction as a Value.
func GoFunc(f GoFunction) Value { return Value{kind: KindGoFunction, obj: f} }

// UserData wraps an opaque host value with an optional metatable, the only
// value kind finalizers (__gc) ever run on.
type UserData struct {
	Data interface{}
	Meta *Table
}

// UD wraps a *UserData as a Value.
func UD(u *UserData) Value { return Value{kind: KindUserData, obj: u} }

// LightUD wraps a raw pointer-sized host value that the GC never manages.
func LightUD(p interface{}) Value { return Value{kind: KindLightUserData, obj: p} }

// Proto wraps a *Prototype as a Value, used only internally when closures
// are pushed as constants during closure creation.
func Proto(p *Prototype) Value { return Value{kind: KindPrototype, obj: p} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNil() bool     { return v.kind == KindNil }
func (v Value) IsBoolean() bool { return v.kind == KindBoolean }
func (v Value) IsNumber() bool  { return v.kind == KindNumber }
func (v Value) IsString() bool  { return v.kind == KindString }
func (v Value) IsTable() bool   { return v.kind == KindTable }
func (v Value) IsFunction() bool {
	return v.kind == KindClosure || v.kind == KindGoFunction
}
func (v Value) IsUserData() bool { return v.kind == KindUserData || v.kind == KindLightUserData }

// Truthy implements Lua truthiness: everything except nil and false is true.
func (v Value) Truthy() bool {
	return !(v.kind == KindNil || (v.kind == KindBoolean && v.n == 0))
}

func (v Value) AsBool() bool { return v.n != 0 }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsString() *String { return v.obj.(*String) }
func (v Value) AsTable() *Table { return v.obj.(*Table) }
func (v Value) AsClosure() *Closure { return v.obj.(*Closure) }
func (v Value) AsGoFunction() GoFunction { return v.obj.(GoFunction) }
func (v Value) AsUserData() *UserData { return v.obj.(*UserData) }
func (v Value) AsPrototype() *Prototype { return v.obj.(*Prototype) }

// Obj exposes the heap pointer carried by reference-kind values, for the
// GC's mark phase to type-switch over.
func (v Value) Obj() interface{} { return v.obj }

// RawEqual implements primitive (non-metamethod) equality: numbers compare
// by value, strings by interned identity (see StringPool), everything else
// by identity.
func RawEqual(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBoolean, KindNumber:
		return a.n == b.n
	case KindString:
		return a.obj.(*String) == b.obj.(*String)
	default:
		return a.obj == b.obj
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBoolean:
		return fmt.Sprintf("%t", v.AsBool())
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.AsString().Data
	case KindTable:
		return fmt.Sprintf("table: %p", v.obj)
	case KindClosure, KindGoFunction:
		return fmt.Sprintf("function: %p", v.obj)
	case KindUserData, KindLightUserData:
		return fmt.Sprintf("userdata: %p", v.obj)
	}
	return v.kind.String()
}

// ToNumber coerces v to a float64, following the arithmetic-coercion rule
// that a string holding a valid numeric literal (decimal, or "0x"-prefixed
// hex, with surrounding whitespace ignored) is as good as a number. Reports
// false for any other value or a string that doesn't parse.
func (v Value) ToNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.n, true
	case KindString:
		return parseNumericLiteral(strings.TrimSpace(v.AsString().Data))
	}
	return 0, false
}

// parseNumericLiteral parses lit the same way the lexer/parser accept a
// numeric token: a decimal float, or a "0x"/"0X" hex integer (or hex float,
// when it carries a 'p' exponent or '.').
func parseNumericLiteral(lit string) (float64, bool) {
	if lit == "" {
		return 0, false
	}
	neg := false
	if lit[0] == '+' || lit[0] == '-' {
		neg = lit[0] == '-'
		lit = lit[1:]
	}
	var n float64
	var err error
	switch {
	case strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X"):
		if strings.ContainsAny(lit, "pP.") {
			n, err = strconv.ParseFloat(lit, 64)
		} else {
			var i int64
			i, err = strconv.ParseInt(lit[2:], 16, 64)
			n = float64(i)
		}
	default:
		n, err = strconv.ParseFloat(lit, 64)
	}
	if err != nil {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) && n < 1e15 && n > -1e15 {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%.14g", n)
}
