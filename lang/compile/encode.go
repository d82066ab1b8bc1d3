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

package compile

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/probechain/go-probe/lang/value"
)

// protoGob is a gob-friendly mirror of value.Prototype: Value's unexported
// fields aren't gob-encodable directly, and a parser-time constant pool only
// ever holds nil/bool/number/string (functions are nested Protos, never
// constants), so constGob covers every case that needs persisting.
type protoGob struct {
	Source      string
	LineDefined int
	NumParams   int
	IsVararg    bool
	NumRegs     int
	Code        []uint32
	Lines       []int32
	Constants   []constGob
	Upvals      []value.UpvalDesc
	Protos      []*protoGob
}

type constGob struct {
	Kind byte // 0 nil, 1 false, 2 true, 3 number, 4 string
	Num  float64
	Str  string
}

func toConstGob(v value.Value) (constGob, error) {
	switch v.Kind() {
	case value.KindNil:
		return constGob{Kind: 0}, nil
	case value.KindBoolean:
		if v.Truthy() {
			return constGob{Kind: 2}, nil
		}
		return constGob{Kind: 1}, nil
	case value.KindNumber:
		return constGob{Kind: 3, Num: v.AsNumber()}, nil
	case value.KindString:
		return constGob{Kind: 4, Str: v.AsString().Data}, nil
	default:
		return constGob{}, fmt.Errorf("compile: constant of kind %s cannot be cached", v.Kind())
	}
}

func fromConstGob(c constGob) value.Value {
	switch c.Kind {
	case 1:
		return value.False
	case 2:
		return value.True
	case 3:
		return value.Number(c.Num)
	case 4:
		return value.Str(value.NewUnmanagedString(c.Str))
	default:
		return value.Nil
	}
}

func toProtoGob(p *value.Prototype) (*protoGob, error) {
	g := &protoGob{
		Source:      p.Source,
		LineDefined: p.LineDefined,
		NumParams:   p.NumParams,
		IsVararg:    p.IsVararg,
		NumRegs:     p.NumRegs,
		Code:        p.Code,
		Lines:       p.Lines,
		Upvals:      p.Upvals,
	}
	for _, k := range p.Constants {
		cg, err := toConstGob(k)
		if err != nil {
			return nil, err
		}
		g.Constants = append(g.Constants, cg)
	}
	for _, sub := range p.Protos {
		sg, err := toProtoGob(sub)
		if err != nil {
			return nil, err
		}
		g.Protos = append(g.Protos, sg)
	}
	return g, nil
}

func fromProtoGob(g *protoGob) *value.Prototype {
	p := &value.Prototype{
		Source:      g.Source,
		LineDefined: g.LineDefined,
		NumParams:   g.NumParams,
		IsVararg:    g.IsVararg,
		NumRegs:     g.NumRegs,
		Code:        g.Code,
		Lines:       g.Lines,
		Upvals:      g.Upvals,
	}
	for _, cg := range g.Constants {
		p.Constants = append(p.Constants, fromConstGob(cg))
	}
	for _, sg := range g.Protos {
		p.Protos = append(p.Protos, fromProtoGob(sg))
	}
	return p
}

// encodeProto serializes proto for the on-disk cache.
func encodeProto(proto *value.Prototype) ([]byte, error) {
	g, err := toProtoGob(proto)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, fmt.Errorf("compile: encode prototype: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeProto deserializes bytes previously produced by encodeProto.
func decodeProto(data []byte) (*value.Prototype, error) {
	var g protoGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return nil, fmt.Errorf("compile: decode prototype: %w", err)
	}
	return fromProtoGob(&g), nil
}
