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

package vm

import (
	"errors"
	"testing"

	"github.com/probechain/go-probe/crypto/dilithium"
	"github.com/probechain/go-probe/lang/value"
)

func TestSHA3(t *testing.T) {
	s := NewState()
	msg := value.Str(s.Intern("hello"))
	instr := Encode(OpSHA3, 1, 0, 0)
	got, err := s.execCrypto(OpSHA3, []value.Value{msg}, instr)
	if err != nil {
		t.Fatalf("execCrypto SHA3: %v", err)
	}
	if got.AsString().Len() != 32 {
		t.Fatalf("digest length = %d, want 32", got.AsString().Len())
	}
}

func TestMLDSAVerifyRoundTrip(t *testing.T) {
	s := NewState()
	pub, priv, err := dilithium.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msg := []byte("rocket script payload")
	sig := dilithium.Sign(priv, msg)

	got, err := s.mldsaVerify(
		value.Str(s.Intern(string(msg))),
		value.Str(s.Intern(string(sig))),
		value.Str(s.Intern(string(dilithium.MarshalPublicKey(pub)))),
	)
	if err != nil {
		t.Fatalf("mldsaVerify: %v", err)
	}
	if !got.AsBool() {
		t.Fatalf("expected signature to verify")
	}
}

func TestFalcon512VerifyUnsupported(t *testing.T) {
	s := NewState()
	instr := Encode(OpFalcon512Verify, 0, 0, 0)
	_, err := s.execCrypto(OpFalcon512Verify, []value.Value{value.Nil}, instr)
	if !errors.Is(err, ErrUnsupportedOp) {
		t.Fatalf("err = %v, want ErrUnsupportedOp", err)
	}
}
