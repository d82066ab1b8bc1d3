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
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"github.com/probechain/go-probe/crypto/dilithium"
	"github.com/probechain/go-probe/lang/value"
	"golang.org/x/crypto/sha3"
)

// execCrypto dispatches the six native crypto opcodes. The teacher declares
// all six (opcodes.go / stdlib/crypto/crypto.go) but never supplies a real
// body for any of them; this implementation backs the four for which the
// retrieved dependency pack actually grounds a library, and reports
// ErrUnsupportedOp for the two that have none (Falcon-512, SLH-DSA).
func (s *State) execCrypto(op Opcode, regs []value.Value, instr uint32) (value.Value, error) {
	b := DecodeB(instr)
	c := DecodeC(instr)

	switch op {
	case OpSHA3:
		data := mustBytes(regs[b])
		sum := sha3.Sum256(data)
		return value.Str(s.Intern(string(sum[:]))), nil

	case OpSHAKE256:
		data := mustBytes(regs[b])
		outLen := int(regs[c].AsNumber())
		if outLen <= 0 {
			outLen = 32
		}
		out := make([]byte, outLen)
		sha3.ShakeSum256(out, data)
		return value.Str(s.Intern(string(out))), nil

	case OpMLDSAVerify:
		return s.mldsaVerify(regs[b], regs[c], regs[DecodeA(instr)])

	case OpSecp256k1Recover:
		return s.secp256k1Recover(regs[b], regs[c])

	case OpFalcon512Verify, OpSLHDSAVerify:
		return value.Nil, fmt.Errorf("%w: %v", ErrUnsupportedOp, op)
	}
	return value.Nil, fmt.Errorf("%w: %v", ErrInvalidOpcode, op)
}

func mustBytes(v value.Value) []byte {
	if v.IsString() {
		return []byte(v.AsString().Data)
	}
	return nil
}

// mldsaVerify implements OpMLDSAVerify over three byte-string register
// operands: execCrypto passes the message from R(B), the signature from
// R(C) and the public key from R(A).
func (s *State) mldsaVerify(msgV, sigV, pubV value.Value) (value.Value, error) {
	pubBytes := mustBytes(pubV)
	pub, err := dilithium.UnmarshalPublicKey(pubBytes)
	if err != nil {
		return value.False, nil
	}
	ok := dilithium.Verify(pub, mustBytes(msgV), mustBytes(sigV))
	return value.Bool(ok), nil
}

// secp256k1Recover implements OpSecp256k1Recover: hash and a 65-byte
// [R || S || V] signature in, a recovered 65-byte uncompressed public key
// (or nil on failure) out.
func (s *State) secp256k1Recover(hashV, sigV value.Value) (value.Value, error) {
	hash := mustBytes(hashV)
	sig := mustBytes(sigV)
	if len(sig) != 65 {
		return value.Nil, nil
	}
	// btcec.RecoverCompact expects [V || R || S]; the spec's operand order
	// is [R || S || V], matching the common recover-signature layout.
	compact := make([]byte, 65)
	compact[0] = sig[64] + 27
	copy(compact[1:], sig[:64])

	pub, _, err := btcec.RecoverCompact(btcec.S256(), compact, hash)
	if err != nil {
		return value.Nil, nil
	}
	return value.Str(s.Intern(string(pub.SerializeUncompressed()))), nil
}
