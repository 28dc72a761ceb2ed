package signtx_sdk

import (
	"encoding/binary"
	"hash"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// The writers below target bytes.Buffer and hash.Hash only, neither of
// which can fail, so write errors are not reported.

func writeUint32(w io.Writer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeUint64(w io.Writer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func writeVarInt(w io.Writer, v uint64) {
	_ = wire.WriteVarInt(w, 0, v)
}

func writeVarBytes(w io.Writer, b []byte) {
	_ = wire.WriteVarBytes(w, 0, b)
}

func writeTxInput(w io.Writer, txi *TxInput, scriptSig []byte) {
	w.Write(txi.PrevHash[:])
	writeUint32(w, txi.PrevIndex)
	writeVarBytes(w, scriptSig)
	writeUint32(w, txi.Sequence)
}

// writeTxInputCheck writes every field of an input that must stay the same
// across requests.
func writeTxInputCheck(w io.Writer, txi *TxInput) {
	w.Write(txi.PrevHash[:])
	writeUint32(w, txi.PrevIndex)
	writeUint32(w, uint32(txi.ScriptType))
	writeUint32(w, uint32(len(txi.AddressN)))
	for _, n := range txi.AddressN {
		writeUint32(w, n)
	}
	writeUint32(w, txi.Sequence)
	writeUint64(w, txi.Amount)
}

func writeTxOutput(w io.Writer, amount uint64, scriptPubKey []byte) {
	writeUint64(w, amount)
	writeVarBytes(w, scriptPubKey)
}

// txHash finishes a sha256 writer, optionally hashing a second time.
func txHash(h hash.Hash, double bool) chainhash.Hash {
	var out chainhash.Hash
	if double {
		return chainhash.HashH(h.Sum(nil))
	}
	copy(out[:], h.Sum(nil))
	return out
}
