package signtx_sdk

import (
	"crypto/sha256"
	"hash"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Hash143 accumulates the transaction-wide digests of a BIP143 preimage
// while inputs and outputs stream past, so a signature hash never needs
// the whole transaction in memory.
type Hash143 struct {
	prevouts hash.Hash
	sequence hash.Hash
	outputs  hash.Hash
}

func NewHash143() *Hash143 {
	return &Hash143{
		prevouts: sha256.New(),
		sequence: sha256.New(),
		outputs:  sha256.New(),
	}
}

func (h *Hash143) AddInput(txi *TxInput) {
	h.prevouts.Write(txi.PrevHash[:])
	writeUint32(h.prevouts, txi.PrevIndex)
	writeUint32(h.sequence, txi.Sequence)
}

func (h *Hash143) AddOutput(amount uint64, scriptPubKey []byte) {
	writeTxOutput(h.outputs, amount, scriptPubKey)
}

func (h *Hash143) PrevoutsHash() chainhash.Hash { return txHash(h.prevouts, true) }
func (h *Hash143) SequenceHash() chainhash.Hash { return txHash(h.sequence, true) }
func (h *Hash143) OutputsHash() chainhash.Hash  { return txHash(h.outputs, true) }

// PreimageHash returns the digest signed for txi. pubkeyHash is the
// hash160 of the signing key and selects the script code of single-key
// inputs.
func (h *Hash143) PreimageHash(tx *SignTx, txi *TxInput, pubkeyHash []byte, sighashType uint32) (chainhash.Hash, error) {
	scriptCode, err := bip143ScriptCode(txi, pubkeyHash)
	if err != nil {
		return chainhash.Hash{}, err
	}

	prevouts := h.PrevoutsHash()
	sequence := h.SequenceHash()
	outputs := h.OutputsHash()

	p := sha256.New()
	writeUint32(p, tx.Version)
	p.Write(prevouts[:])
	p.Write(sequence[:])
	p.Write(txi.PrevHash[:])
	writeUint32(p, txi.PrevIndex)
	writeVarBytes(p, scriptCode)
	writeUint64(p, txi.Amount)
	writeUint32(p, txi.Sequence)
	p.Write(outputs[:])
	writeUint32(p, tx.LockTime)
	writeUint32(p, sighashType)
	return txHash(p, true), nil
}

func bip143ScriptCode(txi *TxInput, pubkeyHash []byte) ([]byte, error) {
	switch txi.ScriptType {
	case SpendAddress, SpendWitness, SpendP2SHWitness:
		return outputScriptP2PKH(pubkeyHash)
	case SpendMultisig:
		if txi.Multisig == nil {
			return nil, dataError("Multisig details required")
		}
		return multisigRedeemScript(txi.Multisig)
	}
	return nil, dataError("Unknown input script type for bip143 script code")
}
