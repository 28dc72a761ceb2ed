package signtx_sdk

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// resolveMultisig fills Pubkeys from Nodes. Pubkeys supplied next to
// Nodes must agree with the derived keys.
func resolveMultisig(ms *MultisigRedeemScript) error {
	if len(ms.Nodes) == 0 {
		return nil
	}
	if len(ms.Nodes) > txscript.MaxPubKeysPerMultiSig {
		return dataError("Invalid multisig parameters")
	}
	pubkeys := make([][]byte, len(ms.Nodes))
	for i, node := range ms.Nodes {
		pub, err := node.derive(ms.AddressN)
		if err != nil {
			return dataError("Invalid multisig node")
		}
		pubkeys[i] = pub
	}
	if len(ms.Pubkeys) > 0 {
		if len(ms.Pubkeys) != len(pubkeys) {
			return dataError("Multisig pubkeys do not match nodes")
		}
		for i := range pubkeys {
			if !bytes.Equal(ms.Pubkeys[i], pubkeys[i]) {
				return dataError("Multisig pubkeys do not match nodes")
			}
		}
	}
	ms.Pubkeys = pubkeys
	return nil
}

func validateMultisig(ms *MultisigRedeemScript) error {
	n := len(ms.Pubkeys)
	if n == 0 || n > txscript.MaxPubKeysPerMultiSig {
		return dataError("Invalid multisig parameters")
	}
	if ms.M == 0 || int(ms.M) > n {
		return dataError("Invalid multisig parameters")
	}
	if len(ms.Signatures) > n {
		return dataError("Invalid multisig parameters")
	}
	for _, pub := range ms.Pubkeys {
		if len(pub) != btcec.PubKeyBytesLenCompressed {
			return dataError("Invalid multisig pubkey")
		}
		if _, err := btcec.ParsePubKey(pub); err != nil {
			return dataError("Invalid multisig pubkey")
		}
	}
	return nil
}

// MultisigPubkeyIndex returns the position of pubkey in the descriptor's
// key list. Signing with a key outside the list is refused.
func MultisigPubkeyIndex(ms *MultisigRedeemScript, pubkey []byte) (int, error) {
	for i, pub := range ms.Pubkeys {
		if bytes.Equal(pub, pubkey) {
			return i, nil
		}
	}
	return 0, processError(MsgPubkeyNotInMulti)
}

// multisigFingerprint identifies the key set and threshold of a
// descriptor independently of key order. Descriptors with account nodes
// are identified by the nodes, so receive and change addresses of one
// wallet share a fingerprint.
func multisigFingerprint(ms *MultisigRedeemScript) chainhash.Hash {
	h := sha256.New()
	writeUint32(h, ms.M)
	if len(ms.Nodes) > 0 {
		nodes := make([]HDNode, len(ms.Nodes))
		copy(nodes, ms.Nodes)
		sort.Slice(nodes, func(i, j int) bool {
			return bytes.Compare(nodes[i].PublicKey, nodes[j].PublicKey) < 0
		})
		h.Write([]byte{'N'})
		writeUint32(h, uint32(len(nodes)))
		for _, n := range nodes {
			writeVarBytes(h, n.ChainCode)
			writeVarBytes(h, n.PublicKey)
		}
		return txHash(h, false)
	}

	keys := make([][]byte, len(ms.Pubkeys))
	copy(keys, ms.Pubkeys)
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
	h.Write([]byte{'K'})
	writeUint32(h, uint32(len(keys)))
	for _, k := range keys {
		writeVarBytes(h, k)
	}
	return txHash(h, false)
}

func multisigAttribute(_ []uint32, ms *MultisigRedeemScript) string {
	if ms == nil {
		return ""
	}
	fp := multisigFingerprint(ms)
	return hex.EncodeToString(fp[:])
}

// MultisigFingerprint remembers the descriptor seen for every input during
// the first pass. A later request for the same index must present the
// same key set and threshold.
type MultisigFingerprint struct {
	perInput map[int]*chainhash.Hash
	common   *matchChecker
}

func NewMultisigFingerprint() *MultisigFingerprint {
	return &MultisigFingerprint{
		perInput: make(map[int]*chainhash.Hash),
		common:   newMatchChecker(multisigAttribute),
	}
}

func (m *MultisigFingerprint) Add(index int, txi *TxInput) error {
	if txi.Multisig != nil {
		fp := multisigFingerprint(txi.Multisig)
		m.perInput[index] = &fp
	} else {
		m.perInput[index] = nil
	}
	return m.common.addInput(txi.AddressN, txi.Multisig)
}

func (m *MultisigFingerprint) Check(index int, txi *TxInput) error {
	recorded, ok := m.perInput[index]
	if !ok {
		return errTxChanged()
	}
	switch {
	case recorded == nil && txi.Multisig == nil:
	case recorded == nil || txi.Multisig == nil:
		return errTxChanged()
	case *recorded != multisigFingerprint(txi.Multisig):
		return errTxChanged()
	}
	return m.common.checkInput(txi.AddressN, txi.Multisig)
}

// OutputMatches reports whether an output uses the same multisig setup as
// every input.
func (m *MultisigFingerprint) OutputMatches(txo *TxOutput) bool {
	return m.common.outputMatches(txo.AddressN, txo.Multisig)
}
