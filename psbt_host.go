package signtx_sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"signtx-sdk/coins"
)

var ErrUnknownPrevTx = errors.New("unknown previous transaction")

type prevTxEntry struct {
	tx        *wire.MsgTx
	timestamp uint32
	extraData []byte
}

// PsbtHost serves a PSBT packet to a Signer. Inputs and outputs are
// translated once; every request returns a fresh copy.
type PsbtHost struct {
	// Timestamp is the header timestamp of the transaction being signed on
	// coins that carry one.
	Timestamp uint32

	packet  *psbt.Packet
	coin    *coins.CoinInfo
	params  *chaincfg.Params
	inputs    []*TxInput
	outputs   []*TxOutput
	prevTxs   map[chainhash.Hash]*prevTxEntry
	cosigners []HDNode
}

// NewPsbtHost translates packet for coin. fingerprint selects the BIP32
// derivations that belong to the signing keychain; zero accepts the first
// derivation of every input and output.
//
// cosigners are the account nodes of multisig wallets, the signer's own
// included. A multisig script whose keys all derive from them at the
// signer's address suffix is described by those nodes.
func NewPsbtHost(packet *psbt.Packet, coin *coins.CoinInfo, fingerprint uint32, cosigners ...HDNode) (*PsbtHost, error) {
	if err := packet.SanityCheck(); err != nil {
		return nil, err
	}
	params, err := coin.Params()
	if err != nil {
		return nil, err
	}
	h := &PsbtHost{
		packet:  packet,
		coin:    coin,
		params:  params,
		prevTxs:   make(map[chainhash.Hash]*prevTxEntry),
		cosigners: cosigners,
	}

	want := txscript.SigHashType(SighashType(coin))
	for i, txIn := range packet.UnsignedTx.TxIn {
		pIn := &packet.Inputs[i]
		if pIn.SighashType != 0 && pIn.SighashType != want {
			return nil, fmt.Errorf("input %d: sighash type %#x, %s signs with %#x",
				i, uint32(pIn.SighashType), coin.Name, uint32(want))
		}
		txi, err := h.translateInput(txIn, pIn, fingerprint)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		h.inputs = append(h.inputs, txi)

		if pIn.NonWitnessUtxo != nil {
			h.prevTxs[txIn.PreviousOutPoint.Hash] = &prevTxEntry{tx: pIn.NonWitnessUtxo}
		}
	}

	for i, txOut := range packet.UnsignedTx.TxOut {
		txo, err := h.translateOutput(txOut, &packet.Outputs[i], fingerprint)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		h.outputs = append(h.outputs, txo)
	}
	return h, nil
}

// SetPrevTxExtras attaches the fields a wire.MsgTx cannot carry to a
// previous transaction.
func (h *PsbtHost) SetPrevTxExtras(prevHash chainhash.Hash, timestamp uint32, extraData []byte) error {
	e, ok := h.prevTxs[prevHash]
	if !ok {
		return ErrUnknownPrevTx
	}
	e.timestamp = timestamp
	e.extraData = extraData
	return nil
}

// SignTx returns the header of the transaction in the packet.
func (h *PsbtHost) SignTx() *SignTx {
	tx := h.packet.UnsignedTx
	return &SignTx{
		Version:      uint32(tx.Version),
		LockTime:     tx.LockTime,
		Timestamp:    h.Timestamp,
		InputsCount:  len(tx.TxIn),
		OutputsCount: len(tx.TxOut),
	}
}

// PrevOutputFetcher returns the spent outputs known to the packet.
func (h *PsbtHost) PrevOutputFetcher() *PrevOutputFetcher {
	f := NewPrevOutputFetcher()
	for i, txIn := range h.packet.UnsignedTx.TxIn {
		if out := spentOutput(txIn, &h.packet.Inputs[i]); out != nil {
			f.AddPrevOut(txIn.PreviousOutPoint, out)
		}
	}
	return f
}

func (h *PsbtHost) RequestTxInput(ctx context.Context, index int) (*TxInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(h.inputs) {
		return nil, fmt.Errorf("input %d out of range", index)
	}
	return copyInput(h.inputs[index]), nil
}

func (h *PsbtHost) RequestTxOutput(ctx context.Context, index int) (*TxOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(h.outputs) {
		return nil, fmt.Errorf("output %d out of range", index)
	}
	o := *h.outputs[index]
	o.AddressN = append([]uint32(nil), o.AddressN...)
	o.Multisig = copyMultisig(o.Multisig)
	return &o, nil
}

func (h *PsbtHost) prevTx(prevHash chainhash.Hash) (*prevTxEntry, error) {
	e, ok := h.prevTxs[prevHash]
	if !ok {
		return nil, fmt.Errorf("%w %v", ErrUnknownPrevTx, prevHash)
	}
	return e, nil
}

func (h *PsbtHost) RequestPrevTxMeta(ctx context.Context, prevHash chainhash.Hash) (*PrevTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := h.prevTx(prevHash)
	if err != nil {
		return nil, err
	}
	return &PrevTx{
		Version:      uint32(e.tx.Version),
		LockTime:     e.tx.LockTime,
		Timestamp:    e.timestamp,
		InputsCount:  len(e.tx.TxIn),
		OutputsCount: len(e.tx.TxOut),
		ExtraDataLen: len(e.extraData),
	}, nil
}

func (h *PsbtHost) RequestPrevTxInput(ctx context.Context, prevHash chainhash.Hash, index int) (*TxInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := h.prevTx(prevHash)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(e.tx.TxIn) {
		return nil, fmt.Errorf("prev tx input %d out of range", index)
	}
	return prevTxInput(e.tx.TxIn[index]), nil
}

func (h *PsbtHost) RequestPrevTxOutput(ctx context.Context, prevHash chainhash.Hash, index int) (*PrevOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := h.prevTx(prevHash)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(e.tx.TxOut) {
		return nil, fmt.Errorf("prev tx output %d out of range", index)
	}
	out := e.tx.TxOut[index]
	return &PrevOutput{Amount: uint64(out.Value), ScriptPubKey: out.PkScript}, nil
}

func (h *PsbtHost) RequestPrevTxExtraData(ctx context.Context, prevHash chainhash.Hash, offset, size int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := h.prevTx(prevHash)
	if err != nil {
		return nil, err
	}
	if offset < 0 || size < 0 || offset > len(e.extraData) {
		return nil, fmt.Errorf("extra data range %d+%d out of bounds", offset, size)
	}
	end := offset + size
	if end > len(e.extraData) {
		end = len(e.extraData)
	}
	return e.extraData[offset:end], nil
}

func (h *PsbtHost) translateInput(txIn *wire.TxIn, pIn *psbt.PInput, fingerprint uint32) (*TxInput, error) {
	txi := &TxInput{
		PrevHash:   txIn.PreviousOutPoint.Hash,
		PrevIndex:  txIn.PreviousOutPoint.Index,
		Sequence:   txIn.Sequence,
		ScriptType: External,
	}
	if d := pickDerivation(pIn.Bip32Derivation, fingerprint); d != nil {
		txi.AddressN = append([]uint32(nil), d.Bip32Path...)
	}

	out := spentOutput(txIn, pIn)
	if out == nil {
		return nil, errors.New("missing utxo")
	}
	if out.Value < 0 {
		return nil, errors.New("negative utxo value")
	}
	txi.Amount = uint64(out.Value)

	switch txscript.GetScriptClass(out.PkScript) {
	case txscript.PubKeyHashTy:
		txi.ScriptType = SpendAddress
	case txscript.WitnessV0PubKeyHashTy:
		txi.ScriptType = SpendWitness
	case txscript.ScriptHashTy:
		switch txscript.GetScriptClass(pIn.RedeemScript) {
		case txscript.WitnessV0PubKeyHashTy:
			txi.ScriptType = SpendP2SHWitness
		case txscript.MultiSigTy:
			ms, err := h.multisigFromScript(pIn.RedeemScript, pIn.PartialSigs, txi.AddressN)
			if err != nil {
				return nil, err
			}
			txi.ScriptType = SpendMultisig
			txi.Multisig = ms
		}
	}
	return txi, nil
}

func (h *PsbtHost) translateOutput(txOut *wire.TxOut, pOut *psbt.POutput, fingerprint uint32) (*TxOutput, error) {
	if txOut.Value < 0 {
		return nil, errors.New("negative amount")
	}
	txo := &TxOutput{Amount: uint64(txOut.Value), ScriptType: PayToAddress}

	class := txscript.GetScriptClass(txOut.PkScript)
	if class == txscript.NullDataTy {
		data, err := nullData(txOut.PkScript)
		if err != nil {
			return nil, err
		}
		txo.ScriptType = PayToOpReturn
		txo.OpReturnData = data
		return txo, nil
	}

	if d := pickDerivation(pOut.Bip32Derivation, fingerprint); d != nil {
		switch class {
		case txscript.PubKeyHashTy:
			txo.AddressN = append([]uint32(nil), d.Bip32Path...)
			return txo, nil
		case txscript.WitnessV0PubKeyHashTy:
			txo.AddressN = append([]uint32(nil), d.Bip32Path...)
			txo.ScriptType = PayToWitness
			return txo, nil
		case txscript.ScriptHashTy:
			switch txscript.GetScriptClass(pOut.RedeemScript) {
			case txscript.WitnessV0PubKeyHashTy:
				txo.AddressN = append([]uint32(nil), d.Bip32Path...)
				txo.ScriptType = PayToP2SHWitness
				return txo, nil
			case txscript.MultiSigTy:
				ms, err := h.multisigFromScript(pOut.RedeemScript, nil, d.Bip32Path)
				if err != nil {
					return nil, err
				}
				txo.AddressN = append([]uint32(nil), d.Bip32Path...)
				txo.ScriptType = PayToMultisig
				txo.Multisig = ms
				return txo, nil
			}
		}
	}

	_, addrs, _, err := txscript.ExtractPkScriptAddrs(txOut.PkScript, h.params)
	if err != nil || len(addrs) != 1 {
		return nil, fmt.Errorf("unsupported output script %x", txOut.PkScript)
	}
	txo.Address = addrs[0].EncodeAddress()
	return txo, nil
}

// multisigFromScript reads the key set of a bare multisig redeem script
// and places known partial signatures at their key index. path is the
// signer's derivation for the script.
func (h *PsbtHost) multisigFromScript(redeem []byte, partial []*psbt.PartialSig, path []uint32) (*MultisigRedeemScript, error) {
	_, addrs, m, err := txscript.ExtractPkScriptAddrs(redeem, h.params)
	if err != nil {
		return nil, err
	}
	ms := &MultisigRedeemScript{M: uint32(m)}
	for _, a := range addrs {
		pk, ok := a.(*btcutil.AddressPubKey)
		if !ok {
			return nil, errors.New("multisig script without public keys")
		}
		ms.Pubkeys = append(ms.Pubkeys, pk.ScriptAddress())
	}
	if len(partial) > 0 {
		ms.Signatures = make([][]byte, len(ms.Pubkeys))
		for _, ps := range partial {
			for i, pub := range ms.Pubkeys {
				if bytes.Equal(pub, ps.PubKey) && len(ps.Signature) > 1 {
					// Drop the trailing sighash byte.
					ms.Signatures[i] = ps.Signature[:len(ps.Signature)-1]
				}
			}
		}
	}
	h.attachNodes(ms, path)
	return ms, nil
}

// attachNodes sets Nodes and AddressN when every key of ms derives from a
// cosigner node at the last BIP32WalletDepth levels of path.
func (h *PsbtHost) attachNodes(ms *MultisigRedeemScript, path []uint32) {
	if len(h.cosigners) == 0 || len(path) < BIP32WalletDepth {
		return
	}
	suffix := append([]uint32(nil), path[len(path)-BIP32WalletDepth:]...)
	derived := make([][]byte, len(h.cosigners))
	for i, node := range h.cosigners {
		pub, err := node.derive(suffix)
		if err != nil {
			return
		}
		derived[i] = pub
	}

	nodes := make([]HDNode, 0, len(ms.Pubkeys))
	for _, pub := range ms.Pubkeys {
		found := false
		for i, d := range derived {
			if bytes.Equal(d, pub) {
				nodes = append(nodes, h.cosigners[i])
				found = true
				break
			}
		}
		if !found {
			log.Debugf("Multisig key %x not derived from any cosigner", pub)
			return
		}
	}
	ms.Nodes = nodes
	ms.AddressN = suffix
}

func pickDerivation(ds []*psbt.Bip32Derivation, fingerprint uint32) *psbt.Bip32Derivation {
	for _, d := range ds {
		if fingerprint == 0 || d.MasterKeyFingerprint == fingerprint {
			return d
		}
	}
	return nil
}

func spentOutput(txIn *wire.TxIn, pIn *psbt.PInput) *wire.TxOut {
	if pIn.WitnessUtxo != nil {
		return pIn.WitnessUtxo
	}
	if pIn.NonWitnessUtxo != nil {
		idx := txIn.PreviousOutPoint.Index
		if int(idx) < len(pIn.NonWitnessUtxo.TxOut) {
			return pIn.NonWitnessUtxo.TxOut[idx]
		}
	}
	return nil
}

func nullData(pkScript []byte) ([]byte, error) {
	var data []byte
	tok := txscript.MakeScriptTokenizer(0, pkScript)
	for tok.Next() {
		if tok.Opcode() == txscript.OP_RETURN {
			continue
		}
		data = append(data, tok.Data()...)
	}
	if err := tok.Err(); err != nil {
		return nil, err
	}
	return data, nil
}

func prevTxInput(in *wire.TxIn) *TxInput {
	return &TxInput{
		PrevHash:  in.PreviousOutPoint.Hash,
		PrevIndex: in.PreviousOutPoint.Index,
		ScriptSig: in.SignatureScript,
		Sequence:  in.Sequence,
	}
}

func copyInput(in *TxInput) *TxInput {
	c := *in
	c.AddressN = append([]uint32(nil), in.AddressN...)
	c.Multisig = copyMultisig(in.Multisig)
	return &c
}

func copyMultisig(in *MultisigRedeemScript) *MultisigRedeemScript {
	if in == nil {
		return nil
	}
	ms := *in
	ms.Pubkeys = append([][]byte(nil), in.Pubkeys...)
	ms.Nodes = append([]HDNode(nil), in.Nodes...)
	ms.AddressN = append([]uint32(nil), in.AddressN...)
	ms.Signatures = append([][]byte(nil), in.Signatures...)
	return &ms
}
