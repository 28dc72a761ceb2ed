package signtx_sdk

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

func outputScriptP2PKH(pubkeyHash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pubkeyHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

func outputScriptP2SH(scriptHash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(scriptHash).
		AddOp(txscript.OP_EQUAL).
		Script()
}

func outputScriptNativeP2WPKH(pubkeyHash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(pubkeyHash).
		Script()
}

func outputScriptP2WPKHInP2SH(pubkeyHash []byte) ([]byte, error) {
	program, err := outputScriptNativeP2WPKH(pubkeyHash)
	if err != nil {
		return nil, err
	}
	return outputScriptP2SH(btcutil.Hash160(program))
}

// multisigRedeemScript builds OP_m <pubkeys...> OP_n OP_CHECKMULTISIG.
func multisigRedeemScript(ms *MultisigRedeemScript) ([]byte, error) {
	if err := validateMultisig(ms); err != nil {
		return nil, err
	}
	keys := make([]*btcutil.AddressPubKey, len(ms.Pubkeys))
	for i, pub := range ms.Pubkeys {
		// The network only matters for address encoding, not for the script.
		k, err := btcutil.NewAddressPubKey(pub, &chaincfg.MainNetParams)
		if err != nil {
			return nil, dataError("Invalid multisig pubkey")
		}
		keys[i] = k
	}
	return txscript.MultiSigScript(keys, int(ms.M))
}

func inputScriptP2PKH(sig, pubkey []byte, hashType byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(appendHashType(sig, hashType)).
		AddData(pubkey).
		Script()
}

func inputScriptP2WPKHInP2SH(pubkeyHash []byte) ([]byte, error) {
	program, err := outputScriptNativeP2WPKH(pubkeyHash)
	if err != nil {
		return nil, err
	}
	return txscript.NewScriptBuilder().AddData(program).Script()
}

// inputScriptMultisig pushes OP_0, the available signatures in key order
// and the redeem script.
func inputScriptMultisig(sigs [][]byte, redeemScript []byte, hashType byte) ([]byte, error) {
	b := txscript.NewScriptBuilder().AddOp(txscript.OP_0)
	for _, sig := range sigs {
		if len(sig) == 0 {
			continue
		}
		b.AddData(appendHashType(sig, hashType))
	}
	return b.AddData(redeemScript).Script()
}

// witnessP2WPKH serializes the two-item witness stack of a p2wpkh spend.
func witnessP2WPKH(sig, pubkey []byte, hashType byte) []byte {
	var w bytes.Buffer
	writeVarInt(&w, 2)
	writeVarBytes(&w, appendHashType(sig, hashType))
	writeVarBytes(&w, pubkey)
	return w.Bytes()
}

func appendHashType(sig []byte, hashType byte) []byte {
	out := make([]byte, 0, len(sig)+1)
	out = append(out, sig...)
	return append(out, hashType)
}
