package signtx_sdk

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// HDNode is a cosigner's account-level extended public key.
type HDNode struct {
	PublicKey []byte
	ChainCode []byte
}

// MultisigRedeemScript is an m-of-n key set. Pubkeys keep the order of the
// redeem script; Signatures, when present, hold co-signer DER signatures
// at the index of the key that produced them.
//
// When Nodes is set the key set is identified by the account nodes and
// Pubkeys are derived from them at AddressN, the non-hardened suffix
// shared by every cosigner.
type MultisigRedeemScript struct {
	Pubkeys    [][]byte
	Nodes      []HDNode
	AddressN   []uint32
	Signatures [][]byte
	M          uint32
}

// TxInput is one input as supplied by the host. Every request yields a
// fresh value; two requests for the same index are never assumed equal.
type TxInput struct {
	AddressN   []uint32
	PrevHash   chainhash.Hash
	PrevIndex  uint32
	ScriptSig  []byte
	Sequence   uint32
	ScriptType InputScriptType
	Multisig   *MultisigRedeemScript
	Amount     uint64
}

// TxOutput is an output of the transaction being signed.
type TxOutput struct {
	Address      string
	AddressN     []uint32
	Amount       uint64
	ScriptType   OutputScriptType
	Multisig     *MultisigRedeemScript
	OpReturnData []byte
}

// PrevOutput is an output of a previous transaction in binary form.
type PrevOutput struct {
	Amount       uint64
	ScriptPubKey []byte
}

// SignTx carries the header fields of the transaction being signed.
type SignTx struct {
	Version      uint32
	LockTime     uint32
	Timestamp    uint32
	InputsCount  int
	OutputsCount int
}

// PrevTx carries the header fields of a previous transaction.
type PrevTx struct {
	Version      uint32
	LockTime     uint32
	Timestamp    uint32
	InputsCount  int
	OutputsCount int
	ExtraDataLen int
}
