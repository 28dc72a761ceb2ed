package signtx_sdk

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Host is the untrusted party that streams transaction data to the signer.
// Requests are issued one at a time and never overlap.
type Host interface {
	RequestTxInput(ctx context.Context, index int) (*TxInput, error)
	RequestTxOutput(ctx context.Context, index int) (*TxOutput, error)

	RequestPrevTxMeta(ctx context.Context, prevHash chainhash.Hash) (*PrevTx, error)
	RequestPrevTxInput(ctx context.Context, prevHash chainhash.Hash, index int) (*TxInput, error)
	RequestPrevTxOutput(ctx context.Context, prevHash chainhash.Hash, index int) (*PrevOutput, error)
	// RequestPrevTxExtraData returns at most size bytes of trailing
	// metadata starting at offset.
	RequestPrevTxExtraData(ctx context.Context, prevHash chainhash.Hash, offset, size int) ([]byte, error)
}

// ProgressListener is told about every signature as soon as it exists.
type ProgressListener interface {
	OnSignature(index int, signature []byte)
}

// ProgressFunc adapts a function to ProgressListener.
type ProgressFunc func(index int, signature []byte)

func (f ProgressFunc) OnSignature(index int, signature []byte) {
	f(index, signature)
}
