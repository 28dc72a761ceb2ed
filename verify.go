package signtx_sdk

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"signtx-sdk/coins"
)

// PrevOutputFetcher serves spent outputs to the script engine.
type PrevOutputFetcher struct {
	outs map[wire.OutPoint]*wire.TxOut
}

func NewPrevOutputFetcher() *PrevOutputFetcher {
	return &PrevOutputFetcher{outs: make(map[wire.OutPoint]*wire.TxOut)}
}

func (f *PrevOutputFetcher) AddPrevOut(op wire.OutPoint, out *wire.TxOut) {
	f.outs[op] = out
}

func (f *PrevOutputFetcher) FetchPrevOutput(op wire.OutPoint) *wire.TxOut {
	return f.outs[op]
}

// VerifyTransaction runs every input of a signed transaction through the
// script engine. Coins whose serialization or sighash differ from bitcoin
// cannot be checked this way.
func VerifyTransaction(coin *coins.CoinInfo, raw []byte, fetcher *PrevOutputFetcher) error {
	if coin.HasForkID() || coin.Timestamp {
		return fmt.Errorf("script verification is not available for %s", coin.Name)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("decode signed tx: %w", err)
	}

	for i, txIn := range tx.TxIn {
		if fetcher.FetchPrevOutput(txIn.PreviousOutPoint) == nil {
			return fmt.Errorf("input %d: missing previous output", i)
		}
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, txIn := range tx.TxIn {
		prevOut := fetcher.FetchPrevOutput(txIn.PreviousOutPoint)
		vm, err := txscript.NewEngine(prevOut.PkScript, tx, i,
			txscript.StandardVerifyFlags, nil, sigHashes, prevOut.Value, fetcher)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if err := vm.Execute(); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}
	return nil
}
