package signtx_sdk

import (
	"context"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"signtx-sdk/coins"
)

// This file holds the per-coin decision points. Each one reads the
// capability flags of the coin; nothing here keeps state.

// selectSigningPath routes an input by script type and coin flags. It runs
// before the input touches any session state.
func selectSigningPath(coin *coins.CoinInfo, scriptType InputScriptType) (signingPath, error) {
	switch scriptType {
	case SpendWitness, SpendP2SHWitness:
		if !coin.Segwit {
			return 0, dataError(MsgSegwitDisabled)
		}
		return pathSegwit, nil
	case SpendAddress, SpendMultisig:
		if coin.ForceBip143 {
			return pathBip143, nil
		}
		return pathLegacy, nil
	}
	return 0, dataError("Wrong input script type")
}

func isSegwitScriptType(t InputScriptType) bool {
	return t == SpendWitness || t == SpendP2SHWitness
}

// SighashType is the hash type committed to by every signature on coin.
// Coins with a fork id fold it into the upper bits together with the
// FORKID marker, which makes signatures invalid on other forks.
func SighashType(coin *coins.CoinInfo) uint32 {
	hashType := SighashAll
	if coin.ForkID != nil {
		hashType |= uint32(*coin.ForkID)<<8 | SighashForkID
	}
	return hashType
}

// writeTxHeader writes version, the optional timestamp and, for
// transactions with witness data, the segwit marker and flag.
func writeTxHeader(w io.Writer, coin *coins.CoinInfo, version, timestamp uint32, hasSegwit bool) {
	writeUint32(w, version)
	if coin.Timestamp {
		writeUint32(w, timestamp)
	}
	if hasSegwit {
		writeVarInt(w, 0x00)
		writeVarInt(w, 0x01)
	}
}

// writePrevTxFooter writes the lock time of a previous transaction followed
// by its extra data, which is fetched in bounded chunks.
func (sg *Signer) writePrevTxFooter(ctx context.Context, w io.Writer, tx *PrevTx, prevHash chainhash.Hash) error {
	writeUint32(w, tx.LockTime)

	if !sg.coin.ExtraData {
		return nil
	}
	for ofs := 0; ofs < tx.ExtraDataLen; {
		size := tx.ExtraDataLen - ofs
		if size > ExtraDataChunkSize {
			size = ExtraDataChunkSize
		}
		data, err := sg.host.RequestPrevTxExtraData(ctx, prevHash, ofs, size)
		if err != nil {
			return fmt.Errorf("request extra data at %d: %w", ofs, err)
		}
		if len(data) == 0 || len(data) > size {
			return dataError("Invalid extra data chunk")
		}
		w.Write(data)
		ofs += len(data)
	}
	return nil
}

// onNegativeFee decides whether outputs may exceed inputs. Some coins pay
// rewards through transactions whose apparent fee is negative.
func onNegativeFee(coin *coins.CoinInfo) error {
	if coin.NegativeFee {
		return nil
	}
	return &SigningError{Kind: NotEnoughFunds, Message: "Not enough funds"}
}
