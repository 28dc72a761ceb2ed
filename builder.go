package signtx_sdk

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"signtx-sdk/coins"
)

// Placeholder outpoint for packets whose inputs are filled in later.
const (
	OccupiedTxId    string = "0000000000000000000000000000000000000000000000000000000000000000"
	OccupiedTxIndex uint32 = 0
)

type Input struct {
	OutTxId  string `json:"out_tx_id"`
	OutIndex uint32 `json:"out_index"`
}

type Output struct {
	Address string `json:"address"`
	Script  string `json:"script"`
	Amount  uint64 `json:"amount"`
}

type UtxoType int

const (
	NonWitness UtxoType = 1
	Witness    UtxoType = 2
)

// InputUtxo describes the output spent by input Index. Non-witness utxos
// carry the whole previous transaction in hex.
type InputUtxo struct {
	UtxoType            UtxoType `json:"utxo_type"`
	NonWitnessUtxo      string   `json:"non_witness_utxo"`
	WitnessUtxoPkScript string   `json:"witness_utxo_pk_script"`
	WitnessUtxoAmount   uint64   `json:"witness_utxo_amount"`
	RedeemScript        string   `json:"redeem_script"`
	Index               int      `json:"index"`
}

// KeyOrigin ties a public key of an input or output to its derivation.
type KeyOrigin struct {
	Index       int    `json:"index"`
	PubKey      string `json:"pub_key"`
	Fingerprint uint32 `json:"fingerprint"`
	Path        string `json:"path"`
}

// PsbtBuilder assembles the PSBT packets that a PsbtHost serves.
type PsbtBuilder struct {
	Coin        *coins.CoinInfo
	NetParams   *chaincfg.Params
	PsbtUpdater *psbt.Updater
}

// Create new psbt builder
func CreatePsbtBuilder(coin *coins.CoinInfo, ins []Input, outs []Output, version int32, lockTime uint32) (*PsbtBuilder, error) {
	netParams, err := coin.Params()
	if err != nil {
		return nil, err
	}
	var (
		txIns      = make([]*wire.OutPoint, 0, len(ins))
		nSequences = make([]uint32, 0, len(ins))
	)
	for _, in := range ins {
		txHash, err := chainhash.NewHashFromStr(in.OutTxId)
		if err != nil {
			return nil, err
		}
		txIns = append(txIns, wire.NewOutPoint(txHash, in.OutIndex))
		nSequences = append(nSequences, wire.MaxTxInSequenceNum)
	}

	txOuts, err := buildTxOuts(netParams, outs)
	if err != nil {
		return nil, err
	}

	cPsbt, err := psbt.New(txIns, txOuts, version, lockTime, nSequences)
	if err != nil {
		return nil, err
	}
	psbtBuilder := &PsbtBuilder{Coin: coin, NetParams: netParams}
	psbtBuilder.PsbtUpdater, err = psbt.NewUpdater(cPsbt)
	if err != nil {
		return nil, err
	}
	return psbtBuilder, nil
}

// NewPsbtBuilder decodes a hex or base64 encoded packet.
func NewPsbtBuilder(coin *coins.CoinInfo, encoded string) (*PsbtBuilder, error) {
	netParams, err := coin.Params()
	if err != nil {
		return nil, err
	}
	encoded = strings.TrimSpace(encoded)

	var p *psbt.Packet
	if b, err := hex.DecodeString(encoded); err == nil {
		p, err = psbt.NewFromRawBytes(bytes.NewReader(b), false)
		if err != nil {
			return nil, err
		}
	} else {
		p, err = psbt.NewFromRawBytes(strings.NewReader(encoded), true)
		if err != nil {
			return nil, err
		}
	}

	psbtBuilder := &PsbtBuilder{Coin: coin, NetParams: netParams}
	psbtBuilder.PsbtUpdater, err = psbt.NewUpdater(p)
	if err != nil {
		return nil, err
	}
	return psbtBuilder, nil
}

func buildTxOuts(netParams *chaincfg.Params, outs []Output) ([]*wire.TxOut, error) {
	txOuts := make([]*wire.TxOut, 0, len(outs))
	for _, out := range outs {
		var pkScript []byte
		if out.Script != "" {
			scriptByte, err := hex.DecodeString(out.Script)
			if err != nil {
				return nil, err
			}
			pkScript = scriptByte
		} else {
			address, err := btcutil.DecodeAddress(out.Address, netParams)
			if err != nil {
				return nil, err
			}
			pkScript, err = txscript.PayToAddrScript(address)
			if err != nil {
				return nil, err
			}
		}
		txOuts = append(txOuts, wire.NewTxOut(int64(out.Amount), pkScript))
	}
	return txOuts, nil
}

// UpdateInputUtxos attaches spent outputs and the coin's sighash type.
func (s *PsbtBuilder) UpdateInputUtxos(utxos []InputUtxo) error {
	sighashType := txscript.SigHashType(SighashType(s.Coin))
	for _, v := range utxos {
		switch v.UtxoType {
		case NonWitness:
			tx, err := DecodeMsgTx(v.NonWitnessUtxo)
			if err != nil {
				return err
			}
			if err := s.PsbtUpdater.AddInNonWitnessUtxo(tx, v.Index); err != nil {
				return err
			}
		case Witness:
			pkScript, err := hex.DecodeString(v.WitnessUtxoPkScript)
			if err != nil {
				return err
			}
			txOut := wire.TxOut{Value: int64(v.WitnessUtxoAmount), PkScript: pkScript}
			if err := s.PsbtUpdater.AddInWitnessUtxo(&txOut, v.Index); err != nil {
				return err
			}
		default:
			return fmt.Errorf("Index-[%d] unknown utxo type %d", v.Index, v.UtxoType)
		}

		if v.RedeemScript != "" {
			redeem, err := hex.DecodeString(v.RedeemScript)
			if err != nil {
				return err
			}
			if err := s.PsbtUpdater.AddInRedeemScript(redeem, v.Index); err != nil {
				return err
			}
		}
		if err := s.PsbtUpdater.AddInSighashType(sighashType, v.Index); err != nil {
			return err
		}
	}
	return nil
}

// AddInputOrigins records which keychain key spends each input.
func (s *PsbtBuilder) AddInputOrigins(origins []KeyOrigin) error {
	for _, o := range origins {
		pub, path, err := o.decode()
		if err != nil {
			return err
		}
		if err := s.PsbtUpdater.AddInBip32Derivation(o.Fingerprint, path, pub, o.Index); err != nil {
			return fmt.Errorf("Index-[%d] %w", o.Index, err)
		}
	}
	return nil
}

// AddOutputOrigins marks outputs that pay back to the keychain.
func (s *PsbtBuilder) AddOutputOrigins(origins []KeyOrigin) error {
	for _, o := range origins {
		pub, path, err := o.decode()
		if err != nil {
			return err
		}
		if err := s.PsbtUpdater.AddOutBip32Derivation(o.Fingerprint, path, pub, o.Index); err != nil {
			return fmt.Errorf("Index-[%d] %w", o.Index, err)
		}
	}
	return nil
}

// AddOutputRedeemScript sets the redeem script of a p2sh change output.
func (s *PsbtBuilder) AddOutputRedeemScript(redeemHex string, index int) error {
	redeem, err := hex.DecodeString(redeemHex)
	if err != nil {
		return err
	}
	return s.PsbtUpdater.AddOutRedeemScript(redeem, index)
}

func (o KeyOrigin) decode() ([]byte, []uint32, error) {
	pub, err := hex.DecodeString(o.PubKey)
	if err != nil {
		return nil, nil, err
	}
	if _, err := btcec.ParsePubKey(pub); err != nil {
		return nil, nil, err
	}
	path, err := ParsePath(o.Path)
	if err != nil {
		return nil, nil, err
	}
	return pub, path, nil
}

func (s *PsbtBuilder) AddOutputs(outs []Output) error {
	txOuts, err := buildTxOuts(s.NetParams, outs)
	if err != nil {
		return err
	}
	for _, out := range txOuts {
		s.PsbtUpdater.Upsbt.UnsignedTx.AddTxOut(out)
		s.PsbtUpdater.Upsbt.Outputs = append(s.PsbtUpdater.Upsbt.Outputs, psbt.POutput{})
	}
	return nil
}

func (s *PsbtBuilder) Packet() *psbt.Packet {
	return s.PsbtUpdater.Upsbt
}

func (s *PsbtBuilder) GetInputs() []*wire.TxIn {
	return s.PsbtUpdater.Upsbt.UnsignedTx.TxIn
}

func (s *PsbtBuilder) GetOutputs() []*wire.TxOut {
	return s.PsbtUpdater.Upsbt.UnsignedTx.TxOut
}

func (s *PsbtBuilder) ToString() (string, error) {
	var b bytes.Buffer
	err := s.PsbtUpdater.Upsbt.Serialize(&b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b.Bytes()), nil
}

func (s *PsbtBuilder) ToBase64() (string, error) {
	var b bytes.Buffer
	if err := s.PsbtUpdater.Upsbt.Serialize(&b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b.Bytes()), nil
}

// DecodeMsgTx parses a hex encoded transaction.
func DecodeMsgTx(rawHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}

// PrevTxID is the id a coin assigns to tx. It differs from tx.TxHash on
// coins with a header timestamp or trailing extra data.
func PrevTxID(coin *coins.CoinInfo, tx *wire.MsgTx, timestamp uint32, extraData []byte) chainhash.Hash {
	var b bytes.Buffer
	writeTxHeader(&b, coin, uint32(tx.Version), timestamp, false)
	writeVarInt(&b, uint64(len(tx.TxIn)))
	for _, in := range tx.TxIn {
		txi := prevTxInput(in)
		writeTxInput(&b, txi, txi.ScriptSig)
	}
	writeVarInt(&b, uint64(len(tx.TxOut)))
	for _, out := range tx.TxOut {
		writeTxOutput(&b, uint64(out.Value), out.PkScript)
	}
	writeUint32(&b, tx.LockTime)
	if coin.ExtraData {
		b.Write(extraData)
	}
	return chainhash.DoubleHashH(b.Bytes())
}
