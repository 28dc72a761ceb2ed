package signtx_sdk

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"signtx-sdk/coins"
)

type spend struct {
	input  Input
	utxo   InputUtxo
	origin KeyOrigin
	prev   *wire.MsgTx
	pub    []byte
}

// legacySpend funds the key at path with a p2pkh output of a previous
// transaction.
func legacySpend(t *testing.T, kc *HDKeychain, index int, seed byte, path string, amount int64) spend {
	t.Helper()
	pub := derivePub(t, kc, path)
	prev := fundingTx(seed, p2pkhScript(t, pub), amount)
	return spend{
		input:  Input{OutTxId: prev.TxHash().String(), OutIndex: 0},
		utxo:   InputUtxo{UtxoType: NonWitness, NonWitnessUtxo: txHex(t, prev), Index: index},
		origin: KeyOrigin{Index: index, PubKey: hex.EncodeToString(pub), Fingerprint: kc.Fingerprint(), Path: path},
		prev:   prev,
		pub:    pub,
	}
}

// witnessSpend funds the key at path with a p2wpkh output, nested in p2sh
// when nested is set.
func witnessSpend(t *testing.T, kc *HDKeychain, index int, seed byte, path string, amount uint64, nested bool) spend {
	t.Helper()
	pub := derivePub(t, kc, path)
	pkScript := p2wpkhScript(t, pub)
	utxo := InputUtxo{UtxoType: Witness, WitnessUtxoAmount: amount, Index: index}
	if nested {
		p2sh, err := outputScriptP2SH(btcutil.Hash160(pkScript))
		require.NoError(t, err)
		utxo.RedeemScript = hex.EncodeToString(pkScript)
		pkScript = p2sh
	}
	utxo.WitnessUtxoPkScript = hex.EncodeToString(pkScript)
	return spend{
		input:  Input{OutTxId: chainhash.HashH([]byte{seed, 0x77}).String(), OutIndex: uint32(seed)},
		utxo:   utxo,
		origin: KeyOrigin{Index: index, PubKey: hex.EncodeToString(pub), Fingerprint: kc.Fingerprint(), Path: path},
		pub:    pub,
	}
}

func buildPsbt(t *testing.T, coin *coins.CoinInfo, spends []spend, outs []Output) *PsbtBuilder {
	t.Helper()
	var (
		ins     []Input
		utxos   []InputUtxo
		origins []KeyOrigin
	)
	for _, s := range spends {
		ins = append(ins, s.input)
		utxos = append(utxos, s.utxo)
		origins = append(origins, s.origin)
	}
	b, err := CreatePsbtBuilder(coin, ins, outs, 2, 0)
	require.NoError(t, err)
	require.NoError(t, b.UpdateInputUtxos(utxos))
	require.NoError(t, b.AddInputOrigins(origins))
	return b
}

func decodeSigned(t *testing.T, raw []byte) *wire.MsgTx {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	require.NoError(t, tx.Deserialize(bytes.NewReader(raw)))
	return tx
}

func requireSigningError(t *testing.T, err error, kind FailureKind, msg string) {
	t.Helper()
	var se *SigningError
	require.ErrorAs(t, err, &se)
	require.Equal(t, kind, se.Kind)
	require.Equal(t, msg, se.Message)
}

func bcashFixture(t *testing.T) (*coins.CoinInfo, *HDKeychain, *PsbtBuilder, *PsbtHost, spend) {
	t.Helper()
	coin := mustCoin(t, "Bcash")
	kc := testKeychain(t)
	s := legacySpend(t, kc, 0, 0x01, "m/44'/145'/0'/0/0", 5000000)
	b := buildPsbt(t, coin, []spend{s}, []Output{{Address: destAddress(t, coin), Amount: 4990000}})
	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)
	return coin, kc, b, host, s
}

func TestSignBcashForkID(t *testing.T) {
	coin, kc, b, host, s := bcashFixture(t)
	rec := &signatureRecorder{}

	res, err := newTestSigner(t, coin, kc, host, rec).SignTransaction(context.Background(), host.SignTx())
	require.NoError(t, err)
	require.Equal(t, uint64(5000000), res.TotalIn)
	require.Equal(t, uint64(4990000), res.TotalOut)
	require.Equal(t, int64(10000), res.Fee)
	require.Equal(t, []int{0}, rec.indexes)

	tx := decodeSigned(t, res.Serialized)
	require.False(t, tx.HasWitness())
	require.Equal(t, b.Packet().UnsignedTx.TxIn[0].PreviousOutPoint, tx.TxIn[0].PreviousOutPoint)

	pushes := scriptPushes(t, tx.TxIn[0].SignatureScript)
	require.Len(t, pushes, 2)
	require.Equal(t, s.pub, pushes[1])
	sigWithType := pushes[0]
	require.Equal(t, byte(0x41), sigWithType[len(sigWithType)-1])
	require.Equal(t, res.Signatures[0], sigWithType[:len(sigWithType)-1])

	unsigned := b.Packet().UnsignedTx
	sigHashes := txscript.NewTxSigHashes(unsigned, host.PrevOutputFetcher())
	digest, err := txscript.CalcWitnessSigHash(p2pkhScript(t, s.pub), sigHashes,
		txscript.SigHashType(0x41), unsigned, 0, 5000000)
	require.NoError(t, err)

	sig, err := ecdsa.ParseDERSignature(res.Signatures[0])
	require.NoError(t, err)
	pk, err := btcec.ParsePubKey(s.pub)
	require.NoError(t, err)
	require.True(t, sig.Verify(digest, pk))

	require.Error(t, VerifyTransaction(coin, res.Serialized, host.PrevOutputFetcher()))
}

func TestSignBcashTamperedAmount(t *testing.T) {
	coin, kc, _, host, _ := bcashFixture(t)
	rec := &signatureRecorder{}
	tampered := newTamperHost(host, 0, func(txi *TxInput) { txi.Amount++ })

	res, err := newTestSigner(t, coin, kc, tampered, rec).SignTransaction(context.Background(), host.SignTx())
	require.Nil(t, res)
	requireSigningError(t, err, ProcessError, MsgTxChanged)
	require.Empty(t, rec.indexes)
	require.Equal(t, 2, tampered.seen[0])
}

func TestSignTestnetMixedInputs(t *testing.T) {
	coin := mustCoin(t, "Testnet")
	params, err := coin.Params()
	require.NoError(t, err)
	kc := testKeychain(t)

	spends := []spend{
		legacySpend(t, kc, 0, 0x01, "m/44'/1'/0'/0/0", 3000000),
		witnessSpend(t, kc, 1, 0x02, "m/44'/1'/0'/0/1", 2000000, false),
		witnessSpend(t, kc, 2, 0x03, "m/44'/1'/0'/0/2", 1000000, true),
	}
	changePub := derivePub(t, kc, "m/44'/1'/0'/1/0")
	changeAddr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(changePub), params)
	require.NoError(t, err)

	b := buildPsbt(t, coin, spends, []Output{
		{Address: destAddress(t, coin), Amount: 5000000},
		{Address: changeAddr.EncodeAddress(), Amount: 990000},
	})
	require.NoError(t, b.AddOutputOrigins([]KeyOrigin{
		{Index: 1, PubKey: hex.EncodeToString(changePub), Fingerprint: kc.Fingerprint(), Path: "m/44'/1'/0'/1/0"},
	}))
	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)

	rec := &signatureRecorder{}
	res, err := newTestSigner(t, coin, kc, host, rec).SignTransaction(context.Background(), host.SignTx())
	require.NoError(t, err)
	require.Equal(t, uint64(6000000), res.TotalIn)
	require.Equal(t, uint64(990000), res.ChangeOut)
	require.Equal(t, int64(10000), res.Fee)
	require.Equal(t, []int{0, 1, 2}, rec.indexes)

	tx := decodeSigned(t, res.Serialized)
	require.True(t, tx.HasWitness())
	require.Empty(t, tx.TxIn[0].Witness)
	require.NotEmpty(t, tx.TxIn[0].SignatureScript)
	require.Empty(t, tx.TxIn[1].SignatureScript)
	require.Len(t, tx.TxIn[1].Witness, 2)
	require.NotEmpty(t, tx.TxIn[2].SignatureScript)
	require.Len(t, tx.TxIn[2].Witness, 2)
	require.Equal(t, spends[2].pub, []byte(tx.TxIn[2].Witness[1]))
	for i, in := range b.GetInputs() {
		require.Equal(t, in.PreviousOutPoint, tx.TxIn[i].PreviousOutPoint)
	}

	require.NoError(t, VerifyTransaction(coin, res.Serialized, host.PrevOutputFetcher()))
}

func TestSignLegacyTamperedSequence(t *testing.T) {
	coin := mustCoin(t, "Testnet")
	kc := testKeychain(t)
	s := legacySpend(t, kc, 0, 0x01, "m/44'/1'/0'/0/0", 100000)
	b := buildPsbt(t, coin, []spend{s}, []Output{{Address: destAddress(t, coin), Amount: 90000}})
	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)

	tampered := newTamperHost(host, 0, func(txi *TxInput) { txi.Sequence-- })
	_, err = newTestSigner(t, coin, kc, tampered, nil).SignTransaction(context.Background(), host.SignTx())
	requireSigningError(t, err, ProcessError, MsgTxChanged)
}

func TestSignLegacyInvalidPrevTx(t *testing.T) {
	coin := mustCoin(t, "Testnet")
	kc := testKeychain(t)
	s := legacySpend(t, kc, 0, 0x01, "m/44'/1'/0'/0/0", 100000)
	b := buildPsbt(t, coin, []spend{s}, []Output{{Address: destAddress(t, coin), Amount: 90000}})

	// The spent output now claims more value than the transaction it
	// was committed with.
	b.Packet().Inputs[0].NonWitnessUtxo.TxOut[0].Value = 200000
	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)

	_, err = newTestSigner(t, coin, kc, host, nil).SignTransaction(context.Background(), host.SignTx())
	requireSigningError(t, err, ProcessError, "Encountered invalid prev_hash")
}

func multisigFixture(t *testing.T, coin *coins.CoinInfo, kc *HDKeychain, ms *MultisigRedeemScript, amount int64) (*PsbtBuilder, []byte) {
	t.Helper()
	redeem, err := multisigRedeemScript(ms)
	require.NoError(t, err)
	pkScript, err := outputScriptP2SH(btcutil.Hash160(redeem))
	require.NoError(t, err)

	prev := fundingTx(0x05, pkScript, amount)
	path := "m/48'/1'/0'/0/0"
	pub := derivePub(t, kc, path)
	b, err := CreatePsbtBuilder(coin, []Input{{OutTxId: prev.TxHash().String()}},
		[]Output{{Address: destAddress(t, coin), Amount: uint64(amount) - 1000}}, 2, 0)
	require.NoError(t, err)
	require.NoError(t, b.UpdateInputUtxos([]InputUtxo{
		{UtxoType: NonWitness, NonWitnessUtxo: txHex(t, prev), RedeemScript: hex.EncodeToString(redeem), Index: 0},
	}))
	require.NoError(t, b.AddInputOrigins([]KeyOrigin{
		{Index: 0, PubKey: hex.EncodeToString(pub), Fingerprint: kc.Fingerprint(), Path: path},
	}))
	return b, redeem
}

func TestSignMultisigWithCosigner(t *testing.T) {
	coin := mustCoin(t, "Testnet")
	kc := testKeychain(t)
	pub := derivePub(t, kc, "m/48'/1'/0'/0/0")
	cosignerKey, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{0x51}, 32))
	cosigner := cosignerKey.PubKey().SerializeCompressed()

	ms := &MultisigRedeemScript{Pubkeys: [][]byte{pub, cosigner}, M: 2}
	b, redeem := multisigFixture(t, coin, kc, ms, 500000)

	cosig, err := txscript.RawTxInSignature(b.Packet().UnsignedTx, 0, redeem, txscript.SigHashAll, cosignerKey)
	require.NoError(t, err)
	b.Packet().Inputs[0].PartialSigs = []*psbt.PartialSig{{PubKey: cosigner, Signature: cosig}}

	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)
	res, err := newTestSigner(t, coin, kc, host, nil).SignTransaction(context.Background(), host.SignTx())
	require.NoError(t, err)

	tx := decodeSigned(t, res.Serialized)
	pushes := scriptPushes(t, tx.TxIn[0].SignatureScript)
	require.Len(t, pushes, 4)
	require.Empty(t, pushes[0])
	require.Equal(t, cosig, pushes[2])
	require.Equal(t, redeem, pushes[3])

	require.NoError(t, VerifyTransaction(coin, res.Serialized, host.PrevOutputFetcher()))
}

func TestSignMultisigChange(t *testing.T) {
	coin := mustCoin(t, "Testnet")
	params, err := coin.Params()
	require.NoError(t, err)
	kc := testKeychain(t)
	ours := accountNode(t, kc, "m/48'/1'/0'")
	theirs := accountNode(t, cosignerKeychain(t, 0x61), "m/48'/1'/0'")
	ourChangePub := derivePub(t, kc, "m/48'/1'/0'/1/0")

	tests := []struct {
		name      string
		change    *MultisigRedeemScript
		wantNodes int
		wantOut   uint64
	}{
		{
			name:      "same wallet",
			change:    &MultisigRedeemScript{Nodes: []HDNode{ours, theirs}, AddressN: []uint32{1, 0}, M: 1},
			wantNodes: 2,
			wantOut:   199000,
		},
		{
			name:    "foreign cosigner",
			change:  &MultisigRedeemScript{Pubkeys: [][]byte{ourChangePub, foreignPub(0x63)}, M: 1},
			wantOut: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			in := &MultisigRedeemScript{Nodes: []HDNode{ours, theirs}, AddressN: []uint32{0, 0}, M: 1}
			require.NoError(t, resolveMultisig(in))
			redeem, err := multisigRedeemScript(in)
			require.NoError(t, err)
			pkScript, err := outputScriptP2SH(btcutil.Hash160(redeem))
			require.NoError(t, err)

			require.NoError(t, resolveMultisig(tt.change))
			changeRedeem, err := multisigRedeemScript(tt.change)
			require.NoError(t, err)
			changeAddr, err := btcutil.NewAddressScriptHash(changeRedeem, params)
			require.NoError(t, err)

			prev := fundingTx(0x06, pkScript, 200000)
			b, err := CreatePsbtBuilder(coin, []Input{{OutTxId: prev.TxHash().String()}},
				[]Output{{Address: destAddress(t, coin), Amount: 500}}, 2, 0)
			require.NoError(t, err)
			require.NoError(t, b.UpdateInputUtxos([]InputUtxo{
				{UtxoType: NonWitness, NonWitnessUtxo: txHex(t, prev), RedeemScript: hex.EncodeToString(redeem), Index: 0},
			}))
			require.NoError(t, b.AddInputOrigins([]KeyOrigin{
				{Index: 0, PubKey: hex.EncodeToString(in.Pubkeys[0]), Fingerprint: kc.Fingerprint(), Path: "m/48'/1'/0'/0/0"},
			}))
			require.NoError(t, b.AddOutputs([]Output{{Address: changeAddr.EncodeAddress(), Amount: 199000}}))
			require.NoError(t, b.AddOutputOrigins([]KeyOrigin{
				{Index: 1, PubKey: hex.EncodeToString(ourChangePub), Fingerprint: kc.Fingerprint(), Path: "m/48'/1'/0'/1/0"},
			}))
			require.NoError(t, b.AddOutputRedeemScript(hex.EncodeToString(changeRedeem), 1))

			host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint(), ours, theirs)
			require.NoError(t, err)

			txi, err := host.RequestTxInput(ctx, 0)
			require.NoError(t, err)
			require.Equal(t, SpendMultisig, txi.ScriptType)
			require.Len(t, txi.Multisig.Nodes, 2)
			require.Equal(t, []uint32{0, 0}, txi.Multisig.AddressN)

			txo, err := host.RequestTxOutput(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, PayToMultisig, txo.ScriptType)
			require.Len(t, txo.Multisig.Nodes, tt.wantNodes)

			res, err := newTestSigner(t, coin, kc, host, nil).SignTransaction(ctx, host.SignTx())
			require.NoError(t, err)
			require.Equal(t, tt.wantOut, res.ChangeOut)
			require.Equal(t, int64(500), res.Fee)

			tx := decodeSigned(t, res.Serialized)
			require.Equal(t, changeAddr.ScriptAddress(), tx.TxOut[1].PkScript[2:22])
			require.NoError(t, VerifyTransaction(coin, res.Serialized, host.PrevOutputFetcher()))
		})
	}
}

func TestSignMultisigForeignKey(t *testing.T) {
	coin := mustCoin(t, "Testnet")
	kc := testKeychain(t)
	ms := &MultisigRedeemScript{Pubkeys: [][]byte{foreignPub(0x61), foreignPub(0x62)}, M: 1}
	b, _ := multisigFixture(t, coin, kc, ms, 500000)

	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)
	rec := &signatureRecorder{}
	_, err = newTestSigner(t, coin, kc, host, rec).SignTransaction(context.Background(), host.SignTx())
	requireSigningError(t, err, ProcessError, MsgPubkeyNotInMulti)
	require.Empty(t, rec.indexes)
}

func TestSignDashExtraData(t *testing.T) {
	coin := mustCoin(t, "Dash")
	kc := testKeychain(t)
	path := "m/44'/5'/0'/0/0"
	pub := derivePub(t, kc, path)

	prev := fundingTx(0x01, p2pkhScript(t, pub), 800000)
	extra := bytes.Repeat([]byte{0x5a, 0x01, 0x02}, 900)
	prevID := PrevTxID(coin, prev, 0, extra)

	b, err := CreatePsbtBuilder(coin, []Input{{OutTxId: prevID.String()}},
		[]Output{{Address: destAddress(t, coin), Amount: 790000}}, 2, 0)
	require.NoError(t, err)
	require.NoError(t, b.UpdateInputUtxos([]InputUtxo{{UtxoType: NonWitness, NonWitnessUtxo: txHex(t, prev), Index: 0}}))
	require.NoError(t, b.AddInputOrigins([]KeyOrigin{
		{Index: 0, PubKey: hex.EncodeToString(pub), Fingerprint: kc.Fingerprint(), Path: path},
	}))

	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)

	// Without the extra data the previous transaction hashes differently.
	_, err = newTestSigner(t, coin, kc, host, nil).SignTransaction(context.Background(), host.SignTx())
	requireSigningError(t, err, ProcessError, "Encountered invalid prev_hash")

	require.NoError(t, host.SetPrevTxExtras(prevID, 0, extra))
	res, err := newTestSigner(t, coin, kc, host, nil).SignTransaction(context.Background(), host.SignTx())
	require.NoError(t, err)
	require.Equal(t, uint64(800000), res.TotalIn)
	require.NoError(t, VerifyTransaction(coin, res.Serialized, host.PrevOutputFetcher()))
}

func TestSignCapricoinTimestamp(t *testing.T) {
	coin := mustCoin(t, "Capricoin")
	kc := testKeychain(t)
	path := "m/44'/289'/0'/0/0"
	pub := derivePub(t, kc, path)

	const prevTime, txTime = 1600000000, 1700000000
	prev := fundingTx(0x01, p2pkhScript(t, pub), 800000)
	prevID := PrevTxID(coin, prev, prevTime, nil)

	b, err := CreatePsbtBuilder(coin, []Input{{OutTxId: prevID.String()}},
		[]Output{{Address: destAddress(t, coin), Amount: 790000}}, 2, 0)
	require.NoError(t, err)
	require.NoError(t, b.UpdateInputUtxos([]InputUtxo{{UtxoType: NonWitness, NonWitnessUtxo: txHex(t, prev), Index: 0}}))
	require.NoError(t, b.AddInputOrigins([]KeyOrigin{
		{Index: 0, PubKey: hex.EncodeToString(pub), Fingerprint: kc.Fingerprint(), Path: path},
	}))
	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)
	require.NoError(t, host.SetPrevTxExtras(prevID, prevTime, nil))
	host.Timestamp = txTime

	res, err := newTestSigner(t, coin, kc, host, nil).SignTransaction(context.Background(), host.SignTx())
	require.NoError(t, err)
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(res.Serialized[0:4]))
	require.Equal(t, uint32(txTime), binary.LittleEndian.Uint32(res.Serialized[4:8]))
	require.Equal(t, byte(1), res.Serialized[8])
	require.Equal(t, prevID[:], res.Serialized[9:41])

	require.Error(t, VerifyTransaction(coin, res.Serialized, host.PrevOutputFetcher()))
}

func TestSignBgoldSegwit(t *testing.T) {
	coin := mustCoin(t, "Bgold")
	kc := testKeychain(t)
	s := witnessSpend(t, kc, 0, 0x01, "m/84'/156'/0'/0/0", 100000, false)
	b := buildPsbt(t, coin, []spend{s}, []Output{{Address: destAddress(t, coin), Amount: 90000}})
	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)

	res, err := newTestSigner(t, coin, kc, host, nil).SignTransaction(context.Background(), host.SignTx())
	require.NoError(t, err)

	tx := decodeSigned(t, res.Serialized)
	require.Len(t, tx.TxIn[0].Witness, 2)
	sigWithType := tx.TxIn[0].Witness[0]
	require.Equal(t, byte(0x41), sigWithType[len(sigWithType)-1])

	unsigned := b.Packet().UnsignedTx
	sigHashes := txscript.NewTxSigHashes(unsigned, host.PrevOutputFetcher())
	digest, err := txscript.CalcWitnessSigHash(p2pkhScript(t, s.pub), sigHashes,
		txscript.SigHashType(0x4f41), unsigned, 0, 100000)
	require.NoError(t, err)

	sig, err := ecdsa.ParseDERSignature(res.Signatures[0])
	require.NoError(t, err)
	pk, err := btcec.ParsePubKey(s.pub)
	require.NoError(t, err)
	require.True(t, sig.Verify(digest, pk))
}

func TestSignNegativeFee(t *testing.T) {
	coin := mustCoin(t, "Testnet")
	kc := testKeychain(t)
	s := witnessSpend(t, kc, 0, 0x01, "m/84'/1'/0'/0/0", 1000, false)
	b := buildPsbt(t, coin, []spend{s}, []Output{{Address: destAddress(t, coin), Amount: 2000}})

	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)
	_, err = newTestSigner(t, coin, kc, host, nil).SignTransaction(context.Background(), host.SignTx())
	require.True(t, IsFailure(err, NotEnoughFunds))

	reward := *coin
	reward.NegativeFee = true
	host, err = NewPsbtHost(b.Packet(), &reward, kc.Fingerprint())
	require.NoError(t, err)
	res, err := newTestSigner(t, &reward, kc, host, nil).SignTransaction(context.Background(), host.SignTx())
	require.NoError(t, err)
	require.Equal(t, int64(-1000), res.Fee)
}

func TestSignSegwitDisabled(t *testing.T) {
	coin := mustCoin(t, "Dogecoin")
	kc := testKeychain(t)
	s := witnessSpend(t, kc, 0, 0x01, "m/84'/3'/0'/0/0", 1000, false)
	b := buildPsbt(t, coin, []spend{s}, []Output{{Address: destAddress(t, coin), Amount: 900}})

	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)
	_, err = newTestSigner(t, coin, kc, host, nil).SignTransaction(context.Background(), host.SignTx())
	requireSigningError(t, err, DataError, MsgSegwitDisabled)
}

func TestSignOpReturn(t *testing.T) {
	coin := mustCoin(t, "Testnet")
	kc := testKeychain(t)
	s := witnessSpend(t, kc, 0, 0x01, "m/84'/1'/0'/0/0", 50000, false)
	nullData, err := txscript.NullDataScript([]byte("signed memo"))
	require.NoError(t, err)

	b := buildPsbt(t, coin, []spend{s}, []Output{
		{Address: destAddress(t, coin), Amount: 40000},
		{Script: hex.EncodeToString(nullData)},
	})
	host, err := NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)
	res, err := newTestSigner(t, coin, kc, host, nil).SignTransaction(context.Background(), host.SignTx())
	require.NoError(t, err)
	require.Equal(t, nullData, decodeSigned(t, res.Serialized).TxOut[1].PkScript)
	require.NoError(t, VerifyTransaction(coin, res.Serialized, host.PrevOutputFetcher()))

	b.Packet().UnsignedTx.TxOut[1].Value = 1
	host, err = NewPsbtHost(b.Packet(), coin, kc.Fingerprint())
	require.NoError(t, err)
	_, err = newTestSigner(t, coin, kc, host, nil).SignTransaction(context.Background(), host.SignTx())
	require.True(t, IsFailure(err, DataError))
}

func TestSignHostErrors(t *testing.T) {
	coin, kc, _, host, _ := bcashFixture(t)
	sg := newTestSigner(t, coin, kc, host, nil)

	tx := host.SignTx()
	tx.InputsCount = 2
	_, err := sg.SignTransaction(context.Background(), tx)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sg.SignTransaction(ctx, host.SignTx())
	require.ErrorIs(t, err, context.Canceled)

	_, err = sg.SignTransaction(context.Background(), &SignTx{InputsCount: 1})
	require.True(t, IsFailure(err, DataError))
}

func TestNewSignerRequiresCollaborators(t *testing.T) {
	coin := mustCoin(t, "Bitcoin")
	_, err := NewSigner(Config{Keychain: testKeychain(t), Host: &PsbtHost{}})
	require.Error(t, err)
	_, err = NewSigner(Config{Coin: coin, Host: &PsbtHost{}})
	require.Error(t, err)
	_, err = NewSigner(Config{Coin: coin, Keychain: testKeychain(t)})
	require.Error(t, err)
}
