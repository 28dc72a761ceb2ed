package signtx_sdk

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"signtx-sdk/coins"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func testKeychain(t *testing.T) *HDKeychain {
	t.Helper()
	kc, err := NewKeychainFromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	return kc
}

func cosignerKeychain(t *testing.T, seed byte) *HDKeychain {
	t.Helper()
	kc, err := NewKeychainFromSeed(bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	return kc
}

func accountNode(t *testing.T, kc *HDKeychain, path string) HDNode {
	t.Helper()
	p, err := ParsePath(path)
	require.NoError(t, err)
	xpub, err := kc.DeriveXpub(p)
	require.NoError(t, err)
	node, err := ParseHDNode(xpub)
	require.NoError(t, err)
	return node
}

func mustCoin(t *testing.T, name string) *coins.CoinInfo {
	t.Helper()
	c, err := coins.ByName(name)
	require.NoError(t, err)
	return c
}

func derivePub(t *testing.T, kc Keychain, path string) []byte {
	t.Helper()
	p, err := ParsePath(path)
	require.NoError(t, err)
	k, err := kc.DeriveKey(p, coins.CurveSecp256k1)
	require.NoError(t, err)
	defer k.Zero()
	return k.PublicKey()
}

func foreignPub(seed byte) []byte {
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
	return priv.PubKey().SerializeCompressed()
}

func p2pkhScript(t *testing.T, pub []byte) []byte {
	t.Helper()
	s, err := outputScriptP2PKH(btcutil.Hash160(pub))
	require.NoError(t, err)
	return s
}

func p2wpkhScript(t *testing.T, pub []byte) []byte {
	t.Helper()
	s, err := outputScriptNativeP2WPKH(btcutil.Hash160(pub))
	require.NoError(t, err)
	return s
}

// destAddress is a p2pkh address of coin that does not belong to the test
// keychain.
func destAddress(t *testing.T, coin *coins.CoinInfo) string {
	t.Helper()
	params, err := coin.Params()
	require.NoError(t, err)
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(foreignPub(0x01)), params)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

// fundingTx is a previous transaction paying amount to pkScript at output
// 0. seed keeps transactions with the same output apart.
func fundingTx(seed byte, pkScript []byte, amount int64) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	src := chainhash.HashH([]byte{seed})
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&src, 1), []byte{txscript.OP_TRUE}, nil))
	tx.AddTxOut(wire.NewTxOut(amount, pkScript))
	return tx
}

func txHex(t *testing.T, tx *wire.MsgTx) string {
	t.Helper()
	var b bytes.Buffer
	require.NoError(t, tx.Serialize(&b))
	return hex.EncodeToString(b.Bytes())
}

func newTestSigner(t *testing.T, coin *coins.CoinInfo, kc Keychain, host Host, progress ProgressListener) *Signer {
	t.Helper()
	sg, err := NewSigner(Config{Coin: coin, Keychain: kc, Host: host, Progress: progress})
	require.NoError(t, err)
	return sg
}

// scriptPushes returns the data pushes of a push-only script.
func scriptPushes(t *testing.T, script []byte) [][]byte {
	t.Helper()
	var out [][]byte
	tok := txscript.MakeScriptTokenizer(0, script)
	for tok.Next() {
		out = append(out, tok.Data())
	}
	require.NoError(t, tok.Err())
	return out
}

// tamperHost changes inputs on every request after the first one.
type tamperHost struct {
	*PsbtHost
	index  int
	mutate func(*TxInput)
	seen   map[int]int
}

func newTamperHost(h *PsbtHost, index int, mutate func(*TxInput)) *tamperHost {
	return &tamperHost{PsbtHost: h, index: index, mutate: mutate, seen: map[int]int{}}
}

func (h *tamperHost) RequestTxInput(ctx context.Context, index int) (*TxInput, error) {
	txi, err := h.PsbtHost.RequestTxInput(ctx, index)
	if err != nil {
		return nil, err
	}
	h.seen[index]++
	if index == h.index && h.seen[index] > 1 {
		h.mutate(txi)
	}
	return txi, nil
}

type signatureRecorder struct {
	indexes []int
}

func (r *signatureRecorder) OnSignature(index int, _ []byte) {
	r.indexes = append(r.indexes, index)
}
