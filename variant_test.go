package signtx_sdk

import (
	"bytes"
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"signtx-sdk/coins"
)

func TestSighashType(t *testing.T) {
	require.Equal(t, uint32(0x01), SighashType(mustCoin(t, "Bitcoin")))
	require.Equal(t, uint32(0x41), SighashType(mustCoin(t, "Bcash")))
	require.Equal(t, uint32(0x4f41), SighashType(mustCoin(t, "Bgold")))

	for _, fork := range []uint8{0, 1, 79, 255} {
		f := fork
		coin := &coins.CoinInfo{Name: "Fork", ForkID: &f}
		require.Equal(t, SighashAll|uint32(fork)<<8|SighashForkID, SighashType(coin))
	}
}

func TestSelectSigningPath(t *testing.T) {
	btc := mustCoin(t, "Bitcoin")
	bch := mustCoin(t, "Bcash")
	btg := mustCoin(t, "Bgold")
	doge := mustCoin(t, "Dogecoin")

	tests := []struct {
		coin       *coins.CoinInfo
		scriptType InputScriptType
		want       signingPath
		wantErr    bool
	}{
		{btc, SpendAddress, pathLegacy, false},
		{btc, SpendMultisig, pathLegacy, false},
		{btc, SpendWitness, pathSegwit, false},
		{btc, SpendP2SHWitness, pathSegwit, false},
		{bch, SpendAddress, pathBip143, false},
		{bch, SpendMultisig, pathBip143, false},
		{bch, SpendWitness, 0, true},
		{btg, SpendP2SHWitness, pathSegwit, false},
		{btg, SpendAddress, pathBip143, false},
		{doge, SpendWitness, 0, true},
		{doge, SpendAddress, pathLegacy, false},
		{btc, External, 0, true},
	}
	for _, tt := range tests {
		got, err := selectSigningPath(tt.coin, tt.scriptType)
		if tt.wantErr {
			require.True(t, IsFailure(err, DataError), "%s %s", tt.coin.Name, tt.scriptType)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "%s %s", tt.coin.Name, tt.scriptType)
	}

	_, err := selectSigningPath(doge, SpendP2SHWitness)
	var se *SigningError
	require.ErrorAs(t, err, &se)
	require.Equal(t, MsgSegwitDisabled, se.Message)
}

func TestWriteTxHeader(t *testing.T) {
	btc := mustCoin(t, "Bitcoin")
	ppc := mustCoin(t, "Peercoin")

	tests := []struct {
		name      string
		coin      *coins.CoinInfo
		hasSegwit bool
		want      []byte
	}{
		{"plain", btc, false, []byte{0x02, 0, 0, 0}},
		{"segwit", btc, true, []byte{0x02, 0, 0, 0, 0x00, 0x01}},
		{"timestamp", ppc, false, []byte{0x02, 0, 0, 0, 0x78, 0x56, 0x34, 0x12}},
		{"timestamp segwit", ppc, true, []byte{0x02, 0, 0, 0, 0x78, 0x56, 0x34, 0x12, 0x00, 0x01}},
	}
	for _, tt := range tests {
		var b bytes.Buffer
		writeTxHeader(&b, tt.coin, 2, 0x12345678, tt.hasSegwit)
		require.Equal(t, tt.want, b.Bytes(), tt.name)
	}
}

type extraDataHost struct {
	Host
	data  []byte
	short bool
	calls [][2]int
}

func (h *extraDataHost) RequestPrevTxExtraData(_ context.Context, _ chainhash.Hash, offset, size int) ([]byte, error) {
	h.calls = append(h.calls, [2]int{offset, size})
	if h.short {
		return nil, nil
	}
	end := offset + size
	if end > len(h.data) {
		end = len(h.data)
	}
	return h.data[offset:end], nil
}

func TestWritePrevTxFooterChunksExtraData(t *testing.T) {
	extra := bytes.Repeat([]byte{0xab, 0xcd}, 1250)
	host := &extraDataHost{data: extra}
	sg := &Signer{coin: mustCoin(t, "Dash"), host: host}

	var b bytes.Buffer
	tx := &PrevTx{LockTime: 0x01020304, ExtraDataLen: len(extra)}
	require.NoError(t, sg.writePrevTxFooter(context.Background(), &b, tx, chainhash.Hash{}))

	require.Equal(t, [][2]int{{0, 1024}, {1024, 1024}, {2048, 452}}, host.calls)
	for _, c := range host.calls {
		require.LessOrEqual(t, c[1], ExtraDataChunkSize)
	}
	require.Equal(t, append([]byte{0x04, 0x03, 0x02, 0x01}, extra...), b.Bytes())
}

func TestWritePrevTxFooterWithoutExtraData(t *testing.T) {
	host := &extraDataHost{data: []byte{1, 2, 3}}
	sg := &Signer{coin: mustCoin(t, "Bitcoin"), host: host}

	var b bytes.Buffer
	require.NoError(t, sg.writePrevTxFooter(context.Background(), &b, &PrevTx{LockTime: 7, ExtraDataLen: 3}, chainhash.Hash{}))
	require.Empty(t, host.calls)
	require.Equal(t, []byte{7, 0, 0, 0}, b.Bytes())
}

func TestWritePrevTxFooterEmptyChunk(t *testing.T) {
	host := &extraDataHost{short: true}
	sg := &Signer{coin: mustCoin(t, "Dash"), host: host}

	var b bytes.Buffer
	err := sg.writePrevTxFooter(context.Background(), &b, &PrevTx{ExtraDataLen: 10}, chainhash.Hash{})
	require.True(t, IsFailure(err, DataError))
}

func TestOnNegativeFee(t *testing.T) {
	require.True(t, IsFailure(onNegativeFee(mustCoin(t, "Bitcoin")), NotEnoughFunds))
	require.NoError(t, onNegativeFee(&coins.CoinInfo{Name: "Reward", NegativeFee: true}))
}
