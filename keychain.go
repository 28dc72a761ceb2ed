package signtx_sdk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	mecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"signtx-sdk/coins"
)

// Keychain derives signing keys for a path on a named curve.
type Keychain interface {
	DeriveKey(path []uint32, curveName string) (*KeyPair, error)
}

// KeyPair is a derived key. Callers zero it as soon as the signature is
// made.
type KeyPair struct {
	priv *btcec.PrivateKey
	pub  []byte
}

func NewKeyPair(priv *btcec.PrivateKey) *KeyPair {
	return &KeyPair{priv: priv, pub: priv.PubKey().SerializeCompressed()}
}

// PublicKey returns the compressed public key.
func (k *KeyPair) PublicKey() []byte {
	return k.pub
}

// Sign returns a DER encoded low-S ECDSA signature of digest.
func (k *KeyPair) Sign(digest []byte) []byte {
	return mecdsa.Sign(k.priv, digest).Serialize()
}

func (k *KeyPair) Zero() {
	if k.priv != nil {
		k.priv.Zero()
		k.priv = nil
	}
}

// HDKeychain is a BIP32 keychain rooted at a seed.
type HDKeychain struct {
	master *bip32.Key
}

func NewKeychainFromSeed(seed []byte) (*HDKeychain, error) {
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	return &HDKeychain{master: master}, nil
}

// NewKeychainFromMnemonic derives the BIP39 seed of a mnemonic and
// passphrase.
func NewKeychainFromMnemonic(mnemonic, passphrase string) (*HDKeychain, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	return NewKeychainFromSeed(seed)
}

func (k *HDKeychain) DeriveKey(path []uint32, curveName string) (*KeyPair, error) {
	if curveName != coins.CurveSecp256k1 {
		return nil, dataError("Unsupported curve %s", curveName)
	}
	node := k.master
	for _, idx := range path {
		child, err := node.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive %d: %w", idx, err)
		}
		node = child
	}
	priv, _ := btcec.PrivKeyFromBytes(node.Key)
	return NewKeyPair(priv), nil
}

// DeriveXpub returns the base58 extended public key at path.
func (k *HDKeychain) DeriveXpub(path []uint32) (string, error) {
	node := k.master
	for _, idx := range path {
		child, err := node.NewChildKey(idx)
		if err != nil {
			return "", fmt.Errorf("derive %d: %w", idx, err)
		}
		node = child
	}
	return node.PublicKey().B58Serialize(), nil
}

// ParseHDNode reads a base58 extended key. Private keys are reduced to
// their public half.
func ParseHDNode(xkey string) (HDNode, error) {
	key, err := bip32.B58Deserialize(strings.TrimSpace(xkey))
	if err != nil {
		return HDNode{}, fmt.Errorf("extended key: %w", err)
	}
	pub := key.PublicKey()
	if _, err := btcec.ParsePubKey(pub.Key); err != nil {
		return HDNode{}, fmt.Errorf("extended key: %w", err)
	}
	return HDNode{PublicKey: pub.Key, ChainCode: pub.ChainCode}, nil
}

// derive returns the compressed public key of n at a non-hardened path.
func (n HDNode) derive(path []uint32) ([]byte, error) {
	if len(n.PublicKey) != btcec.PubKeyBytesLenCompressed || len(n.ChainCode) != 32 {
		return nil, errors.New("malformed node")
	}
	key := &bip32.Key{
		Version:     bip32.PublicWalletVersion,
		ChildNumber: []byte{0, 0, 0, 0},
		FingerPrint: []byte{0, 0, 0, 0},
		ChainCode:   n.ChainCode,
		Key:         n.PublicKey,
	}
	for _, idx := range path {
		child, err := key.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive %d: %w", idx, err)
		}
		key = child
	}
	return key.Key, nil
}

// Fingerprint is the master key fingerprint in the little-endian form
// used by PSBT key origins.
func (k *HDKeychain) Fingerprint() uint32 {
	id := btcutil.Hash160(k.master.PublicKey().Key)
	return binary.LittleEndian.Uint32(id[:4])
}

// ParsePath parses "m/44'/0'/0'/0/1" style derivation paths. Both ' and h
// mark hardened levels.
func ParsePath(s string) ([]uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty path")
	}
	parts := strings.Split(s, "/")
	if parts[0] == "m" || parts[0] == "M" {
		parts = parts[1:]
	}
	path := make([]uint32, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid path %q", s)
		}
		hardened := strings.HasSuffix(p, "'") || strings.HasSuffix(p, "h") || strings.HasSuffix(p, "H")
		if hardened {
			p = p[:len(p)-1]
		}
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil || uint32(v) >= HardenedKeyStart {
			return nil, fmt.Errorf("invalid path element %q", p)
		}
		idx := uint32(v)
		if hardened {
			idx += HardenedKeyStart
		}
		path = append(path, idx)
	}
	return path, nil
}

// FormatPath is the inverse of ParsePath.
func FormatPath(path []uint32) string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range path {
		b.WriteByte('/')
		if idx >= HardenedKeyStart {
			b.WriteString(strconv.FormatUint(uint64(idx-HardenedKeyStart), 10))
			b.WriteByte('\'')
		} else {
			b.WriteString(strconv.FormatUint(uint64(idx), 10))
		}
	}
	return b.String()
}
