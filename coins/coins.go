// Package coins holds the static capability table of the bitcoin-like
// coins the signer knows about. A CoinInfo is loaded once and treated as
// immutable for the lifetime of a signing session.
package coins

import (
	"bytes"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"gopkg.in/yaml.v3"
)

const CurveSecp256k1 = "secp256k1"

//go:embed coins.yaml
var defaultTable []byte

// CoinInfo describes the consensus quirks of one chain.
type CoinInfo struct {
	Name            string `yaml:"coin_name"`
	Shortcut        string `yaml:"coin_shortcut"`
	AddressType     uint8  `yaml:"address_type"`
	AddressTypeP2SH uint8  `yaml:"address_type_p2sh"`
	Bech32Prefix    string `yaml:"bech32_prefix"`
	Slip44          uint32 `yaml:"slip44"`
	CurveName       string `yaml:"curve_name"`

	Segwit      bool   `yaml:"segwit"`
	ForceBip143 bool   `yaml:"force_bip143"`
	ForkID      *uint8 `yaml:"fork_id"`
	Timestamp   bool   `yaml:"timestamp"`
	ExtraData   bool   `yaml:"extra_data"`
	NegativeFee bool   `yaml:"negative_fee"`
}

// HasForkID reports whether signatures on this coin carry replay
// protection bits.
func (c *CoinInfo) HasForkID() bool {
	return c.ForkID != nil
}

func (c *CoinInfo) validate() error {
	if c.Name == "" {
		return errors.New("coin without coin_name")
	}
	if c.Shortcut == "" {
		return fmt.Errorf("coin %q: missing coin_shortcut", c.Name)
	}
	if c.CurveName == "" {
		c.CurveName = CurveSecp256k1
	}
	if c.Segwit && c.Bech32Prefix == "" && c.AddressTypeP2SH == 0 {
		return fmt.Errorf("coin %q: segwit enabled without any segwit address encoding", c.Name)
	}
	return nil
}

var (
	paramsMtx   sync.Mutex
	paramsCache = map[*CoinInfo]*chaincfg.Params{}
)

// Params returns network parameters usable with btcutil address codecs.
// Bech32 prefixes unknown to chaincfg are registered on first use. A
// redefined coin is a new *CoinInfo and gets its own parameters.
func (c *CoinInfo) Params() (*chaincfg.Params, error) {
	paramsMtx.Lock()
	defer paramsMtx.Unlock()

	if p, ok := paramsCache[c]; ok {
		return p, nil
	}

	p := &chaincfg.Params{
		Name:             strings.ToLower(c.Name),
		Net:              netMagic(c.Name, c.Bech32Prefix),
		PubKeyHashAddrID: c.AddressType,
		ScriptHashAddrID: c.AddressTypeP2SH,
		Bech32HRPSegwit:  c.Bech32Prefix,
		HDCoinType:       c.Slip44,
	}
	if c.Bech32Prefix != "" && !chaincfg.IsBech32SegwitPrefix(c.Bech32Prefix+"1") {
		// Same name and prefix means the prefix is registered already.
		if err := chaincfg.Register(p); err != nil && !errors.Is(err, chaincfg.ErrDuplicateNet) {
			return nil, fmt.Errorf("register %s params: %w", c.Name, err)
		}
	}
	paramsCache[c] = p
	return p, nil
}

func netMagic(name, bech32Prefix string) wire.BitcoinNet {
	h := chainhash.HashB([]byte("coin:" + name + ":" + bech32Prefix))
	return wire.BitcoinNet(binary.LittleEndian.Uint32(h[:4]))
}

// Table is a lookup of coins by name and shortcut.
type Table struct {
	byName     map[string]*CoinInfo
	byShortcut map[string]*CoinInfo
	order      []*CoinInfo
}

// Load parses a YAML list of coin definitions.
func Load(r io.Reader) ([]*CoinInfo, error) {
	var list []*CoinInfo
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&list); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode coin table: %w", err)
	}
	for _, c := range list {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// NewTable builds a table; later definitions replace earlier ones with the
// same name.
func NewTable(defs ...[]*CoinInfo) *Table {
	t := &Table{
		byName:     map[string]*CoinInfo{},
		byShortcut: map[string]*CoinInfo{},
	}
	for _, list := range defs {
		for _, c := range list {
			t.add(c)
		}
	}
	return t
}

func (t *Table) add(c *CoinInfo) {
	if old, ok := t.byName[strings.ToLower(c.Name)]; ok {
		delete(t.byShortcut, strings.ToUpper(old.Shortcut))
		for i, o := range t.order {
			if o == old {
				t.order[i] = c
			}
		}
	} else {
		t.order = append(t.order, c)
	}
	t.byName[strings.ToLower(c.Name)] = c
	t.byShortcut[strings.ToUpper(c.Shortcut)] = c
}

// ByName finds a coin by its name or shortcut, case-insensitively.
func (t *Table) ByName(name string) (*CoinInfo, error) {
	if c, ok := t.byName[strings.ToLower(name)]; ok {
		return c, nil
	}
	if c, ok := t.byShortcut[strings.ToUpper(name)]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown coin %q", name)
}

// All returns the coins in definition order.
func (t *Table) All() []*CoinInfo {
	out := make([]*CoinInfo, len(t.order))
	copy(out, t.order)
	return out
}

// Merge reads additional definitions from a YAML file.
func (t *Table) Merge(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	list, err := Load(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, c := range list {
		t.add(c)
	}
	return nil
}

var (
	defaultOnce sync.Once
	defaultTbl  *Table
	defaultErr  error
)

// Default returns the built-in table.
func Default() (*Table, error) {
	defaultOnce.Do(func() {
		list, err := Load(bytes.NewReader(defaultTable))
		if err != nil {
			defaultErr = err
			return
		}
		defaultTbl = NewTable(list)
	})
	return defaultTbl, defaultErr
}

// ByName looks a coin up in the built-in table.
func ByName(name string) (*CoinInfo, error) {
	t, err := Default()
	if err != nil {
		return nil, err
	}
	return t.ByName(name)
}
