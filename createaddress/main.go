package main

import (
	"fmt"
	"log"
	"os"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"
	"github.com/tyler-smith/go-bip39"

	signtx "signtx-sdk"
	"signtx-sdk/coins"
)

var (
	coinName   string
	mnemonic   string
	passphrase string
	pathStr    string
)

var rootCmd = &cobra.Command{
	Use:   "createaddress",
	Short: "Derive receive addresses for a coin",
	Long: `Derive the addresses of one BIP32 path for any coin of the built-in table.
Without --mnemonic a fresh 24 word mnemonic is generated and printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&coinName, "coin", "Testnet", "coin name or shortcut")
	rootCmd.Flags().StringVar(&mnemonic, "mnemonic", "", "BIP39 mnemonic")
	rootCmd.Flags().StringVar(&passphrase, "passphrase", "", "BIP39 passphrase")
	rootCmd.Flags().StringVar(&pathStr, "path", "m/44'/1'/0'/0/0", "derivation path")
}

func run() error {
	coin, err := coins.ByName(coinName)
	if err != nil {
		return err
	}
	netParams, err := coin.Params()
	if err != nil {
		return err
	}
	path, err := signtx.ParsePath(pathStr)
	if err != nil {
		return err
	}

	if mnemonic == "" {
		entropy, err := bip39.NewEntropy(256)
		if err != nil {
			return err
		}
		mnemonic, err = bip39.NewMnemonic(entropy)
		if err != nil {
			return err
		}
		log.Printf("new mnemonic %s \n", mnemonic)
	}

	keychain, err := signtx.NewKeychainFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return err
	}
	log.Printf("master fingerprint %08x \n", keychain.Fingerprint())

	key, err := keychain.DeriveKey(path, coin.CurveName)
	if err != nil {
		return err
	}
	pub := key.PublicKey()
	key.Zero()
	log.Printf("%s public key %x \n", signtx.FormatPath(path), pub)

	legacyAddress, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub), netParams)
	if err != nil {
		return err
	}
	log.Printf("legacy address %s \n", legacyAddress.EncodeAddress())

	if !coin.Segwit {
		return nil
	}

	program, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub), netParams)
	if err != nil {
		return err
	}
	nestedAddress, err := btcutil.NewAddressScriptHash(append([]byte{0x00, 0x14}, program.ScriptAddress()...), netParams)
	if err != nil {
		return err
	}
	log.Printf("nested segwit address %s \n", nestedAddress.EncodeAddress())

	if coin.Bech32Prefix != "" {
		log.Printf("native segwit address %s \n", program.EncodeAddress())
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
