package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/spf13/cobra"

	signtx "signtx-sdk"
	"signtx-sdk/coins"
)

var (
	coinName   string
	coinsFile  string
	mnemonic   string
	passphrase string
	psbtStr    string
	psbtFile   string
	timestamp  uint32
	logLevel   string
	verify     bool
	cosigners  []string
)

var rootCmd = &cobra.Command{
	Use:   "signpsbt",
	Short: "Sign a PSBT with a mnemonic keychain",
	Long: `Stream a PSBT through the two-pass signer of the selected coin and print
the fully serialized transaction and the signature of every input.

Inputs and change outputs are matched to the keychain by their BIP32
derivations. Previous transactions are taken from the non-witness utxos.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&coinName, "coin", "Bitcoin", "coin name or shortcut")
	f.StringVar(&coinsFile, "coins-file", "", "YAML file with additional coin definitions")
	f.StringVar(&mnemonic, "mnemonic", "", "BIP39 mnemonic")
	f.StringVar(&passphrase, "passphrase", "", "BIP39 passphrase")
	f.StringVar(&psbtStr, "psbt", "", "PSBT in hex or base64")
	f.StringVar(&psbtFile, "psbt-file", "", "file holding the PSBT")
	f.Uint32Var(&timestamp, "timestamp", 0, "header timestamp for coins that carry one")
	f.StringVar(&logLevel, "loglevel", "info", "trace, debug, info, warn, error, critical or off")
	f.BoolVar(&verify, "verify", false, "run the signed transaction through the script engine")
	f.StringSliceVar(&cosigners, "cosigner", nil, "account xpub of a multisig cosigner, repeatable; include your own")
	_ = rootCmd.MarkFlagRequired("mnemonic")
}

func setupLogging() {
	backend := btclog.NewBackend(os.Stderr)
	logger := backend.Logger("SIGN")
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
	signtx.UseLogger(logger)
}

func loadCoin() (*coins.CoinInfo, error) {
	table, err := coins.Default()
	if err != nil {
		return nil, err
	}
	if coinsFile != "" {
		if err := table.Merge(coinsFile); err != nil {
			return nil, err
		}
	}
	return table.ByName(coinName)
}

func readPsbt() (string, error) {
	if psbtStr != "" {
		return psbtStr, nil
	}
	if psbtFile == "" {
		return "", fmt.Errorf("one of --psbt or --psbt-file is required")
	}
	b, err := os.ReadFile(psbtFile)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func run(ctx context.Context) error {
	setupLogging()

	coin, err := loadCoin()
	if err != nil {
		return err
	}
	encoded, err := readPsbt()
	if err != nil {
		return err
	}
	builder, err := signtx.NewPsbtBuilder(coin, encoded)
	if err != nil {
		return fmt.Errorf("decode psbt: %w", err)
	}

	keychain, err := signtx.NewKeychainFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return err
	}
	nodes := make([]signtx.HDNode, 0, len(cosigners))
	for _, x := range cosigners {
		node, err := signtx.ParseHDNode(x)
		if err != nil {
			return fmt.Errorf("cosigner %q: %w", x, err)
		}
		nodes = append(nodes, node)
	}
	host, err := signtx.NewPsbtHost(builder.Packet(), coin, keychain.Fingerprint(), nodes...)
	if err != nil {
		return err
	}
	host.Timestamp = timestamp

	signer, err := signtx.NewSigner(signtx.Config{
		Coin:     coin,
		Keychain: keychain,
		Host:     host,
		Progress: signtx.ProgressFunc(func(index int, sig []byte) {
			fmt.Printf("input %d signature %x\n", index, sig)
		}),
	})
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	res, err := signer.SignTransaction(ctx, host.SignTx())
	if err != nil {
		return err
	}
	fmt.Printf("fee %d\n", res.Fee)
	fmt.Printf("tx %s\n", hex.EncodeToString(res.Serialized))

	if verify {
		if err := signtx.VerifyTransaction(coin, res.Serialized, host.PrevOutputFetcher()); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		fmt.Println("verified")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
