package signtx_sdk

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"runtime"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"signtx-sdk/coins"
)

const (
	bip32ChangeChain     = 1
	bip32MaxLastElement  = 1000000
	maxOpReturnDataBytes = txscript.MaxDataCarrierSize
)

// Config wires a Signer to its collaborators.
type Config struct {
	Coin     *coins.CoinInfo
	Keychain Keychain
	Host     Host
	// Progress is optional.
	Progress ProgressListener
}

// Signer runs the two-pass signing protocol for one coin.
type Signer struct {
	coin     *coins.CoinInfo
	params   *chaincfg.Params
	keychain Keychain
	host     Host
	progress ProgressListener
}

// SignedTx is the outcome of a successful signing session.
type SignedTx struct {
	Serialized []byte
	Signatures [][]byte
	TotalIn    uint64
	TotalOut   uint64
	ChangeOut  uint64
	Fee        int64
}

func NewSigner(cfg Config) (*Signer, error) {
	if cfg.Coin == nil {
		return nil, errors.New("nil coin")
	}
	if cfg.Keychain == nil {
		return nil, errors.New("nil keychain")
	}
	if cfg.Host == nil {
		return nil, errors.New("nil host")
	}
	params, err := cfg.Coin.Params()
	if err != nil {
		return nil, err
	}
	return &Signer{
		coin:     cfg.Coin,
		params:   params,
		keychain: cfg.Keychain,
		host:     cfg.Host,
		progress: cfg.Progress,
	}, nil
}

// SignTransaction streams tx from the host twice and returns the fully
// signed serialization. Any failure aborts the whole session.
func (sg *Signer) SignTransaction(ctx context.Context, tx *SignTx) (*SignedTx, error) {
	s, err := NewSigningSession(sg.coin, tx)
	if err != nil {
		return nil, err
	}
	log.Debugf("Signing %s transaction: %d inputs, %d outputs",
		sg.coin.Name, tx.InputsCount, tx.OutputsCount)

	if err := sg.run(ctx, s); err != nil {
		s.abort()
		log.Errorf("Signing aborted: %v", err)
		return nil, err
	}

	res := &SignedTx{
		Serialized: append([]byte(nil), s.serialized.Bytes()...),
		Signatures: s.signatures,
		TotalIn:    s.TotalIn,
		TotalOut:   s.TotalOut,
		ChangeOut:  s.ChangeOut,
		Fee:        s.Fee(),
	}
	log.Debugf("Signed transaction: %d bytes, fee %d", len(res.Serialized), res.Fee)
	return res, nil
}

func (sg *Signer) run(ctx context.Context, s *SigningSession) error {
	if err := sg.processInputs(ctx, s); err != nil {
		return err
	}
	if err := sg.processOutputs(ctx, s); err != nil {
		return err
	}
	if s.TotalOut > s.TotalIn {
		if err := onNegativeFee(sg.coin); err != nil {
			return err
		}
	}

	if err := s.beginVerifying(); err != nil {
		return err
	}
	log.Debugf("Committed %d in, %d out, %d claimable",
		s.TotalIn, s.TotalOut, s.Bip143RemainingIn)

	if err := sg.serializeInputs(ctx, s); err != nil {
		return err
	}
	if err := sg.serializeOutputs(ctx, s); err != nil {
		return err
	}
	if err := sg.signSegwitInputs(ctx, s); err != nil {
		return err
	}

	writeUint32(&s.serialized, s.tx.LockTime)
	return s.finish()
}

func (sg *Signer) requestInput(ctx context.Context, index int) (*TxInput, error) {
	txi, err := sg.host.RequestTxInput(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("request input %d: %w", index, err)
	}
	if err := sanitizeInput(txi); err != nil {
		return nil, err
	}
	return txi, nil
}

func (sg *Signer) requestOutput(ctx context.Context, index int) (*TxOutput, error) {
	txo, err := sg.host.RequestTxOutput(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("request output %d: %w", index, err)
	}
	if txo.Multisig != nil {
		if err := resolveMultisig(txo.Multisig); err != nil {
			return nil, err
		}
		if err := validateMultisig(txo.Multisig); err != nil {
			return nil, err
		}
	}
	return txo, nil
}

func sanitizeInput(txi *TxInput) error {
	switch {
	case txi.ScriptType == SpendMultisig && txi.Multisig == nil:
		return dataError("Multisig details required")
	case txi.Multisig != nil && txi.ScriptType != SpendMultisig:
		if isSegwitScriptType(txi.ScriptType) {
			return dataError("Multisig is not supported for segwit inputs")
		}
		return dataError("Multisig field provided but not expected")
	case txi.Multisig != nil:
		if err := resolveMultisig(txi.Multisig); err != nil {
			return err
		}
		return validateMultisig(txi.Multisig)
	}
	return nil
}

// processInputs is the first pass over the inputs.
func (sg *Signer) processInputs(ctx context.Context, s *SigningSession) error {
	for i := 0; i < s.tx.InputsCount; i++ {
		txi, err := sg.requestInput(ctx, i)
		if err != nil {
			return err
		}
		path, err := selectSigningPath(sg.coin, txi.ScriptType)
		if err != nil {
			return err
		}

		s.hash143.AddInput(txi)
		writeTxInputCheck(s.hConfirmed, txi)
		if err := s.walletPath.addInput(txi.AddressN, txi.Multisig); err != nil {
			return err
		}
		if err := s.multisig.Add(i, txi); err != nil {
			return err
		}

		switch path {
		case pathSegwit:
			s.segwit[i] = true
			err = s.CommitInput(txi)
		case pathBip143:
			err = s.CommitInput(txi)
		default:
			var amount uint64
			amount, err = sg.getPrevTxOutputValue(ctx, txi.PrevHash, txi.PrevIndex)
			if err == nil {
				err = s.addLegacyInput(amount)
			}
		}
		if err != nil {
			return err
		}
		s.committed++
		log.Tracef("Input %d committed via %s path", i, path)
	}
	return nil
}

// getPrevTxOutputValue streams a previous transaction, checks that it
// hashes to prevHash and returns the value of output prevIndex.
func (sg *Signer) getPrevTxOutputValue(ctx context.Context, prevHash chainhash.Hash, prevIndex uint32) (uint64, error) {
	tx, err := sg.host.RequestPrevTxMeta(ctx, prevHash)
	if err != nil {
		return 0, fmt.Errorf("request prev tx %v: %w", prevHash, err)
	}
	if tx.OutputsCount <= int(prevIndex) {
		return 0, processError("Not enough outputs in previous transaction.")
	}

	h := sha256.New()
	writeTxHeader(h, sg.coin, tx.Version, tx.Timestamp, false)
	writeVarInt(h, uint64(tx.InputsCount))
	for i := 0; i < tx.InputsCount; i++ {
		txi, err := sg.host.RequestPrevTxInput(ctx, prevHash, i)
		if err != nil {
			return 0, fmt.Errorf("request prev tx input %d: %w", i, err)
		}
		writeTxInput(h, txi, txi.ScriptSig)
	}

	var amount uint64
	writeVarInt(h, uint64(tx.OutputsCount))
	for i := 0; i < tx.OutputsCount; i++ {
		txo, err := sg.host.RequestPrevTxOutput(ctx, prevHash, i)
		if err != nil {
			return 0, fmt.Errorf("request prev tx output %d: %w", i, err)
		}
		writeTxOutput(h, txo.Amount, txo.ScriptPubKey)
		if i == int(prevIndex) {
			amount = txo.Amount
		}
	}

	if err := sg.writePrevTxFooter(ctx, h, tx, prevHash); err != nil {
		return 0, err
	}
	if txHash(h, true) != prevHash {
		return 0, processError("Encountered invalid prev_hash")
	}
	return amount, nil
}

// processOutputs is the first pass over the outputs.
func (sg *Signer) processOutputs(ctx context.Context, s *SigningSession) error {
	for i := 0; i < s.tx.OutputsCount; i++ {
		txo, err := sg.requestOutput(ctx, i)
		if err != nil {
			return err
		}
		script, err := sg.outputDeriveScript(txo)
		if err != nil {
			return err
		}
		change := sg.outputIsChange(s, txo)
		if err := s.addOutput(txo.Amount, change); err != nil {
			return err
		}
		s.hash143.AddOutput(txo.Amount, script)
		writeTxOutput(s.hConfirmed, txo.Amount, script)
		log.Tracef("Output %d: %d (change=%v)", i, txo.Amount, change)
	}
	return nil
}

func (sg *Signer) outputIsChange(s *SigningSession, txo *TxOutput) bool {
	switch txo.ScriptType {
	case PayToAddress, PayToMultisig, PayToWitness, PayToP2SHWitness:
	default:
		return false
	}
	n := len(txo.AddressN)
	if n < BIP32WalletDepth {
		return false
	}
	if txo.AddressN[n-2] > bip32ChangeChain || txo.AddressN[n-1] > bip32MaxLastElement {
		return false
	}
	// Both checkers are evaluated so each becomes read only.
	walletOK := s.walletPath.outputMatches(txo.AddressN, txo.Multisig)
	multisigOK := s.multisig.OutputMatches(txo)
	return walletOK && multisigOK
}

func (sg *Signer) outputDeriveScript(txo *TxOutput) ([]byte, error) {
	if txo.ScriptType == PayToOpReturn {
		if txo.Amount != 0 {
			return nil, dataError("OP_RETURN output with non-zero amount")
		}
		if len(txo.OpReturnData) > maxOpReturnDataBytes {
			return nil, dataError("OP_RETURN data too long")
		}
		return txscript.NullDataScript(txo.OpReturnData)
	}

	if len(txo.AddressN) == 0 {
		return sg.addressToScript(txo.Address)
	}

	switch txo.ScriptType {
	case PayToWitness, PayToP2SHWitness:
		if !sg.coin.Segwit {
			return nil, dataError(MsgSegwitDisabled)
		}
	case PayToMultisig:
		if txo.Multisig == nil {
			return nil, dataError("Multisig details required")
		}
	}

	key, err := sg.keychain.DeriveKey(txo.AddressN, sg.coin.CurveName)
	if err != nil {
		return nil, fmt.Errorf("derive output key: %w", err)
	}
	pub := key.PublicKey()
	key.Zero()

	switch txo.ScriptType {
	case PayToAddress:
		return outputScriptP2PKH(btcutil.Hash160(pub))
	case PayToWitness:
		return outputScriptNativeP2WPKH(btcutil.Hash160(pub))
	case PayToP2SHWitness:
		return outputScriptP2WPKHInP2SH(btcutil.Hash160(pub))
	case PayToMultisig:
		if _, err := MultisigPubkeyIndex(txo.Multisig, pub); err != nil {
			return nil, err
		}
		redeem, err := multisigRedeemScript(txo.Multisig)
		if err != nil {
			return nil, err
		}
		return outputScriptP2SH(btcutil.Hash160(redeem))
	}
	return nil, dataError("Invalid output script type")
}

func (sg *Signer) addressToScript(address string) ([]byte, error) {
	if address == "" {
		return nil, dataError("Missing address")
	}
	addr, err := btcutil.DecodeAddress(address, sg.params)
	if err != nil || !addr.IsForNet(sg.params) {
		return nil, dataError("Invalid address")
	}
	switch addr.(type) {
	case *btcutil.AddressWitnessPubKeyHash, *btcutil.AddressWitnessScriptHash:
		if !sg.coin.Segwit {
			return nil, dataError(MsgSegwitDisabled)
		}
	}
	return txscript.PayToAddrScript(addr)
}

// serializeInputs is the second pass over the inputs: header, then every
// input either signed in place or, for segwit, written without signature.
func (sg *Signer) serializeInputs(ctx context.Context, s *SigningSession) error {
	writeTxHeader(&s.serialized, sg.coin, s.tx.Version, s.tx.Timestamp, s.hasSegwit())
	writeVarInt(&s.serialized, uint64(s.tx.InputsCount))

	for i := 0; i < s.tx.InputsCount; i++ {
		var err error
		switch {
		case s.segwit[i]:
			err = sg.serializeSegwitInput(ctx, s, i)
		case sg.coin.ForceBip143:
			err = sg.signBip143Input(ctx, s, i)
		default:
			err = sg.signLegacyInput(ctx, s, i)
		}
		if err != nil {
			return err
		}
		s.verified++
	}
	return nil
}

func (sg *Signer) serializeSegwitInput(ctx context.Context, s *SigningSession, index int) error {
	txi, err := sg.requestInput(ctx, index)
	if err != nil {
		return err
	}
	if !isSegwitScriptType(txi.ScriptType) {
		return errTxChanged()
	}
	if err := s.walletPath.checkInput(txi.AddressN, txi.Multisig); err != nil {
		return err
	}

	key, err := sg.keychain.DeriveKey(txi.AddressN, sg.coin.CurveName)
	if err != nil {
		return fmt.Errorf("derive input key: %w", err)
	}
	pub := key.PublicKey()
	key.Zero()

	scriptSig, err := sg.inputDeriveScript(txi, pub, nil)
	if err != nil {
		return err
	}
	writeTxInput(&s.serialized, txi, scriptSig)
	return nil
}

// signBip143Input re-requests a non-segwit input of a coin that signs with
// the BIP143 digest, checks it against the first pass and signs it.
func (sg *Signer) signBip143Input(ctx context.Context, s *SigningSession, index int) error {
	txi, err := sg.requestInput(ctx, index)
	if err != nil {
		return err
	}
	if err := s.walletPath.checkInput(txi.AddressN, txi.Multisig); err != nil {
		return err
	}
	if err := s.multisig.Check(index, txi); err != nil {
		return err
	}
	if txi.ScriptType != SpendAddress && txi.ScriptType != SpendMultisig {
		return errTxChanged()
	}
	if err := s.ClaimInput(txi.Amount); err != nil {
		return err
	}

	key, err := sg.keychain.DeriveKey(txi.AddressN, sg.coin.CurveName)
	if err != nil {
		return fmt.Errorf("derive input key: %w", err)
	}
	defer key.Zero()
	pub := key.PublicKey()

	digest, err := s.hash143.PreimageHash(s.tx, txi, btcutil.Hash160(pub), SighashType(sg.coin))
	if err != nil {
		return err
	}
	if txi.Multisig != nil {
		if _, err := MultisigPubkeyIndex(txi.Multisig, pub); err != nil {
			return err
		}
	}
	sig := key.Sign(digest[:])
	key.Zero()

	return sg.finishInput(s, index, txi, pub, sig)
}

// signLegacyInput signs input iSign with the pre-segwit sighash algorithm,
// streaming every input and output again. The stream is checked against
// the first pass digest before the signature is released.
func (sg *Signer) signLegacyInput(ctx context.Context, s *SigningSession, iSign int) error {
	hSign := sha256.New()
	hCheck := sha256.New()

	writeTxHeader(hSign, sg.coin, s.tx.Version, s.tx.Timestamp, false)
	writeVarInt(hSign, uint64(s.tx.InputsCount))

	var (
		txiSign *TxInput
		key     *KeyPair
		pub     []byte
	)
	defer func() {
		if key != nil {
			key.Zero()
		}
	}()

	for i := 0; i < s.tx.InputsCount; i++ {
		txi, err := sg.requestInput(ctx, i)
		if err != nil {
			return err
		}
		writeTxInputCheck(hCheck, txi)

		var scriptSig []byte
		if i == iSign {
			txiSign = txi
			if err := s.walletPath.checkInput(txi.AddressN, txi.Multisig); err != nil {
				return err
			}
			if err := s.multisig.Check(i, txi); err != nil {
				return err
			}
			key, err = sg.keychain.DeriveKey(txi.AddressN, sg.coin.CurveName)
			if err != nil {
				return fmt.Errorf("derive input key: %w", err)
			}
			pub = key.PublicKey()

			switch {
			case txi.Multisig != nil:
				scriptSig, err = multisigRedeemScript(txi.Multisig)
			case txi.ScriptType == SpendAddress:
				scriptSig, err = outputScriptP2PKH(btcutil.Hash160(pub))
			default:
				err = processError("Unknown transaction type")
			}
			if err != nil {
				return err
			}
		}
		writeTxInput(hSign, txi, scriptSig)
	}

	writeVarInt(hSign, uint64(s.tx.OutputsCount))
	for i := 0; i < s.tx.OutputsCount; i++ {
		txo, err := sg.requestOutput(ctx, i)
		if err != nil {
			return err
		}
		script, err := sg.outputDeriveScript(txo)
		if err != nil {
			return err
		}
		writeTxOutput(hCheck, txo.Amount, script)
		writeTxOutput(hSign, txo.Amount, script)
	}
	writeUint32(hSign, s.tx.LockTime)
	writeUint32(hSign, SighashType(sg.coin))

	if !bytes.Equal(hCheck.Sum(nil), s.hConfirmed.Sum(nil)) {
		return errTxChanged()
	}
	if txiSign.Multisig != nil {
		if _, err := MultisigPubkeyIndex(txiSign.Multisig, pub); err != nil {
			return err
		}
	}

	digest := txHash(hSign, true)
	sig := key.Sign(digest[:])
	key.Zero()
	key = nil

	return sg.finishInput(s, iSign, txiSign, pub, sig)
}

// finishInput builds the final script of a signed non-segwit input and
// appends it to the serialized transaction.
func (sg *Signer) finishInput(s *SigningSession, index int, txi *TxInput, pub, sig []byte) error {
	// Release signing material before the script is built.
	runtime.GC()

	scriptSig, err := sg.inputDeriveScript(txi, pub, sig)
	if err != nil {
		return err
	}
	txi.ScriptSig = scriptSig
	writeTxInput(&s.serialized, txi, scriptSig)
	sg.recordSignature(s, index, sig)
	return nil
}

func (sg *Signer) recordSignature(s *SigningSession, index int, sig []byte) {
	s.setSignature(index, sig)
	if sg.progress != nil {
		sg.progress.OnSignature(index, sig)
	}
	log.Tracef("Input %d signed", index)
}

func (sg *Signer) serializeOutputs(ctx context.Context, s *SigningSession) error {
	writeVarInt(&s.serialized, uint64(s.tx.OutputsCount))
	for i := 0; i < s.tx.OutputsCount; i++ {
		txo, err := sg.requestOutput(ctx, i)
		if err != nil {
			return err
		}
		script, err := sg.outputDeriveScript(txo)
		if err != nil {
			return err
		}
		writeTxOutput(&s.serialized, txo.Amount, script)
	}
	return nil
}

// signSegwitInputs writes the witness section. Non-segwit inputs get an
// empty witness.
func (sg *Signer) signSegwitInputs(ctx context.Context, s *SigningSession) error {
	if !s.hasSegwit() {
		return nil
	}
	for i := 0; i < s.tx.InputsCount; i++ {
		if !s.segwit[i] {
			s.serialized.WriteByte(0)
			continue
		}
		if err := sg.signSegwitInput(ctx, s, i); err != nil {
			return err
		}
	}
	return nil
}

func (sg *Signer) signSegwitInput(ctx context.Context, s *SigningSession, index int) error {
	txi, err := sg.requestInput(ctx, index)
	if err != nil {
		return err
	}
	if err := s.walletPath.checkInput(txi.AddressN, txi.Multisig); err != nil {
		return err
	}
	if err := s.multisig.Check(index, txi); err != nil {
		return err
	}
	if !isSegwitScriptType(txi.ScriptType) {
		return errTxChanged()
	}
	if err := s.ClaimInput(txi.Amount); err != nil {
		return err
	}

	key, err := sg.keychain.DeriveKey(txi.AddressN, sg.coin.CurveName)
	if err != nil {
		return fmt.Errorf("derive input key: %w", err)
	}
	defer key.Zero()
	pub := key.PublicKey()

	hashType := SighashType(sg.coin)
	digest, err := s.hash143.PreimageHash(s.tx, txi, btcutil.Hash160(pub), hashType)
	if err != nil {
		return err
	}
	sig := key.Sign(digest[:])
	key.Zero()

	runtime.GC()
	s.serialized.Write(witnessP2WPKH(sig, pub, byte(hashType&0xff)))
	sg.recordSignature(s, index, sig)
	return nil
}

// inputDeriveScript builds the scriptSig of an input. sig is nil for
// segwit inputs, whose signature lives in the witness.
func (sg *Signer) inputDeriveScript(txi *TxInput, pub, sig []byte) ([]byte, error) {
	hashType := byte(SighashType(sg.coin) & 0xff)

	switch txi.ScriptType {
	case SpendAddress:
		return inputScriptP2PKH(sig, pub, hashType)
	case SpendWitness:
		return nil, nil
	case SpendP2SHWitness:
		return inputScriptP2WPKHInP2SH(btcutil.Hash160(pub))
	case SpendMultisig:
		idx, err := MultisigPubkeyIndex(txi.Multisig, pub)
		if err != nil {
			return nil, err
		}
		sigs := make([][]byte, len(txi.Multisig.Pubkeys))
		copy(sigs, txi.Multisig.Signatures)
		sigs[idx] = sig
		redeem, err := multisigRedeemScript(txi.Multisig)
		if err != nil {
			return nil, err
		}
		return inputScriptMultisig(sigs, redeem, hashType)
	}
	return nil, processError("Invalid script type")
}
