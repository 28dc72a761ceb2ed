package signtx_sdk

import (
	"bytes"
	"crypto/sha256"
	"hash"
	"math"

	"signtx-sdk/coins"
)

// Phase is the state of a SigningSession.
type Phase int

const (
	// PhaseCollecting is the first pass: inputs and outputs are committed.
	PhaseCollecting Phase = iota
	// PhaseVerifying is the second pass: inputs are re-requested, checked
	// against the commitments and signed.
	PhaseVerifying
	PhaseDone
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseCollecting:
		return "collecting"
	case PhaseVerifying:
		return "verifying"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	}
	return "unknown"
}

// SigningSession owns every running total and buffer of one signing
// operation. It is used by a single goroutine.
type SigningSession struct {
	coin  *coins.CoinInfo
	tx    *SignTx
	phase Phase

	// TotalIn is the value of all inputs validated in the first pass.
	TotalIn uint64
	// Bip143RemainingIn is committed input value not yet claimed by a
	// re-verified input. It only decreases once verification starts.
	Bip143RemainingIn uint64
	TotalOut          uint64
	ChangeOut         uint64

	hash143    *Hash143
	hConfirmed hash.Hash
	serialized bytes.Buffer
	signatures [][]byte

	segwit     []bool
	walletPath *matchChecker
	multisig   *MultisigFingerprint

	committed int
	verified  int
}

func NewSigningSession(coin *coins.CoinInfo, tx *SignTx) (*SigningSession, error) {
	if tx.InputsCount <= 0 {
		return nil, dataError("Transaction has no inputs")
	}
	if tx.OutputsCount <= 0 {
		return nil, dataError("Transaction has no outputs")
	}
	return &SigningSession{
		coin:       coin,
		tx:         tx,
		hash143:    NewHash143(),
		hConfirmed: sha256.New(),
		signatures: make([][]byte, tx.InputsCount),
		segwit:     make([]bool, tx.InputsCount),
		walletPath: newWalletPathChecker(),
		multisig:   NewMultisigFingerprint(),
	}, nil
}

func (s *SigningSession) Phase() Phase { return s.phase }

func (s *SigningSession) expect(p Phase) error {
	if s.phase != p {
		return processError("Signing session is %s, expected %s", s.phase, p)
	}
	return nil
}

// CommitInput records the amount of an input that will be signed over its
// declared amount. The amount becomes claimable in the second pass.
func (s *SigningSession) CommitInput(txi *TxInput) error {
	if err := s.expect(PhaseCollecting); err != nil {
		return err
	}
	if txi.Amount == 0 {
		return dataError(MsgMissingAmount)
	}
	if txi.Amount > math.MaxInt64-s.TotalIn {
		return dataError("Value overflow")
	}
	s.Bip143RemainingIn += txi.Amount
	s.TotalIn += txi.Amount
	return nil
}

// addLegacyInput accounts for an input whose amount was read from its
// verified previous transaction.
func (s *SigningSession) addLegacyInput(amount uint64) error {
	if err := s.expect(PhaseCollecting); err != nil {
		return err
	}
	if amount > math.MaxInt64-s.TotalIn {
		return dataError("Value overflow")
	}
	s.TotalIn += amount
	return nil
}

func (s *SigningSession) addOutput(amount uint64, change bool) error {
	if err := s.expect(PhaseCollecting); err != nil {
		return err
	}
	if amount > math.MaxInt64-s.TotalOut {
		return dataError("Value overflow")
	}
	s.TotalOut += amount
	if change {
		s.ChangeOut += amount
	}
	return nil
}

// ClaimInput takes amount out of the committed bucket. Asking for more than
// is left means the host presented different data than in the first pass;
// the bucket is then left untouched.
func (s *SigningSession) ClaimInput(amount uint64) error {
	if err := s.expect(PhaseVerifying); err != nil {
		return err
	}
	if amount > s.Bip143RemainingIn {
		return errTxChanged()
	}
	s.Bip143RemainingIn -= amount
	return nil
}

func (s *SigningSession) beginVerifying() error {
	if err := s.expect(PhaseCollecting); err != nil {
		return err
	}
	if s.committed != s.tx.InputsCount {
		return errTxChanged()
	}
	s.phase = PhaseVerifying
	return nil
}

// finish closes the second pass. Every committed input must have been
// visited and the committed value fully claimed.
func (s *SigningSession) finish() error {
	if err := s.expect(PhaseVerifying); err != nil {
		return err
	}
	if s.verified != s.committed || s.Bip143RemainingIn != 0 {
		return errTxChanged()
	}
	s.phase = PhaseDone
	return nil
}

// abort discards everything produced so far.
func (s *SigningSession) abort() {
	s.phase = PhaseAborted
	s.serialized.Reset()
	for i := range s.signatures {
		s.signatures[i] = nil
	}
}

func (s *SigningSession) hasSegwit() bool {
	for _, sw := range s.segwit {
		if sw {
			return true
		}
	}
	return false
}

func (s *SigningSession) setSignature(index int, sig []byte) {
	s.signatures[index] = sig
}

// Fee is TotalIn minus TotalOut and may be negative on coins that allow it.
func (s *SigningSession) Fee() int64 {
	return int64(s.TotalIn) - int64(s.TotalOut)
}
