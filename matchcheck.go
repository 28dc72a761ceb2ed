package signtx_sdk

import (
	"errors"
	"strconv"
	"strings"
)

type matchState int

const (
	matchUndefined matchState = iota
	matchDefined
	matchMismatch
)

type attributeFunc func(addressN []uint32, ms *MultisigRedeemScript) string

// matchChecker tracks one attribute shared by all inputs. Once outputs are
// being matched against it, no further inputs may be added.
type matchChecker struct {
	attribute attributeFunc
	state     matchState
	value     string
	readOnly  bool
}

func newMatchChecker(attr attributeFunc) *matchChecker {
	return &matchChecker{attribute: attr}
}

func (c *matchChecker) addInput(addressN []uint32, ms *MultisigRedeemScript) error {
	if c.readOnly {
		return errors.New("match checker is read only")
	}
	if c.state == matchMismatch {
		return nil
	}
	v := c.attribute(addressN, ms)
	switch c.state {
	case matchUndefined:
		c.state, c.value = matchDefined, v
	case matchDefined:
		if c.value != v {
			c.state = matchMismatch
		}
	}
	return nil
}

// checkInput fails when an input re-requested in the second pass no longer
// agrees with the attribute common to all inputs of the first pass.
func (c *matchChecker) checkInput(addressN []uint32, ms *MultisigRedeemScript) error {
	if c.state == matchMismatch {
		return nil
	}
	if c.state != matchDefined || c.value != c.attribute(addressN, ms) {
		return errTxChanged()
	}
	return nil
}

func (c *matchChecker) outputMatches(addressN []uint32, ms *MultisigRedeemScript) bool {
	c.readOnly = true
	if c.state != matchDefined {
		return false
	}
	return c.value == c.attribute(addressN, ms)
}

// walletPathAttribute is the derivation path without the trailing
// chain/index levels.
func walletPathAttribute(addressN []uint32, _ *MultisigRedeemScript) string {
	n := len(addressN) - BIP32WalletDepth
	if n < 0 {
		n = 0
	}
	parts := make([]string, n)
	for i, v := range addressN[:n] {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, "/")
}

func newWalletPathChecker() *matchChecker {
	return newMatchChecker(walletPathAttribute)
}
