package signtx_sdk

// InputScriptType selects how an input is spent.
type InputScriptType int

const (
	SpendAddress InputScriptType = iota
	SpendMultisig
	External
	SpendWitness
	SpendP2SHWitness
)

func (t InputScriptType) String() string {
	switch t {
	case SpendAddress:
		return "SPENDADDRESS"
	case SpendMultisig:
		return "SPENDMULTISIG"
	case External:
		return "EXTERNAL"
	case SpendWitness:
		return "SPENDWITNESS"
	case SpendP2SHWitness:
		return "SPENDP2SHWITNESS"
	}
	return "UNKNOWN"
}

// OutputScriptType selects how an output script is derived.
type OutputScriptType int

const (
	PayToAddress OutputScriptType = iota
	PayToScriptHash
	PayToMultisig
	PayToOpReturn
	PayToWitness
	PayToP2SHWitness
)

func (t OutputScriptType) String() string {
	switch t {
	case PayToAddress:
		return "PAYTOADDRESS"
	case PayToScriptHash:
		return "PAYTOSCRIPTHASH"
	case PayToMultisig:
		return "PAYTOMULTISIG"
	case PayToOpReturn:
		return "PAYTOOPRETURN"
	case PayToWitness:
		return "PAYTOWITNESS"
	case PayToP2SHWitness:
		return "PAYTOP2SHWITNESS"
	}
	return "UNKNOWN"
}

const (
	SighashAll    uint32 = 0x01
	SighashForkID uint32 = 0x40

	// ExtraDataChunkSize bounds a single host request for trailing
	// transaction metadata.
	ExtraDataChunkSize = 1024

	// BIP32WalletDepth is the number of path levels below the account.
	BIP32WalletDepth = 2

	HardenedKeyStart uint32 = 0x80000000
)

// signingPath is the routing decision for one input.
type signingPath int

const (
	pathLegacy signingPath = iota
	pathBip143
	pathSegwit
)

func (p signingPath) String() string {
	switch p {
	case pathLegacy:
		return "legacy"
	case pathBip143:
		return "bip143"
	case pathSegwit:
		return "segwit"
	}
	return "unknown"
}
