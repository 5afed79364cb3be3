package types

// Account is a 32-byte public key identity.
type Account [32]byte

// Hash is a 32-byte Blake2b-256 content digest (block hash, source
// hash, etc).
type Hash [32]byte

// Signature is a 64-byte signature over a block's or vote's content
// hash.
type Signature [64]byte

var ZeroHash Hash

// BlockType tags the six-variant block sum type.
type BlockType uint8

const (
	BlockTypeInvalid BlockType = iota
	BlockTypeLegacyOpen
	BlockTypeLegacyReceive
	BlockTypeLegacySend
	BlockTypeLegacyChange
	BlockTypeState
	BlockTypeNotABlock
)

func (t BlockType) String() string {
	switch t {
	case BlockTypeLegacyOpen:
		return "legacy_open"
	case BlockTypeLegacyReceive:
		return "legacy_receive"
	case BlockTypeLegacySend:
		return "legacy_send"
	case BlockTypeLegacyChange:
		return "legacy_change"
	case BlockTypeState:
		return "state"
	case BlockTypeNotABlock:
		return "not_a_block"
	default:
		return "invalid"
	}
}

// Block is the tagged-variant sum type described in spec §3 and §9.
// Dispatch is exhaustive switch on Type; the hash is computed on
// demand by the wire codec (wire.BlockHash) and is not cached anywhere
// — Block itself carries no derived state.
type Block struct {
	Type BlockType

	// Shared across all variants.
	Signature Signature
	Work      uint64

	Open    *LegacyOpenFields
	Receive *LegacyReceiveFields
	Send    *LegacySendFields
	Change  *LegacyChangeFields
	State   *StateFields
}

type LegacyOpenFields struct {
	Account        Account
	Source         Hash
	Representative Account
}

type LegacyReceiveFields struct {
	Previous Hash
	Source   Hash
}

type LegacySendFields struct {
	Previous    Hash
	Destination Account
	Balance     Amount // 16-byte legacy balance, no previous-balance delta stored on wire
}

type LegacyChangeFields struct {
	Previous       Hash
	Representative Account
}

// StateFields is the universal block form. Link is either a source
// hash (receive), a destination account (send), or an epoch marker
// (epoch block); which one it is follows from Balance's delta against
// the account's previous balance, not from any wire tag.
type StateFields struct {
	Account        Account
	Previous       Hash
	Representative Account
	Balance        Amount
	Link           [32]byte
}

// Root returns the block's "election root": for a non-open block this
// is Previous; for an open block it is the Account itself. Forks and
// elections are keyed by (root, account-for-opens).
func (b *Block) Root() (Hash, error) {
	switch b.Type {
	case BlockTypeState:
		if b.State.Previous == ZeroHash {
			return Hash(b.State.Account), nil
		}
		return b.State.Previous, nil
	case BlockTypeLegacyOpen:
		return Hash(b.Open.Account), nil
	case BlockTypeLegacyReceive:
		return b.Receive.Previous, nil
	case BlockTypeLegacySend:
		return b.Send.Previous, nil
	case BlockTypeLegacyChange:
		return b.Change.Previous, nil
	default:
		return ZeroHash, errBlock("root: invalid block type")
	}
}

// Previous returns the zero hash for an open block (no predecessor).
func (b *Block) Previous() Hash {
	switch b.Type {
	case BlockTypeState:
		return b.State.Previous
	case BlockTypeLegacyOpen:
		return ZeroHash
	case BlockTypeLegacyReceive:
		return b.Receive.Previous
	case BlockTypeLegacySend:
		return b.Send.Previous
	case BlockTypeLegacyChange:
		return b.Change.Previous
	default:
		return ZeroHash
	}
}

type blockError string

func (e blockError) Error() string { return "types: block: " + string(e) }
func errBlock(msg string) error    { return blockError(msg) }
