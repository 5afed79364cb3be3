package types

// BlockDetails captures the derived classification of a block that the
// wire format packs into the sideband and the extensions field of a
// Publish message (spec §4.1).
type BlockDetails struct {
	Epoch     Epoch
	IsSend    bool
	IsReceive bool
	IsEpoch   bool
}

// Sideband is metadata stored alongside a block but never hashed as
// part of it (spec Glossary: "Sideband").
type Sideband struct {
	Height      uint64
	Timestamp   uint64
	Successor   Hash // zero until a successor is written
	Account     Account
	Balance     Amount
	Details     BlockDetails
	SourceEpoch Epoch // epoch of the matched send, for receives only
}

// SavedBlock is a block plus the sideband computed when it was
// accepted by the ledger. Once written it is never mutated except for
// Sideband.Successor, which is filled in when the next block on the
// chain is processed.
type SavedBlock struct {
	Hash  Hash
	Block Block
	Side  Sideband
}

// AccountInfo is the full on-disk state of one account-chain (spec §3).
type AccountInfo struct {
	Head           Hash
	Open           Hash
	Representative Account
	Balance        Amount
	ModifiedTime   uint64
	BlockCount     uint64
	Epoch          Epoch
}

// PendingKey identifies one outstanding receivable: a send's
// destination account plus the send block's hash.
type PendingKey struct {
	Account Account
	Hash    Hash
}

// PendingInfo is the receivable amount and provenance for a PendingKey.
type PendingInfo struct {
	Source      Account
	Amount      Amount
	SourceEpoch Epoch
}

// ConfirmationHeightInfo is the irreversible-height marker for one
// account.
type ConfirmationHeightInfo struct {
	Height   uint64
	Frontier Hash
}
