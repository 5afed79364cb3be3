package cryptoprovider

import "golang.org/x/crypto/blake2b"

// WorkThresholds are the per-epoch minimum difficulty constants named
// in spec §6. The node never computes work itself (the work-of-proof
// backend is an external collaborator, spec §1); it only validates a
// nonce a peer or local block supplies.
type WorkThresholds struct {
	Epoch1       uint64
	Epoch2       uint64
	Epoch2Receive uint64
}

// DefaultThresholds mirrors the production network's published
// constants (send/change difficulty tightened at epoch 2; receive
// blocks get a lower bar since they cannot be used to grief the
// network with unsolicited sends).
var DefaultThresholds = WorkThresholds{
	Epoch1:        0xffffffc000000000,
	Epoch2:        0xfffffff800000000,
	Epoch2Receive: 0xfffffe0000000000,
}

// Threshold selects the applicable difficulty floor for a block's
// epoch and send/receive classification (spec §4.1). epoch is the
// ordinal value of a types.Epoch, passed as uint8 to avoid an import
// cycle with package types.
func (t WorkThresholds) Threshold(epoch uint8, isReceive bool) uint64 {
	switch {
	case epoch >= 2 && isReceive:
		return t.Epoch2Receive
	case epoch >= 2:
		return t.Epoch2
	default:
		return t.Epoch1
	}
}

// Difficulty computes the low-8-bytes-as-uint64 PoW digest described
// in spec §6: the low 8 bytes of Blake2b(root || work) interpreted as
// a little-endian integer. Higher is "more work done".
func Difficulty(root [32]byte, work uint64) (uint64, error) {
	h, err := blake2b.New(8, nil)
	if err != nil {
		return 0, err
	}
	var workBytes [8]byte
	// work nonce is little-endian on the wire (spec §4.1 state block layout).
	for i := 0; i < 8; i++ {
		workBytes[i] = byte(work >> (8 * i))
	}
	if _, err := h.Write(root[:]); err != nil {
		return 0, err
	}
	if _, err := h.Write(workBytes[:]); err != nil {
		return 0, err
	}
	sum := h.Sum(nil)
	var d uint64
	for i := 7; i >= 0; i-- {
		d = (d << 8) | uint64(sum[i])
	}
	return d, nil
}

// ValidateWork is the `validate_work(root, work) -> bool` oracle spec
// §1 names as an external collaborator; it is implemented here rather
// than stubbed out because validating a supplied nonce needs no
// computation backend, only the hash above and a threshold compare.
func ValidateWork(root [32]byte, work uint64, threshold uint64) bool {
	d, err := Difficulty(root, work)
	if err != nil {
		return false
	}
	return d >= threshold
}
