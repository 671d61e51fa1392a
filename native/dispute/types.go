package dispute

import "github.com/ethereum/go-ethereum/common"

// Settlement is the latest settlement offer recorded for an escrow. By is the
// zero address when no offer was made.
type Settlement struct {
	Offer [2]uint16
	By    common.Address
}

// Clone returns a copy of the settlement. A nil settlement clones to an empty
// one.
func (s *Settlement) Clone() *Settlement {
	if s == nil {
		return &Settlement{}
	}
	clone := *s
	return &clone
}

// Pending reports whether an offer is waiting for approval.
func (s *Settlement) Pending() bool {
	return s != nil && s.By != (common.Address{})
}
