package arbitrator

import (
	"github.com/ethereum/go-ethereum/common"

	"splitescrow/native/escrow"
)

// Record is the arbitrator assignment of a single escrow. An arbitrator is
// bound only once both parties have consented.
type Record struct {
	Arbitrator      common.Address
	Fee             uint16
	BuyerConsensus  bool
	SellerConsensus bool
	Arbitrated      bool
}

// Clone returns a copy of the record. A nil record clones to an empty one.
func (r *Record) Clone() *Record {
	if r == nil {
		return &Record{}
	}
	clone := *r
	return &clone
}

// Bound reports whether both parties accepted the arbitrator.
func (r *Record) Bound() bool {
	return r != nil && r.Arbitrator != (common.Address{}) && r.BuyerConsensus && r.SellerConsensus
}

// Pending reports whether a proposal is waiting for the counter-party.
func (r *Record) Pending() bool {
	return r != nil && r.Arbitrator != (common.Address{}) && !r.Bound()
}

// ProposedBy reports whether the party at index who made the pending proposal.
func (r *Record) ProposedBy(who int) bool {
	if !r.Pending() {
		return false
	}
	if who == escrow.WhoBuyer {
		return r.BuyerConsensus
	}
	return r.SellerConsensus
}
