package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Participant indices shared by the 4-element stored split and the 5-element
// payout split. The arbitrator only ever appears in payout splits.
const (
	WhoBuyer       = 0
	WhoSeller      = 1
	WhoMarketplace = 2
	WhoProtocol    = 3
	WhoArbitrator  = 4
)

const (
	// TotalBips is 100% expressed in basis points.
	TotalBips uint32 = 10_000
	// MaxProtocolFeeBps caps the governance-controlled protocol fee (1%).
	MaxProtocolFeeBps uint16 = 100
)

// NativeCurrency is the sentinel used for escrows denominated in the native
// asset.
var NativeCurrency = common.Address{}

// Split is the effective distribution of an escrowed amount between buyer,
// seller, marketplace and protocol, in basis points.
type Split [4]uint16

// Sum returns the total basis points allocated by the split.
func (s Split) Sum() uint32 {
	var total uint32
	for _, v := range s {
		total += uint32(v)
	}
	return total
}

// Validate ensures the split allocates exactly the whole amount.
func (s Split) Validate() error {
	if s.Sum() != TotalBips {
		return ErrInvalidSplit
	}
	return nil
}

// Consensus tracks the negotiation state of an escrow as (buyer, seller).
// Positive values mean the side accepts the current split; the magnitude is
// the challenge round that produced it.
type Consensus [2]int16

// Neutral reports whether nobody has challenged or agreed yet.
func (c Consensus) Neutral() bool { return c[0] == 0 && c[1] == 0 }

// Agreed reports whether both sides accept the current split.
func (c Consensus) Agreed() bool { return c[0] > 0 && c[1] > 0 }

// Disputed reports whether exactly one side accepts the current split.
func (c Consensus) Disputed() bool { return !c.Neutral() && !c.Agreed() }

// Round returns the highest challenge count held by either side.
func (c Consensus) Round() int16 {
	return maxInt16(abs16(c[0]), abs16(c[1]))
}

// Ahead reports whether the given party (WhoBuyer or WhoSeller) currently
// holds the winning side of a dispute.
func (c Consensus) Ahead(who int) bool {
	if who != WhoBuyer && who != WhoSeller {
		return false
	}
	return c[who] > 0 && c[1-who] < 0
}

// Challenged returns the consensus after a challenge by who. Each side's
// magnitude counts its own challenges; the losing side turns negative.
func (c Consensus) Challenged(who int) Consensus {
	var next Consensus
	next[who] = abs16(c[who]) + 1
	next[1-who] = -maxInt16(abs16(c[1-who]), next[who]-1)
	return next
}

// Agreement returns the consensus recorded for a mutual agreement.
func (c Consensus) Agreement() Consensus {
	n := c.Round()
	if n < 1 {
		n = 1
	}
	return Consensus{n, n}
}

// Arbitrated returns the marker recorded once an arbitrator has decided.
func (c Consensus) Arbitrated() Consensus {
	return Consensus{abs16(c[0]) + 1, abs16(c[1])}
}

func abs16(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt16(a, b int16) int16 {
	if a > b {
		return a
	}
	return b
}

// DepositInput carries the user-supplied parameters of a new escrow.
type DepositInput struct {
	// Buyer defaults to the paying caller when left zero.
	Buyer              common.Address
	Seller             common.Address
	Marketplace        common.Address
	MarketplaceFee     uint16
	Currency           common.Address
	ChallengePeriod    uint64
	ChallengeExtension uint64
	Amount             *big.Int
}

// Escrow is the ledger record of a single payment held in custody.
type Escrow struct {
	ID                   uint64
	Buyer                common.Address
	Seller               common.Address
	Marketplace          common.Address
	MarketplaceFee       uint16
	Currency             common.Address
	Amount               *big.Int
	ChallengePeriodStart int64
	ChallengePeriodEnd   int64
	ChallengeExtension   uint64
	ProtocolFee          uint16 // fee in force at Pay; fixed for the escrow's lifetime
	Consensus            Consensus
	Split                Split
	Claimed              bool
	CreatedAt            int64
}

// Clone returns a deep copy of the escrow.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Amount = cloneBigInt(e.Amount)
	return &clone
}

// IsNative reports whether the escrow holds the native currency.
func (e *Escrow) IsNative() bool { return e != nil && e.Currency == NativeCurrency }

// Party resolves addr to WhoBuyer or WhoSeller.
func (e *Escrow) Party(addr common.Address) (int, bool) {
	if e == nil || addr == (common.Address{}) {
		return 0, false
	}
	switch addr {
	case e.Buyer:
		return WhoBuyer, true
	case e.Seller:
		return WhoSeller, true
	}
	return 0, false
}

// Counterparty returns the other party of the escrow.
func (e *Escrow) Counterparty(who int) common.Address {
	if who == WhoBuyer {
		return e.Seller
	}
	return e.Buyer
}

// Claimable reports whether the escrow can be paid out at now.
func (e *Escrow) Claimable(now int64) bool {
	if e == nil || e.Claimed {
		return false
	}
	return e.Consensus.Agreed() || now > e.ChallengePeriodEnd
}

// Params holds the governance-controlled settings of the ledger.
type Params struct {
	// Governance may change the parameters and receives protocol fees.
	Governance  common.Address
	ProtocolFee uint16
	Paused      bool
}

// Clone returns a copy of the parameters.
func (p *Params) Clone() *Params {
	if p == nil {
		return &Params{}
	}
	clone := *p
	return &clone
}

// Addresses is the address book of the four cooperating modules.
type Addresses struct {
	Ledger     common.Address
	Claim      common.Address
	Dispute    common.Address
	Arbitrator common.Address
}

// SettleReason identifies why a payout happened.
type SettleReason uint8

const (
	ReasonClaim SettleReason = iota
	ReasonRelease
	ReasonRefund
	ReasonArbitration
)

func (r SettleReason) String() string {
	switch r {
	case ReasonClaim:
		return "claim"
	case ReasonRelease:
		return "release"
	case ReasonRefund:
		return "refund"
	case ReasonArbitration:
		return "arbitration"
	default:
		return "unknown"
	}
}

// Payout describes the transfers executed (or previewed) for an escrow. All
// arrays are indexed by the Who* constants.
type Payout struct {
	EscrowID   uint64
	Currency   common.Address
	Reason     SettleReason
	Recipients [5]common.Address
	Split      [5]uint16
	Amounts    [5]*big.Int
}

// Total returns the sum of all payout amounts.
func (p *Payout) Total() *big.Int {
	total := big.NewInt(0)
	if p == nil {
		return total
	}
	for _, amt := range p.Amounts {
		if amt != nil {
			total.Add(total, amt)
		}
	}
	return total
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
