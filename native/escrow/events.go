package escrow

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/core/types"
)

const (
	EventTypeEscrowPaid          = "escrow.pay"
	EventTypeEscrowReleased      = "escrow.release"
	EventTypeEscrowRefunded      = "escrow.refund"
	EventTypeProtocolFeeUpdated  = "escrow.protocol_fee"
	EventTypeGovernanceUpdated   = "escrow.governance"
	EventTypeDepositPauseUpdated = "escrow.paused"
)

// AttrEscrowID is the attribute key every escrow-scoped event carries.
const AttrEscrowID = "escrowId"

var payoutAttrNames = [5]string{"buyer", "seller", "marketplace", "protocol", "arbitrator"}

// NewPaidEvent returns the canonical event payload for a newly funded escrow.
func NewPaidEvent(e *Escrow, arbitrator common.Address, arbitratorFee uint16) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowPaid, e)
	if arbitrator != (common.Address{}) {
		evt.Attributes["arbitrator"] = arbitrator.Hex()
		evt.Attributes["arbitratorFee"] = strconv.FormatUint(uint64(arbitratorFee), 10)
	}
	return evt
}

// NewReleasedEvent returns the payload for a buyer release, including the
// amounts paid out.
func NewReleasedEvent(e *Escrow, payout *Payout) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowReleased, e)
	PayoutAttributes(evt.Attributes, payout)
	return evt
}

// NewRefundedEvent returns the payload for a seller refund.
func NewRefundedEvent(e *Escrow, payout *Payout) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowRefunded, e)
	PayoutAttributes(evt.Attributes, payout)
	return evt
}

func newParamsEvent(eventType string, p *Params) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"governance":  p.Governance.Hex(),
			"protocolFee": strconv.FormatUint(uint64(p.ProtocolFee), 10),
			"paused":      strconv.FormatBool(p.Paused),
		},
	}
}

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := map[string]string{}
	if e != nil {
		attrs[AttrEscrowID] = strconv.FormatUint(e.ID, 10)
		attrs["buyer"] = e.Buyer.Hex()
		attrs["seller"] = e.Seller.Hex()
		attrs["currency"] = e.Currency.Hex()
		attrs["amount"] = cloneBigInt(e.Amount).String()
		attrs["challengePeriodStart"] = strconv.FormatInt(e.ChallengePeriodStart, 10)
		attrs["challengePeriodEnd"] = strconv.FormatInt(e.ChallengePeriodEnd, 10)
		attrs["consensus"] = FormatConsensus(e.Consensus)
		attrs["split"] = FormatBips(e.Split[:])
		if e.Marketplace != (common.Address{}) {
			attrs["marketplace"] = e.Marketplace.Hex()
			attrs["marketplaceFee"] = strconv.FormatUint(uint64(e.MarketplaceFee), 10)
		}
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// PayoutAttributes renders the per-recipient amounts of a payout into attrs
// using the keys "amount.<recipient>".
func PayoutAttributes(attrs map[string]string, payout *Payout) {
	if attrs == nil || payout == nil {
		return
	}
	attrs["reason"] = payout.Reason.String()
	for i, name := range payoutAttrNames {
		amt := payout.Amounts[i]
		if amt == nil {
			amt = big.NewInt(0)
		}
		attrs["amount."+name] = amt.String()
	}
}

// FormatConsensus renders a consensus pair as "buyer,seller".
func FormatConsensus(c Consensus) string {
	return strconv.FormatInt(int64(c[0]), 10) + "," + strconv.FormatInt(int64(c[1]), 10)
}

// FormatBips renders basis point values as a comma separated list.
func FormatBips(values []uint16) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ",")
}
