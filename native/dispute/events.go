package dispute

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/core/types"
	"splitescrow/native/escrow"
)

const (
	EventTypeChallenge       = "dispute.challenge"
	EventTypeSettlementOffer = "dispute.settlement_offer"
	EventTypeApproveOffer    = "dispute.approve_offer"
)

func newDisputeEvent(eventType string, id uint64, caller common.Address) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			escrow.AttrEscrowID: strconv.FormatUint(id, 10),
			"caller":            caller.Hex(),
		},
	}
}

func newChallengeEvent(esc *escrow.Escrow, caller common.Address) *types.Event {
	evt := newDisputeEvent(EventTypeChallenge, esc.ID, caller)
	evt.Attributes["consensus"] = escrow.FormatConsensus(esc.Consensus)
	evt.Attributes["split"] = escrow.FormatBips(esc.Split[:])
	evt.Attributes["challengePeriodStart"] = strconv.FormatInt(esc.ChallengePeriodStart, 10)
	evt.Attributes["challengePeriodEnd"] = strconv.FormatInt(esc.ChallengePeriodEnd, 10)
	return evt
}

func newOfferEvent(id uint64, caller common.Address, offer [2]uint16) *types.Event {
	evt := newDisputeEvent(EventTypeSettlementOffer, id, caller)
	evt.Attributes["offer"] = escrow.FormatBips(offer[:])
	return evt
}

func newApproveEvent(id uint64, caller common.Address, offer [2]uint16, payout *escrow.Payout) *types.Event {
	evt := newDisputeEvent(EventTypeApproveOffer, id, caller)
	evt.Attributes["offer"] = escrow.FormatBips(offer[:])
	escrow.PayoutAttributes(evt.Attributes, payout)
	return evt
}
