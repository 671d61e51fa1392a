package arbitrator

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/core/types"
	"splitescrow/native/escrow"
)

const (
	EventTypeProposed   = "arbitrator.proposed"
	EventTypeApproved   = "arbitrator.approved"
	EventTypeArbitrated = "arbitrator.arbitrated"
)

func newRecordEvent(eventType string, id uint64, caller common.Address, rec *Record) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			escrow.AttrEscrowID: strconv.FormatUint(id, 10),
			"caller":            caller.Hex(),
			"arbitrator":        rec.Arbitrator.Hex(),
			"fee":               strconv.FormatUint(uint64(rec.Fee), 10),
		},
	}
}

func newArbitratedEvent(id uint64, rec *Record, outcome [2]uint16, payout *escrow.Payout) *types.Event {
	evt := newRecordEvent(EventTypeArbitrated, id, rec.Arbitrator, rec)
	evt.Attributes["outcome"] = escrow.FormatBips(outcome[:])
	escrow.PayoutAttributes(evt.Attributes, payout)
	return evt
}
