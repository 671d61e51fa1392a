package dispute

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"splitescrow/native/arbitrator"
	"splitescrow/native/escrow"
)

var (
	buyer    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	seller   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	self     = common.HexToAddress("0x0000000000000000000000000000000000001003")
)

type memState struct {
	offers map[uint64]*Settlement
}

func (m *memState) SettlementGet(id uint64) (*Settlement, bool, error) {
	s, ok := m.offers[id]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

func (m *memState) SettlementPut(id uint64, s *Settlement) error {
	m.offers[id] = s.Clone()
	return nil
}

type stubLedger struct {
	esc *escrow.Escrow
}

func (l *stubLedger) GetEscrow(id uint64) (*escrow.Escrow, error) {
	if l.esc == nil || l.esc.ID != id {
		return nil, escrow.ErrNotFound
	}
	return l.esc.Clone(), nil
}

func (l *stubLedger) ApplySplitAndConsensus(caller common.Address, id uint64, split escrow.Split, consensus escrow.Consensus) error {
	if caller != self {
		return escrow.ErrUnauthorized
	}
	l.esc.Split = split
	l.esc.Consensus = consensus
	return nil
}

func (l *stubLedger) SetChallengeWindow(caller common.Address, id uint64, start, end int64) error {
	if caller != self {
		return escrow.ErrUnauthorized
	}
	l.esc.ChallengePeriodStart = start
	l.esc.ChallengePeriodEnd = end
	return nil
}

type stubArbitrators struct {
	rec arbitrator.Record
}

func (a *stubArbitrators) GetArbitratorData(uint64) (*arbitrator.Record, error) {
	return a.rec.Clone(), nil
}

type stubPreviewer struct {
	ledger *stubLedger
}

func (p *stubPreviewer) Preview(id uint64, reason escrow.SettleReason) (*escrow.Payout, error) {
	split := p.ledger.esc.Split.Widen()
	return &escrow.Payout{EscrowID: id, Reason: reason, Split: split, Amounts: escrow.ShareAmounts(p.ledger.esc.Amount, split)}, nil
}

type disputeFixture struct {
	engine *Engine
	ledger *stubLedger
	arbs   *stubArbitrators
	now    int64
}

func newDisputeFixture(t *testing.T) *disputeFixture {
	t.Helper()
	f := &disputeFixture{
		ledger: &stubLedger{esc: &escrow.Escrow{
			ID:                   4,
			Buyer:                buyer,
			Seller:               seller,
			Amount:               big.NewInt(100),
			ChallengePeriodStart: 100,
			ChallengePeriodEnd:   200,
			ChallengeExtension:   50,
			Split:                escrow.Split{0, 10_000, 0, 0},
		}},
		arbs: &stubArbitrators{},
		now:  150,
	}
	f.engine = NewEngine(self)
	f.engine.SetState(&memState{offers: map[uint64]*Settlement{}})
	f.engine.SetNowFunc(func() int64 { return f.now })
	f.engine.Bind(f.ledger, f.arbs, &stubPreviewer{ledger: f.ledger})
	return f
}

func TestChallengeRollsWindowAndFlipsSplit(t *testing.T) {
	f := newDisputeFixture(t)

	require.ErrorIs(t, f.engine.Challenge(stranger, 4), escrow.ErrUnauthorized)
	require.ErrorIs(t, f.engine.Challenge(seller, 4), ErrSellerCannotChallengeFirst)

	require.NoError(t, f.engine.Challenge(buyer, 4))
	esc := f.ledger.esc
	require.Equal(t, escrow.Consensus{1, -1}, esc.Consensus)
	require.Equal(t, escrow.Split{10_000, 0, 0, 0}, esc.Split)
	require.Equal(t, int64(200), esc.ChallengePeriodStart)
	require.Equal(t, int64(250), esc.ChallengePeriodEnd)

	// The counter-party may only answer once the new window opens.
	require.ErrorIs(t, f.engine.Challenge(seller, 4), ErrChallengeTooSoon)
	f.now = 210
	require.ErrorIs(t, f.engine.Challenge(buyer, 4), ErrChallengeTooSoon)
	require.NoError(t, f.engine.Challenge(seller, 4))
	require.Equal(t, escrow.Consensus{-1, 2}, esc.Consensus)
	require.Equal(t, escrow.Split{0, 10_000, 0, 0}, esc.Split)
	require.Equal(t, int64(300), esc.ChallengePeriodEnd)

	f.now = 301
	require.ErrorIs(t, f.engine.Challenge(buyer, 4), ErrChallengePeriodExpired)
}

func TestChallengeKeepsPayTimeFeeAndBoundsWindow(t *testing.T) {
	f := newDisputeFixture(t)
	f.ledger.esc.ProtocolFee = 100
	f.ledger.esc.ChallengeExtension = math.MaxUint64

	require.NoError(t, f.engine.Challenge(buyer, 4))
	require.Equal(t, int64(math.MaxInt64), f.ledger.esc.ChallengePeriodEnd)

	f.now = 201
	require.NoError(t, f.engine.Challenge(seller, 4))
	require.Equal(t, escrow.Split{0, 9900, 0, 100}, f.ledger.esc.Split)
	require.Equal(t, int64(math.MaxInt64), f.ledger.esc.ChallengePeriodStart)
}

func TestChallengeRejectedAfterArbitration(t *testing.T) {
	f := newDisputeFixture(t)
	f.arbs.rec = arbitrator.Record{Arbitrator: stranger, BuyerConsensus: true, SellerConsensus: true, Arbitrated: true}
	require.ErrorIs(t, f.engine.Challenge(buyer, 4), arbitrator.ErrAlreadyArbitrated)

	f = newDisputeFixture(t)
	f.ledger.esc.Claimed = true
	require.ErrorIs(t, f.engine.Challenge(buyer, 4), escrow.ErrAlreadyFinalized)
}

func TestSettlementOfferAndApproval(t *testing.T) {
	f := newDisputeFixture(t)

	require.ErrorIs(t, f.engine.OfferSettlement(buyer, 4, [2]uint16{6000, 5000}), ErrSplitExceedsLimit)
	require.ErrorIs(t, f.engine.OfferSettlement(buyer, 4, [2]uint16{4000, 5000}), escrow.ErrInvalidSplit)
	_, err := f.engine.ApproveSettlement(seller, 4, [2]uint16{5000, 5000})
	require.ErrorIs(t, err, ErrNoMatchingOffer)

	require.NoError(t, f.engine.OfferSettlement(buyer, 4, [2]uint16{5000, 5000}))
	details, err := f.engine.GetSettlementDetails(4)
	require.NoError(t, err)
	require.Equal(t, [2]uint16{5000, 5000}, details.Offer)
	require.Equal(t, buyer, details.By)
	require.True(t, f.ledger.esc.Consensus.Neutral())

	_, err = f.engine.ApproveSettlement(buyer, 4, [2]uint16{5000, 5000})
	require.ErrorIs(t, err, escrow.ErrUnauthorized)
	_, err = f.engine.ApproveSettlement(seller, 4, [2]uint16{4000, 6000})
	require.ErrorIs(t, err, ErrNoMatchingOffer)

	payout, err := f.engine.ApproveSettlement(seller, 4, [2]uint16{5000, 5000})
	require.NoError(t, err)
	require.Equal(t, escrow.ReasonClaim, payout.Reason)
	require.Equal(t, int64(50), payout.Amounts[escrow.WhoBuyer].Int64())
	require.Equal(t, escrow.Consensus{1, 1}, f.ledger.esc.Consensus)

	require.ErrorIs(t, f.engine.OfferSettlement(seller, 4, [2]uint16{0, 10_000}), escrow.ErrAlreadyFinalized)

	_, err = f.engine.GetSettlementDetails(5)
	require.ErrorIs(t, err, escrow.ErrNotFound)
}
