package claim

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"splitescrow/core/events"
	"splitescrow/native/arbitrator"
	"splitescrow/native/escrow"
)

var (
	buyer      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	seller     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	governance = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	judge      = common.HexToAddress("0x00000000000000000000000000000000000000a5")

	modules = escrow.Addresses{
		Ledger:     common.HexToAddress("0x0000000000000000000000000000000000001001"),
		Claim:      common.HexToAddress("0x0000000000000000000000000000000000001002"),
		Dispute:    common.HexToAddress("0x0000000000000000000000000000000000001003"),
		Arbitrator: common.HexToAddress("0x0000000000000000000000000000000000001004"),
	}
)

type stubLedger struct {
	escrows map[uint64]*escrow.Escrow
	sent    map[common.Address]int64
}

func (l *stubLedger) GetEscrow(id uint64) (*escrow.Escrow, error) {
	esc, ok := l.escrows[id]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	return esc.Clone(), nil
}

func (l *stubLedger) Params() (*escrow.Params, error) {
	return &escrow.Params{Governance: governance, ProtocolFee: 100}, nil
}

func (l *stubLedger) MarkClaimed(caller common.Address, id uint64) error {
	if caller != modules.Claim {
		return escrow.ErrUnauthorized
	}
	l.escrows[id].Claimed = true
	return nil
}

func (l *stubLedger) SendShare(caller, currency, to common.Address, amount *big.Int) error {
	if caller != modules.Claim {
		return escrow.ErrUnauthorized
	}
	l.sent[to] += amount.Int64()
	return nil
}

type stubArbitrators struct {
	records map[uint64]*arbitrator.Record
}

func (a *stubArbitrators) GetArbitratorData(id uint64) (*arbitrator.Record, error) {
	return a.records[id].Clone(), nil
}

func newClaimEngine(t *testing.T) (*Engine, *stubLedger, *stubArbitrators, *events.Buffer) {
	t.Helper()
	ledger := &stubLedger{
		escrows: map[uint64]*escrow.Escrow{
			0: {ID: 0, Buyer: buyer, Seller: seller, Amount: big.NewInt(1_000), ChallengePeriodEnd: 100, Split: escrow.Split{0, 9900, 0, 100}},
			1: {ID: 1, Buyer: buyer, Seller: seller, Amount: big.NewInt(1_000), ChallengePeriodEnd: 500, Split: escrow.Split{5000, 4950, 0, 50}, Consensus: escrow.Consensus{1, 1}},
			2: {ID: 2, Buyer: buyer, Seller: seller, Amount: big.NewInt(1_000), ChallengePeriodEnd: 500, Split: escrow.Split{0, 9900, 0, 100}},
		},
		sent: map[common.Address]int64{},
	}
	arbs := &stubArbitrators{records: map[uint64]*arbitrator.Record{
		1: {Arbitrator: judge, Fee: 200, BuyerConsensus: true, SellerConsensus: true},
	}}
	engine := NewEngine(modules.Claim)
	engine.Bind(modules, ledger, arbs)
	engine.SetNowFunc(func() int64 { return 101 })
	buffer := &events.Buffer{}
	engine.SetEmitter(buffer)
	return engine, ledger, arbs, buffer
}

func TestSingleClaimAfterTimeout(t *testing.T) {
	engine, ledger, _, buffer := newClaimEngine(t)

	payout, err := engine.SingleClaim(judge, 0)
	require.NoError(t, err)
	require.Equal(t, [5]uint16{0, 9900, 0, 100, 0}, payout.Split)
	require.Equal(t, int64(990), ledger.sent[seller])
	require.Equal(t, int64(10), ledger.sent[governance])
	require.Equal(t, int64(1_000), payout.Total().Int64())

	emitted := buffer.Drain()
	require.Len(t, emitted, 1)
	require.Equal(t, EventTypeClaimed, emitted[0].Type)
	require.Equal(t, "990", emitted[0].Attributes["amount.seller"])

	_, err = engine.SingleClaim(buyer, 0)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	_, err = engine.SingleClaim(buyer, 2)
	require.ErrorIs(t, err, ErrNotYetClaimable)
	_, err = engine.SingleClaim(buyer, 9)
	require.ErrorIs(t, err, escrow.ErrNotFound)
}

func TestAgreedClaimChargesArbitrator(t *testing.T) {
	engine, ledger, _, _ := newClaimEngine(t)

	preview, err := engine.Preview(1, escrow.ReasonClaim)
	require.NoError(t, err)
	require.Equal(t, [5]uint16{4900, 4850, 0, 50, 200}, preview.Split)
	require.False(t, ledger.escrows[1].Claimed)

	payout, err := engine.SingleClaim(buyer, 1)
	require.NoError(t, err)
	require.Equal(t, preview.Split, payout.Split)
	require.Equal(t, int64(20), ledger.sent[judge])
	require.Equal(t, int64(490), ledger.sent[buyer])
}

func TestSettleIsModuleOnly(t *testing.T) {
	engine, ledger, _, _ := newClaimEngine(t)

	_, err := engine.Settle(buyer, 2, escrow.ReasonRelease)
	require.ErrorIs(t, err, escrow.ErrUnauthorized)

	payout, err := engine.Settle(modules.Ledger, 2, escrow.ReasonRelease)
	require.NoError(t, err)
	require.Equal(t, escrow.ReasonRelease, payout.Reason)
	require.True(t, ledger.escrows[2].Claimed)

	// Release and refund never pay the arbitrator.
	payout, err = engine.Settle(modules.Ledger, 1, escrow.ReasonRefund)
	require.NoError(t, err)
	require.Zero(t, payout.Split[escrow.WhoArbitrator])
}

func TestBatchClaimStopsAtFirstFailure(t *testing.T) {
	engine, _, _, _ := newClaimEngine(t)

	_, err := engine.Claim(buyer, []uint64{0, 2})
	require.ErrorIs(t, err, ErrNotYetClaimable)
	require.Contains(t, err.Error(), "claim escrow 2")

	payouts, err := engine.Claim(buyer, nil)
	require.NoError(t, err)
	require.Empty(t, payouts)
}
