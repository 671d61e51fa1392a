package escrow_test

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"splitescrow/core/events"
	"splitescrow/core/state"
	"splitescrow/native/bank"
	nativecommon "splitescrow/native/common"
	"splitescrow/native/escrow"
	"splitescrow/storage"
)

var (
	buyer       = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	seller      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	marketplace = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	governance  = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	judge       = common.HexToAddress("0x00000000000000000000000000000000000000a5")
	token       = common.HexToAddress("0x00000000000000000000000000000000000000c0")

	modules = escrow.Addresses{
		Ledger:     common.HexToAddress("0x0000000000000000000000000000000000001001"),
		Claim:      common.HexToAddress("0x0000000000000000000000000000000000001002"),
		Dispute:    common.HexToAddress("0x0000000000000000000000000000000000001003"),
		Arbitrator: common.HexToAddress("0x0000000000000000000000000000000000001004"),
	}
)

type arbitratorCall struct {
	caller common.Address
	id     uint64
	arb    common.Address
	fee    uint16
}

type stubRegistry struct {
	invalid common.Address
	calls   []arbitratorCall
}

func (r *stubRegistry) ValidateArbitrator(b, s, arb common.Address) error {
	if arb == r.invalid || arb == b || arb == s {
		return nativecommon.NewError("arbitrator", "InvalidArbitrator", "invalid arbitrator")
	}
	return nil
}

func (r *stubRegistry) SetArbitrator(caller common.Address, id uint64, arb common.Address, fee uint16) error {
	r.calls = append(r.calls, arbitratorCall{caller: caller, id: id, arb: arb, fee: fee})
	return nil
}

type stubSettler struct {
	ledger  *escrow.Engine
	reasons []escrow.SettleReason
}

func (s *stubSettler) Settle(caller common.Address, id uint64, reason escrow.SettleReason) (*escrow.Payout, error) {
	esc, err := s.ledger.GetEscrow(id)
	if err != nil {
		return nil, err
	}
	s.reasons = append(s.reasons, reason)
	split := esc.Split.Widen()
	return &escrow.Payout{
		EscrowID: id,
		Currency: esc.Currency,
		Reason:   reason,
		Split:    split,
		Amounts:  escrow.ShareAmounts(esc.Amount, split),
	}, nil
}

type ledgerFixture struct {
	engine   *escrow.Engine
	bank     *bank.Keeper
	registry *stubRegistry
	settler  *stubSettler
	buffer   *events.Buffer
	now      int64
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	manager := state.NewManager(state.NewJournal(storage.NewMemDB()))
	require.NoError(t, manager.EscrowSetParams(&escrow.Params{Governance: governance, ProtocolFee: 100}))

	f := &ledgerFixture{
		engine:   escrow.NewEngine(modules.Ledger),
		bank:     bank.NewKeeper(),
		registry: &stubRegistry{},
		buffer:   &events.Buffer{},
		now:      1_000,
	}
	f.settler = &stubSettler{ledger: f.engine}
	f.bank.SetState(manager)
	f.engine.SetState(manager)
	f.engine.SetEmitter(f.buffer)
	f.engine.SetNowFunc(func() int64 { return f.now })
	f.engine.Bind(modules, f.bank, f.registry, f.settler)

	require.NoError(t, f.bank.Credit(buyer, escrow.NativeCurrency, big.NewInt(1_000)))
	require.NoError(t, f.bank.Credit(buyer, token, big.NewInt(1_000)))
	return f
}

func (f *ledgerFixture) pay(t *testing.T, amount int64) uint64 {
	t.Helper()
	id, err := f.engine.Pay(buyer, big.NewInt(amount), escrow.DepositInput{
		Seller:          seller,
		Marketplace:     marketplace,
		MarketplaceFee:  500,
		ChallengePeriod: 60,
		Amount:          big.NewInt(amount),
	}, common.Address{}, 0)
	require.NoError(t, err)
	return id
}

func TestPayTakesCustodyAndStoresRecord(t *testing.T) {
	f := newLedgerFixture(t)
	id := f.pay(t, 100)
	require.Zero(t, id)

	esc, err := f.engine.GetEscrow(id)
	require.NoError(t, err)
	require.Equal(t, buyer, esc.Buyer)
	require.Equal(t, escrow.Split{0, 9400, 500, 100}, esc.Split)
	require.True(t, esc.Consensus.Neutral())
	require.Equal(t, int64(1_000), esc.ChallengePeriodStart)
	require.Equal(t, int64(1_060), esc.ChallengePeriodEnd)
	require.Equal(t, uint64(60), esc.ChallengeExtension)

	custody, err := f.bank.Balance(modules.Ledger, escrow.NativeCurrency)
	require.NoError(t, err)
	require.Equal(t, int64(100), custody.Int64())

	emitted := f.buffer.Drain()
	require.NotEmpty(t, emitted)
	last := emitted[len(emitted)-1]
	require.Equal(t, escrow.EventTypeEscrowPaid, last.Type)
	require.Equal(t, "0", last.Attributes[escrow.AttrEscrowID])

	count, err := f.engine.EscrowCount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
}

func TestPayTokenPullsAllowanceAndInstallsArbitrator(t *testing.T) {
	f := newLedgerFixture(t)
	in := escrow.DepositInput{Seller: seller, Currency: token, ChallengePeriod: 30, ChallengeExtension: 10, Amount: big.NewInt(200)}

	_, err := f.engine.Pay(buyer, nil, in, judge, 100)
	require.ErrorIs(t, err, bank.ErrInsufficientAllowance)

	require.NoError(t, f.bank.Approve(buyer, modules.Ledger, token, big.NewInt(200)))
	_, err = f.engine.Pay(buyer, big.NewInt(1), in, judge, 100)
	require.ErrorIs(t, err, escrow.ErrCurrencyMismatch)

	id, err := f.engine.Pay(buyer, nil, in, judge, 100)
	require.NoError(t, err)
	require.Equal(t, []arbitratorCall{{caller: modules.Ledger, id: id, arb: judge, fee: 100}}, f.registry.calls)

	esc, err := f.engine.GetEscrow(id)
	require.NoError(t, err)
	require.Equal(t, uint64(10), esc.ChallengeExtension)

	custody, err := f.bank.Balance(modules.Ledger, token)
	require.NoError(t, err)
	require.Equal(t, int64(200), custody.Int64())
}

func TestPayRejectsInvalidInput(t *testing.T) {
	f := newLedgerFixture(t)
	base := escrow.DepositInput{Seller: seller, ChallengePeriod: 60, Amount: big.NewInt(10)}

	cases := []struct {
		name   string
		mutate func(*escrow.DepositInput)
		value  int64
		arb    common.Address
		arbFee uint16
		err    error
	}{
		{name: "self dealing", mutate: func(in *escrow.DepositInput) { in.Seller = buyer }, value: 10, err: escrow.ErrInvalidParty},
		{name: "missing seller", mutate: func(in *escrow.DepositInput) { in.Seller = common.Address{} }, value: 10, err: escrow.ErrInvalidParty},
		{name: "zero amount", mutate: func(in *escrow.DepositInput) { in.Amount = big.NewInt(0) }, value: 0, err: escrow.ErrZeroAmount},
		{name: "fee without marketplace", mutate: func(in *escrow.DepositInput) { in.MarketplaceFee = 100 }, value: 10, err: escrow.ErrInvalidFeeConfiguration},
		{name: "fee without arbitrator", mutate: func(*escrow.DepositInput) {}, value: 10, arbFee: 100, err: escrow.ErrInvalidFeeConfiguration},
		{name: "fees above total", mutate: func(in *escrow.DepositInput) { in.Marketplace = marketplace; in.MarketplaceFee = 9_950 }, value: 10, arb: judge, arbFee: 1, err: escrow.ErrInvalidFeeConfiguration},
		{name: "zero period", mutate: func(in *escrow.DepositInput) { in.ChallengePeriod = 0 }, value: 10, err: escrow.ErrInvalidChallengePeriod},
		{name: "period past max timestamp", mutate: func(in *escrow.DepositInput) { in.ChallengePeriod = ^uint64(0) - 999 }, value: 10, err: escrow.ErrInvalidChallengePeriod},
		{name: "period one past max timestamp", mutate: func(in *escrow.DepositInput) { in.ChallengePeriod = math.MaxInt64 - 999 }, value: 10, err: escrow.ErrInvalidChallengePeriod},
		{name: "extension past max timestamp", mutate: func(in *escrow.DepositInput) { in.ChallengeExtension = math.MaxInt64 }, value: 10, err: escrow.ErrInvalidChallengePeriod},
		{name: "value mismatch", mutate: func(*escrow.DepositInput) {}, value: 9, err: escrow.ErrCurrencyMismatch},
		{name: "arbitrator is party", mutate: func(*escrow.DepositInput) {}, value: 10, arb: seller, err: nativecommon.NewError("arbitrator", "InvalidArbitrator", "")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			in.Amount = new(big.Int).Set(base.Amount)
			tc.mutate(&in)
			_, err := f.engine.Pay(buyer, big.NewInt(tc.value), in, tc.arb, tc.arbFee)
			require.ErrorIs(t, err, tc.err)
		})
	}

	count, err := f.engine.EscrowCount()
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestReleaseAndRefundFinalize(t *testing.T) {
	f := newLedgerFixture(t)
	id := f.pay(t, 100)

	_, err := f.engine.Release(seller, id)
	require.ErrorIs(t, err, escrow.ErrUnauthorized)

	payout, err := f.engine.Release(buyer, id)
	require.NoError(t, err)
	require.Equal(t, escrow.ReasonRelease, payout.Reason)
	require.Equal(t, [5]uint16{0, 9400, 500, 100, 0}, payout.Split)

	esc, err := f.engine.GetEscrow(id)
	require.NoError(t, err)
	require.True(t, esc.Consensus.Agreed())

	refundID := f.pay(t, 100)
	_, err = f.engine.Refund(buyer, refundID)
	require.ErrorIs(t, err, escrow.ErrUnauthorized)
	payout, err = f.engine.Refund(seller, refundID)
	require.NoError(t, err)
	require.Equal(t, [5]uint16{10_000, 0, 0, 0, 0}, payout.Split)
	require.Equal(t, []escrow.SettleReason{escrow.ReasonRelease, escrow.ReasonRefund}, f.settler.reasons)

	_, err = f.engine.Release(buyer, 99)
	require.ErrorIs(t, err, escrow.ErrNotFound)
}

func TestReleaseUsesProtocolFeeFromPay(t *testing.T) {
	f := newLedgerFixture(t)
	id := f.pay(t, 100)
	require.NoError(t, f.engine.UpdateProtocolFee(governance, 0))

	esc, err := f.engine.GetEscrow(id)
	require.NoError(t, err)
	require.Equal(t, uint16(100), esc.ProtocolFee)

	payout, err := f.engine.Release(buyer, id)
	require.NoError(t, err)
	require.Equal(t, [5]uint16{0, 9400, 500, 100, 0}, payout.Split)

	later := f.pay(t, 100)
	esc, err = f.engine.GetEscrow(later)
	require.NoError(t, err)
	require.Zero(t, esc.ProtocolFee)
	require.Equal(t, escrow.Split{0, 9500, 500, 0}, esc.Split)
}

func TestRefundBlockedWhileSellerChallengeRuns(t *testing.T) {
	f := newLedgerFixture(t)
	id := f.pay(t, 100)

	split, err := escrow.OutcomeSplit(0, 10_000, 500, 100)
	require.NoError(t, err)
	require.NoError(t, f.engine.ApplySplitAndConsensus(modules.Dispute, id, split, escrow.Consensus{-1, 1}))

	_, err = f.engine.Refund(seller, id)
	require.ErrorIs(t, err, escrow.ErrChallengeActive)

	f.now = 1_061
	_, err = f.engine.Refund(seller, id)
	require.NoError(t, err)
}

func TestModuleOnlyMutators(t *testing.T) {
	f := newLedgerFixture(t)
	id := f.pay(t, 100)
	split := escrow.Split{5000, 5000, 0, 0}

	require.ErrorIs(t, f.engine.ApplySplitAndConsensus(buyer, id, split, escrow.Consensus{}), escrow.ErrUnauthorized)
	require.ErrorIs(t, f.engine.ApplySplitAndConsensus(modules.Claim, id, split, escrow.Consensus{}), escrow.ErrUnauthorized)
	require.ErrorIs(t, f.engine.ApplySplitAndConsensus(modules.Dispute, id, escrow.Split{5000, 4000, 0, 0}, escrow.Consensus{}), escrow.ErrInvalidSplit)
	require.NoError(t, f.engine.ApplySplitAndConsensus(modules.Arbitrator, id, split, escrow.Consensus{2, 1}))

	require.ErrorIs(t, f.engine.SetChallengeWindow(modules.Arbitrator, id, 1, 2), escrow.ErrUnauthorized)
	require.NoError(t, f.engine.SetChallengeWindow(modules.Dispute, id, 1_060, 1_120))

	require.ErrorIs(t, f.engine.MarkClaimed(buyer, id), escrow.ErrUnauthorized)
	require.ErrorIs(t, f.engine.SendShare(buyer, escrow.NativeCurrency, buyer, big.NewInt(1)), escrow.ErrUnauthorized)
	require.NoError(t, f.engine.SendShare(modules.Claim, escrow.NativeCurrency, seller, big.NewInt(40)))
	require.NoError(t, f.engine.MarkClaimed(modules.Claim, id))
	require.ErrorIs(t, f.engine.MarkClaimed(modules.Claim, id), escrow.ErrAlreadyFinalized)
	require.ErrorIs(t, f.engine.ApplySplitAndConsensus(modules.Dispute, id, split, escrow.Consensus{}), escrow.ErrAlreadyFinalized)

	esc, err := f.engine.GetEscrow(id)
	require.NoError(t, err)
	require.True(t, esc.Claimed)
	require.Equal(t, int64(1_120), esc.ChallengePeriodEnd)

	sellerBalance, err := f.bank.Balance(seller, escrow.NativeCurrency)
	require.NoError(t, err)
	require.Equal(t, int64(40), sellerBalance.Int64())
}

func TestGovernanceParameters(t *testing.T) {
	f := newLedgerFixture(t)

	require.ErrorIs(t, f.engine.UpdateProtocolFee(buyer, 50), escrow.ErrUnauthorized)
	require.ErrorIs(t, f.engine.UpdateProtocolFee(governance, escrow.MaxProtocolFeeBps+1), escrow.ErrInvalidFeeConfiguration)
	require.NoError(t, f.engine.UpdateProtocolFee(governance, 50))

	require.NoError(t, f.engine.SetPaused(governance, true))
	require.True(t, f.engine.IsPaused(escrow.ModuleName))
	_, err := f.engine.Pay(buyer, big.NewInt(10), escrow.DepositInput{Seller: seller, ChallengePeriod: 60, Amount: big.NewInt(10)}, common.Address{}, 0)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	require.NoError(t, f.engine.SetPaused(governance, false))

	next := common.HexToAddress("0x00000000000000000000000000000000000000a9")
	require.ErrorIs(t, f.engine.UpdateGovernance(governance, common.Address{}), escrow.ErrInvalidParty)
	require.NoError(t, f.engine.UpdateGovernance(governance, next))
	require.ErrorIs(t, f.engine.UpdateProtocolFee(governance, 10), escrow.ErrUnauthorized)

	params, err := f.engine.Params()
	require.NoError(t, err)
	require.Equal(t, &escrow.Params{Governance: next, ProtocolFee: 50}, params)
}
