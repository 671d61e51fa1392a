package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"splitescrow/core"
	"splitescrow/indexer"
	"splitescrow/native/escrow"
	"splitescrow/storage"
)

const (
	testSecret  = "integration-secret"
	testIssuer  = "splitescrow"
	genesisTime = int64(1_700_000_000)
)

var (
	deployer   = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	governance = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	buyer      = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	seller     = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	stranger   = common.HexToAddress("0x0000000000000000000000000000000000000b03")
)

type testServer struct {
	t       *testing.T
	now     int64
	proc    *core.Processor
	hub     *Hub
	handler http.Handler
}

type rpcResult struct {
	status int
	resp   struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
}

func newTestServer(t *testing.T, cfg Config, history History) *testServer {
	t.Helper()
	ts := &testServer{t: t, now: genesisTime}
	ts.hub = NewHub(nil)
	ts.proc = core.NewProcessor(storage.NewMemDB(), deployer, 0,
		core.WithNowFunc(func() int64 { return ts.now }),
		core.WithSink(ts.hub),
	)
	_, err := ts.proc.InitGenesis(context.Background(), core.Genesis{
		Governance: governance,
		Allocations: []core.GenesisAllocation{
			{Owner: buyer, Currency: escrow.NativeCurrency, Amount: big.NewInt(1_000_000)},
		},
	})
	require.NoError(t, err)
	srv, err := NewServer(ts.proc, cfg, nil, ts.hub, history)
	require.NoError(t, err)
	ts.handler = srv.Router()
	return ts
}

func authConfig() Config {
	return Config{
		Auth:      AuthConfig{Enabled: true, Secret: testSecret, Issuer: testIssuer},
		RateLimit: RateLimit{RequestsPerSecond: 1000, Burst: 1000},
	}
}

func headerConfig() Config {
	return Config{
		Auth:      AuthConfig{AllowCallerHeader: true},
		RateLimit: RateLimit{RequestsPerSecond: 1000, Burst: 1000},
	}
}

func (ts *testServer) token(subject common.Address) string {
	ts.t.Helper()
	token, err := IssueToken(testSecret, testIssuer, subject, time.Hour)
	require.NoError(ts.t, err)
	return token
}

func (ts *testServer) call(headers map[string]string, method string, params interface{}) rpcResult {
	ts.t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(ts.t, err)
	httpReq := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httpReq)

	var out rpcResult
	out.status = rec.Code
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &out.resp))
	return out
}

func (ts *testServer) callAs(caller common.Address, method string, params interface{}) rpcResult {
	return ts.call(map[string]string{"Authorization": "Bearer " + ts.token(caller)}, method, params)
}

func (ts *testServer) callHeader(caller common.Address, method string, params interface{}) rpcResult {
	return ts.call(map[string]string{CallerHeader: caller.Hex()}, method, params)
}

func decodeResult(t *testing.T, res rpcResult, dst interface{}) {
	t.Helper()
	require.Nil(t, res.resp.Error, "unexpected rpc error")
	require.Equal(t, http.StatusOK, res.status)
	require.NoError(t, json.Unmarshal(res.resp.Result, dst))
}

func payParams(amount string) escrowPayParams {
	return escrowPayParams{
		Seller:          seller.Hex(),
		ChallengePeriod: 3600,
		Amount:          amount,
		Value:           amount,
	}
}

func TestAuthenticatedPayAndClaimFlow(t *testing.T) {
	ts := newTestServer(t, authConfig(), nil)

	var paid escrowPayResult
	decodeResult(t, ts.callAs(buyer, "escrow_pay", payParams("1000")), &paid)
	require.Equal(t, "0", paid.ID)

	var esc escrowJSON
	decodeResult(t, ts.call(nil, "escrow_get", escrowIDParams{ID: paid.ID}), &esc)
	require.Equal(t, buyer.Hex(), esc.Buyer)
	require.Equal(t, "1000", esc.Amount)
	require.Equal(t, genesisTime+3600, esc.ChallengePeriodEnd)

	res := ts.callAs(seller, "claim_single", escrowIDParams{ID: paid.ID})
	require.Equal(t, http.StatusConflict, res.status)
	require.Equal(t, codeEscrowConflict, res.resp.Error.Code)

	ts.now += 3601
	var payout payoutJSON
	decodeResult(t, ts.callAs(seller, "claim_single", escrowIDParams{ID: paid.ID}), &payout)
	require.Equal(t, "claim", payout.Reason)
	require.Equal(t, "1000", payout.Amounts["seller"])
	require.Equal(t, "0", payout.Amounts["buyer"])

	var balance amountJSON
	decodeResult(t, ts.call(nil, "bank_balance", bankQueryParams{Owner: seller.Hex()}), &balance)
	require.Equal(t, "1000", balance.Amount)

	var count map[string]string
	decodeResult(t, ts.call(nil, "escrow_count", nil), &count)
	require.Equal(t, "1", count["count"])
}

func TestMutationsRequireCaller(t *testing.T) {
	ts := newTestServer(t, authConfig(), nil)

	res := ts.call(nil, "escrow_pay", payParams("10"))
	require.Equal(t, http.StatusUnauthorized, res.status)
	require.Equal(t, codeUnauthorized, res.resp.Error.Code)

	res = ts.call(map[string]string{"Authorization": "Bearer not-a-token"}, "escrow_pay", payParams("10"))
	require.Equal(t, http.StatusUnauthorized, res.status)

	wrongIssuer, err := IssueToken(testSecret, "someone-else", buyer, time.Hour)
	require.NoError(t, err)
	res = ts.call(map[string]string{"Authorization": "Bearer " + wrongIssuer}, "escrow_pay", payParams("10"))
	require.Equal(t, http.StatusUnauthorized, res.status)

	// The caller header is ignored once tokens are enforced.
	res = ts.callHeader(buyer, "escrow_pay", payParams("10"))
	require.Equal(t, http.StatusUnauthorized, res.status)
}

func TestErrorsMapToStatus(t *testing.T) {
	ts := newTestServer(t, headerConfig(), nil)
	var paid escrowPayResult
	decodeResult(t, ts.callHeader(buyer, "escrow_pay", payParams("500")), &paid)

	cases := []struct {
		name   string
		caller common.Address
		method string
		params interface{}
		status int
		code   int
		data   string
	}{
		{name: "unknown escrow", method: "escrow_get", params: escrowIDParams{ID: "42"}, status: http.StatusNotFound, code: codeEscrowNotFound, data: "NotFound"},
		{name: "stranger release", caller: stranger, method: "escrow_release", params: escrowIDParams{ID: paid.ID}, status: http.StatusForbidden, code: codeEscrowForbidden, data: "Unauthorized"},
		{name: "zero amount", caller: buyer, method: "escrow_pay", params: payParams("0"), status: http.StatusBadRequest, code: codeEscrowInvalid, data: "ZeroAmount"},
		{name: "oversized offer", caller: buyer, method: "dispute_offerSettlement", params: escrowOutcomeParams{ID: paid.ID, Buyer: 9000, Seller: 2000}, status: http.StatusBadRequest, code: codeEscrowInvalid, data: "SplitExceedsLimit"},
		{name: "insufficient balance", caller: stranger, method: "escrow_pay", params: escrowPayParams{Buyer: stranger.Hex(), Seller: seller.Hex(), ChallengePeriod: 1, Amount: "5", Value: "5"}, status: http.StatusConflict, code: codeEscrowConflict, data: "InsufficientBalance"},
		{name: "bad id", method: "escrow_get", params: escrowIDParams{ID: "abc"}, status: http.StatusBadRequest, code: codeInvalidParams},
		{name: "unknown field", method: "escrow_get", params: map[string]string{"escrow": "1"}, status: http.StatusBadRequest, code: codeInvalidParams},
		{name: "amount overflow", caller: buyer, method: "escrow_pay", params: payParams("1" + string(bytes.Repeat([]byte("0"), 80))), status: http.StatusBadRequest, code: codeInvalidParams},
		{name: "unknown method", method: "escrow_missing", status: http.StatusNotFound, code: codeMethodNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var res rpcResult
			if tc.caller == (common.Address{}) {
				res = ts.call(nil, tc.method, tc.params)
			} else {
				res = ts.callHeader(tc.caller, tc.method, tc.params)
			}
			require.Equal(t, tc.status, res.status)
			require.NotNil(t, res.resp.Error)
			require.Equal(t, tc.code, res.resp.Error.Code)
			if tc.data != "" {
				data, ok := res.resp.Error.Data.(map[string]interface{})
				require.True(t, ok)
				require.Equal(t, tc.data, data["code"])
			}
		})
	}
}

func TestDisputeAndArbitrationOverRPC(t *testing.T) {
	ts := newTestServer(t, headerConfig(), nil)
	arb := common.HexToAddress("0x0000000000000000000000000000000000000a11")

	var paid escrowPayResult
	decodeResult(t, ts.callHeader(buyer, "escrow_pay", payParams("10000")), &paid)

	var esc escrowJSON
	decodeResult(t, ts.callHeader(buyer, "dispute_challenge", escrowIDParams{ID: paid.ID}), &esc)
	require.Equal(t, [2]int16{1, -1}, esc.Consensus)
	require.Equal(t, uint16(10_000), esc.Split[escrow.WhoBuyer])

	var record arbitratorJSON
	decodeResult(t, ts.callHeader(buyer, "arbitrator_propose", arbitratorParams{ID: paid.ID, Arbitrator: arb.Hex(), Fee: 100}), &record)
	require.False(t, record.Arbitrated)
	require.True(t, record.BuyerConsensus)
	decodeResult(t, ts.callHeader(seller, "arbitrator_approve", arbitratorParams{ID: paid.ID, Arbitrator: arb.Hex(), Fee: 100}), &record)
	require.True(t, record.SellerConsensus)

	var payout payoutJSON
	decodeResult(t, ts.callHeader(arb, "arbitrator_arbitrate", escrowOutcomeParams{ID: paid.ID, Buyer: 5000, Seller: 5000}), &payout)
	require.Equal(t, "arbitration", payout.Reason)
	require.Equal(t, "4950", payout.Amounts["buyer"])
	require.Equal(t, "4950", payout.Amounts["seller"])
	require.Equal(t, "100", payout.Amounts["arbitrator"])

	res := ts.callHeader(seller, "claim_single", escrowIDParams{ID: paid.ID})
	require.Equal(t, http.StatusConflict, res.status)
}

func TestSettlementOverRPC(t *testing.T) {
	ts := newTestServer(t, headerConfig(), nil)
	var paid escrowPayResult
	decodeResult(t, ts.callHeader(buyer, "escrow_pay", payParams("1000")), &paid)

	var settlement settlementJSON
	decodeResult(t, ts.callHeader(buyer, "dispute_offerSettlement", escrowOutcomeParams{ID: paid.ID, Buyer: 3000, Seller: 7000}), &settlement)
	require.True(t, settlement.Pending)
	require.Equal(t, buyer.Hex(), *settlement.By)

	var preview payoutJSON
	decodeResult(t, ts.callHeader(seller, "dispute_approveSettlement", escrowOutcomeParams{ID: paid.ID, Buyer: 3000, Seller: 7000}), &preview)
	require.Equal(t, "300", preview.Amounts["buyer"])
	require.Equal(t, "700", preview.Amounts["seller"])

	var payouts []payoutJSON
	decodeResult(t, ts.callHeader(stranger, "claim_claim", claimParams{IDs: []string{paid.ID}}), &payouts)
	require.Len(t, payouts, 1)
	require.Equal(t, "700", payouts[0].Amounts["seller"])
}

func TestGovernanceOverRPC(t *testing.T) {
	ts := newTestServer(t, headerConfig(), nil)

	var params paramsJSON
	decodeResult(t, ts.callHeader(governance, "escrow_updateProtocolFee", protocolFeeParams{Bips: 50}), &params)
	require.Equal(t, uint16(50), params.ProtocolFee)

	decodeResult(t, ts.callHeader(governance, "escrow_setPaused", pausedParams{Paused: true}), &params)
	require.True(t, params.Paused)

	res := ts.callHeader(buyer, "escrow_pay", payParams("10"))
	require.Equal(t, http.StatusConflict, res.status)

	res = ts.callHeader(buyer, "escrow_setPaused", pausedParams{Paused: false})
	require.Equal(t, http.StatusForbidden, res.status)
}

func TestBankApproveUsesLedgerShorthand(t *testing.T) {
	ts := newTestServer(t, headerConfig(), nil)

	var approved amountJSON
	decodeResult(t, ts.callHeader(buyer, "bank_approve", bankApproveParams{Spender: "ledger", Currency: stranger.Hex(), Amount: "0x10"}), &approved)
	require.Equal(t, "16", approved.Amount)

	var allowance amountJSON
	decodeResult(t, ts.call(nil, "bank_allowance", bankQueryParams{Owner: buyer.Hex(), Spender: ts.proc.Addresses().Ledger.Hex(), Currency: stranger.Hex()}), &allowance)
	require.Equal(t, "16", allowance.Amount)

	var remaining amountJSON
	decodeResult(t, ts.callHeader(buyer, "bank_transfer", bankTransferParams{To: seller.Hex(), Amount: "250"}), &remaining)
	require.Equal(t, "999750", remaining.Amount)
}

type stubHistory struct {
	query   indexer.Query
	records []indexer.EventRecord
}

func (s *stubHistory) Find(_ context.Context, q indexer.Query) ([]indexer.EventRecord, error) {
	s.query = q
	return s.records, nil
}

func TestHistoryEndpoint(t *testing.T) {
	id := uint64(7)
	history := &stubHistory{records: []indexer.EventRecord{
		{Seq: 3, Type: escrow.EventTypeEscrowPaid, EscrowID: &id, Attributes: map[string]string{"escrowId": "7"}, RecordedAt: time.Unix(genesisTime, 0)},
	}}
	ts := newTestServer(t, headerConfig(), history)

	req := httptest.NewRequest(http.MethodGet, "/escrows/7/events?after=2&limit=10", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var out []eventPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, uint64(3), out[0].Seq)
	require.Equal(t, escrow.EventTypeEscrowPaid, out[0].Type)
	require.Equal(t, uint64(7), *history.query.EscrowID)
	require.Equal(t, uint64(2), history.query.AfterSeq)
	require.Equal(t, 10, history.query.Limit)

	req = httptest.NewRequest(http.MethodGet, "/escrows/x/events", nil)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, headerConfig(), nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
