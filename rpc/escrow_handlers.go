package rpc

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/indexer"
	"splitescrow/native/escrow"
)

func (s *Server) handleEscrowPay(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	var params escrowPayParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	in, arb, err := params.deposit()
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	value, err := parseAmount("value", params.Value)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	id, err := s.proc.Pay(r.Context(), caller, value, in, arb, params.ArbitratorFee)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowPayResult{ID: formatID(id)})
}

func (p escrowPayParams) deposit() (escrow.DepositInput, common.Address, error) {
	var in escrow.DepositInput
	var err error
	if in.Buyer, err = parseOptionalAddress("buyer", p.Buyer); err != nil {
		return in, common.Address{}, err
	}
	if in.Seller, err = parseAddress("seller", p.Seller); err != nil {
		return in, common.Address{}, err
	}
	if in.Marketplace, err = parseOptionalAddress("marketplace", p.Marketplace); err != nil {
		return in, common.Address{}, err
	}
	if in.Currency, err = parseOptionalAddress("currency", p.Currency); err != nil {
		return in, common.Address{}, err
	}
	if strings.TrimSpace(p.Amount) == "" {
		return in, common.Address{}, errors.New("amount required")
	}
	if in.Amount, err = parseAmount("amount", p.Amount); err != nil {
		return in, common.Address{}, err
	}
	arb, err := parseOptionalAddress("arbitrator", p.Arbitrator)
	if err != nil {
		return in, common.Address{}, err
	}
	in.MarketplaceFee = p.MarketplaceFee
	in.ChallengePeriod = p.ChallengePeriod
	in.ChallengeExtension = p.ChallengeExtension
	return in, arb, nil
}

// callerAndID is the common prologue of mutating calls addressing one escrow.
func (s *Server) callerAndID(w http.ResponseWriter, r *http.Request, req *RPCRequest) (common.Address, uint64, bool) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeModuleError(w, req.ID, err)
		return common.Address{}, 0, false
	}
	id, ok := escrowIDParam(w, req)
	return caller, id, ok
}

func escrowIDParam(w http.ResponseWriter, req *RPCRequest) (uint64, bool) {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return 0, false
	}
	id, err := parseEscrowID(params.ID)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return 0, false
	}
	return id, true
}

func (s *Server) handleEscrowRelease(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, ok := s.callerAndID(w, r, req)
	if !ok {
		return
	}
	payout, err := s.proc.Release(r.Context(), caller, id)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPayout(payout))
}

func (s *Server) handleEscrowRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, ok := s.callerAndID(w, r, req)
	if !ok {
		return
	}
	payout, err := s.proc.Refund(r.Context(), caller, id)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPayout(payout))
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, ok := escrowIDParam(w, req)
	if !ok {
		return
	}
	esc, err := s.proc.GetEscrow(id)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatEscrow(esc))
}

func (s *Server) handleEscrowCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	count, err := s.proc.EscrowCount()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"count": formatID(count)})
}

func (s *Server) handleEscrowParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.writeParams(w, req)
}

func (s *Server) writeParams(w http.ResponseWriter, req *RPCRequest) {
	params, err := s.proc.Params()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatParams(params))
}

func (s *Server) handleUpdateProtocolFee(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	var params protocolFeeParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if err := s.proc.UpdateProtocolFee(r.Context(), caller, params.Bips); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	s.writeParams(w, req)
}

func (s *Server) handleUpdateGovernance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	var params governanceParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	addr, err := parseAddress("governance", params.Governance)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if err := s.proc.UpdateGovernance(r.Context(), caller, addr); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	s.writeParams(w, req)
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	var params pausedParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if err := s.proc.SetPaused(r.Context(), caller, params.Paused); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	s.writeParams(w, req)
}

func (s *Server) handleEscrowHistory(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "event history unavailable", nil)
		return
	}
	var params historyParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	q := indexer.Query{Type: params.Type, AfterSeq: params.AfterSeq, Limit: params.Limit}
	if strings.TrimSpace(params.ID) != "" {
		id, err := parseEscrowID(params.ID)
		if err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
		q.EscrowID = &id
	}
	records, err := s.history.Find(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "history query failed", nil)
		return
	}
	writeResult(w, req.ID, formatRecords(records))
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, ok := s.callerAndID(w, r, req)
	if !ok {
		return
	}
	if err := s.proc.Challenge(r.Context(), caller, id); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	esc, err := s.proc.GetEscrow(id)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatEscrow(esc))
}

func (s *Server) outcomeParams(w http.ResponseWriter, r *http.Request, req *RPCRequest) (common.Address, uint64, [2]uint16, bool) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeModuleError(w, req.ID, err)
		return common.Address{}, 0, [2]uint16{}, false
	}
	var params escrowOutcomeParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return common.Address{}, 0, [2]uint16{}, false
	}
	id, err := parseEscrowID(params.ID)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return common.Address{}, 0, [2]uint16{}, false
	}
	return caller, id, [2]uint16{params.Buyer, params.Seller}, true
}

func (s *Server) handleOfferSettlement(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, offer, ok := s.outcomeParams(w, r, req)
	if !ok {
		return
	}
	if err := s.proc.OfferSettlement(r.Context(), caller, id, offer); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	settlement, err := s.proc.GetSettlementDetails(id)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatSettlement(settlement))
}

func (s *Server) handleApproveSettlement(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, offer, ok := s.outcomeParams(w, r, req)
	if !ok {
		return
	}
	payout, err := s.proc.ApproveSettlement(r.Context(), caller, id, offer)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPayout(payout))
}

func (s *Server) handleGetSettlement(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, ok := escrowIDParam(w, req)
	if !ok {
		return
	}
	settlement, err := s.proc.GetSettlementDetails(id)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatSettlement(settlement))
}

func (s *Server) arbitratorParams(w http.ResponseWriter, r *http.Request, req *RPCRequest) (common.Address, uint64, common.Address, uint16, bool) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeModuleError(w, req.ID, err)
		return common.Address{}, 0, common.Address{}, 0, false
	}
	var params arbitratorParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return common.Address{}, 0, common.Address{}, 0, false
	}
	id, err := parseEscrowID(params.ID)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return common.Address{}, 0, common.Address{}, 0, false
	}
	arb, err := parseAddress("arbitrator", params.Arbitrator)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return common.Address{}, 0, common.Address{}, 0, false
	}
	return caller, id, arb, params.Fee, true
}

func (s *Server) handleProposeArbitrator(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, arb, fee, ok := s.arbitratorParams(w, r, req)
	if !ok {
		return
	}
	if err := s.proc.ProposeArbitrator(r.Context(), caller, id, arb, fee); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	s.writeArbitrator(w, req, id)
}

func (s *Server) handleApproveArbitrator(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, arb, fee, ok := s.arbitratorParams(w, r, req)
	if !ok {
		return
	}
	if err := s.proc.ApproveArbitrator(r.Context(), caller, id, arb, fee); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	s.writeArbitrator(w, req, id)
}

func (s *Server) handleArbitrate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, outcome, ok := s.outcomeParams(w, r, req)
	if !ok {
		return
	}
	payout, err := s.proc.Arbitrate(r.Context(), caller, id, outcome)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPayout(payout))
}

func (s *Server) handleGetArbitrator(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, ok := escrowIDParam(w, req)
	if !ok {
		return
	}
	s.writeArbitrator(w, req, id)
}

func (s *Server) writeArbitrator(w http.ResponseWriter, req *RPCRequest, id uint64) {
	record, err := s.proc.GetArbitratorData(id)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatArbitrator(record))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	var params claimParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if len(params.IDs) == 0 {
		writeInvalidParams(w, req.ID, errors.New("ids required"))
		return
	}
	ids := make([]uint64, 0, len(params.IDs))
	for _, raw := range params.IDs {
		id, err := parseEscrowID(raw)
		if err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
		ids = append(ids, id)
	}
	payouts, err := s.proc.Claim(r.Context(), caller, ids)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPayouts(payouts))
}

func (s *Server) handleSingleClaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, ok := s.callerAndID(w, r, req)
	if !ok {
		return
	}
	payout, err := s.proc.SingleClaim(r.Context(), caller, id)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPayout(payout))
}

func (s *Server) handlePreviewClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, ok := escrowIDParam(w, req)
	if !ok {
		return
	}
	payout, err := s.proc.PreviewClaim(id)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPayout(payout))
}
