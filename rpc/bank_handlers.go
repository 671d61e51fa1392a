package rpc

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

func (s *Server) handleBankApprove(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	var params bankApproveParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	spender, err := s.spenderParam(params.Spender)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	currency, err := parseOptionalAddress("currency", params.Currency)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if err := s.proc.Approve(r.Context(), caller, spender, currency, amount); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountJSON{Amount: amount.String()})
}

func (s *Server) handleBankTransfer(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, err := callerFrom(r.Context())
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	var params bankTransferParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	to, err := parseAddress("to", params.To)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	currency, err := parseOptionalAddress("currency", params.Currency)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if err := s.proc.Transfer(r.Context(), caller, to, currency, amount); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	balance, err := s.proc.Balance(caller, currency)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountJSON{Amount: balance.String()})
}

func (s *Server) handleBankBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params bankQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	currency, err := parseOptionalAddress("currency", params.Currency)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	balance, err := s.proc.Balance(owner, currency)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountJSON{Amount: balance.String()})
}

func (s *Server) handleBankAllowance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params bankQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	spender, err := s.spenderParam(params.Spender)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	currency, err := parseOptionalAddress("currency", params.Currency)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	allowance, err := s.proc.Allowance(owner, spender, currency)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountJSON{Amount: allowance.String()})
}

// spenderParam resolves the spender, accepting "ledger" as shorthand for the
// escrow ledger module that pulls token deposits.
func (s *Server) spenderParam(raw string) (common.Address, error) {
	if raw == "ledger" {
		return s.proc.Addresses().Ledger, nil
	}
	return parseAddress("spender", raw)
}
