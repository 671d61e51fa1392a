package rpc

import (
	"errors"
	"net/http"

	"splitescrow/native/arbitrator"
	"splitescrow/native/bank"
	nativecommon "splitescrow/native/common"
	"splitescrow/native/dispute"
	"splitescrow/native/escrow"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020

	codeEscrowInvalid   = -32021
	codeEscrowNotFound  = -32022
	codeEscrowForbidden = -32023
	codeEscrowConflict  = -32024
	codeEscrowInternal  = -32025
)

func isBadRequest(code nativecommon.Code) bool {
	switch code {
	case escrow.CodeZeroAmount, escrow.CodeCurrencyMismatch, escrow.CodeInvalidFeeConfiguration,
		escrow.CodeInvalidParty, escrow.CodeInvalidChallengePeriod, escrow.CodeInvalidSplit,
		dispute.CodeSplitExceedsLimit, arbitrator.CodeInvalidArbitrator,
		arbitrator.CodeProposalAddressMismatch, arbitrator.CodeProposalFeeMismatch,
		bank.CodeInvalidAmount:
		return true
	}
	return false
}

// errorData is attached to every module failure so clients can branch on the
// stable code.
type errorData struct {
	Module string `json:"module,omitempty"`
	Code   string `json:"code"`
}

// classify maps a processor error to an HTTP status and JSON-RPC code.
func classify(err error) (int, int, interface{}) {
	code := nativecommon.CodeOf(err)
	if code == "" {
		if errors.Is(err, errCallerRequired) {
			return http.StatusUnauthorized, codeUnauthorized, nil
		}
		return http.StatusInternalServerError, codeEscrowInternal, nil
	}
	data := errorData{Module: nativecommon.ModuleOf(err), Code: string(code)}
	switch {
	case code == escrow.CodeNotFound:
		return http.StatusNotFound, codeEscrowNotFound, data
	case code == escrow.CodeUnauthorized:
		return http.StatusForbidden, codeEscrowForbidden, data
	default:
		if isBadRequest(code) {
			return http.StatusBadRequest, codeEscrowInvalid, data
		}
		return http.StatusConflict, codeEscrowConflict, data
	}
}

func writeModuleError(w http.ResponseWriter, id interface{}, err error) {
	status, code, data := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeError(w, status, id, code, message, data)
}
