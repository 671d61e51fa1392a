package escrow

import (
	"errors"

	nativecommon "splitescrow/native/common"
)

// ModuleName identifies the ledger in errors, events and pause switches.
const ModuleName = "escrow"

const (
	CodeZeroAmount              nativecommon.Code = "ZeroAmount"
	CodeCurrencyMismatch        nativecommon.Code = "CurrencyMismatch"
	CodeAlreadyFinalized        nativecommon.Code = "AlreadyFinalized"
	CodeNotFound                nativecommon.Code = "NotFound"
	CodeUnauthorized            nativecommon.Code = "Unauthorized"
	CodeInvalidFeeConfiguration nativecommon.Code = "InvalidFeeConfiguration"
	CodeInvalidParty            nativecommon.Code = "InvalidParty"
	CodeInvalidChallengePeriod  nativecommon.Code = "InvalidChallengePeriod"
	CodeChallengeActive         nativecommon.Code = "ChallengeActive"
	CodeInvalidSplit            nativecommon.Code = "InvalidSplit"
)

var (
	ErrZeroAmount              = nativecommon.NewError(ModuleName, CodeZeroAmount, "amount must be positive")
	ErrCurrencyMismatch        = nativecommon.NewError(ModuleName, CodeCurrencyMismatch, "attached value does not match currency")
	ErrAlreadyFinalized        = nativecommon.NewError(ModuleName, CodeAlreadyFinalized, "escrow already finalized")
	ErrNotFound                = nativecommon.NewError(ModuleName, CodeNotFound, "escrow not found")
	ErrUnauthorized            = nativecommon.NewError(ModuleName, CodeUnauthorized, "caller not authorized")
	ErrInvalidFeeConfiguration = nativecommon.NewError(ModuleName, CodeInvalidFeeConfiguration, "invalid fee configuration")
	ErrInvalidParty            = nativecommon.NewError(ModuleName, CodeInvalidParty, "invalid buyer or seller")
	ErrInvalidChallengePeriod  = nativecommon.NewError(ModuleName, CodeInvalidChallengePeriod, "challenge period must be positive")
	ErrChallengeActive         = nativecommon.NewError(ModuleName, CodeChallengeActive, "challenge period still running")
	ErrInvalidSplit            = nativecommon.NewError(ModuleName, CodeInvalidSplit, "split must total 10000 bips")
)

var (
	errNilState = errors.New("escrow engine: state not configured")
	errNotBound = errors.New("escrow engine: modules not bound")
)
