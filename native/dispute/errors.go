package dispute

import (
	"errors"

	nativecommon "splitescrow/native/common"
)

const ModuleName = "dispute"

const (
	CodeSellerCannotChallengeFirst nativecommon.Code = "SellerCannotChallengeFirst"
	CodeChallengeTooSoon           nativecommon.Code = "ChallengeTooSoon"
	CodeChallengePeriodExpired     nativecommon.Code = "ChallengePeriodExpired"
	CodeSplitExceedsLimit          nativecommon.Code = "SplitExceedsLimit"
	CodeNoMatchingOffer            nativecommon.Code = "NoMatchingOffer"
)

var (
	ErrSellerCannotChallengeFirst = nativecommon.NewError(ModuleName, CodeSellerCannotChallengeFirst, "seller cannot open the first challenge")
	ErrChallengeTooSoon           = nativecommon.NewError(ModuleName, CodeChallengeTooSoon, "challenge not allowed yet")
	ErrChallengePeriodExpired     = nativecommon.NewError(ModuleName, CodeChallengePeriodExpired, "challenge period expired")
	ErrSplitExceedsLimit          = nativecommon.NewError(ModuleName, CodeSplitExceedsLimit, "settlement offer exceeds 10000 bips")
	ErrNoMatchingOffer            = nativecommon.NewError(ModuleName, CodeNoMatchingOffer, "no matching settlement offer")
)

var (
	errNilState = errors.New("dispute engine: state not configured")
	errNotBound = errors.New("dispute engine: modules not bound")
)
