package claim

import (
	"errors"

	nativecommon "splitescrow/native/common"
)

const ModuleName = "claim"

const (
	CodeAlreadyClaimed  nativecommon.Code = "AlreadyClaimed"
	CodeNotYetClaimable nativecommon.Code = "NotYetClaimable"
)

var (
	ErrAlreadyClaimed  = nativecommon.NewError(ModuleName, CodeAlreadyClaimed, "escrow already claimed")
	ErrNotYetClaimable = nativecommon.NewError(ModuleName, CodeNotYetClaimable, "challenge period still running")

	errNotBound = errors.New("claim engine: modules not bound")
)
