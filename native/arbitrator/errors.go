package arbitrator

import (
	"errors"

	nativecommon "splitescrow/native/common"
)

const ModuleName = "arbitrator"

const (
	CodeArbitratorAlreadySet    nativecommon.Code = "ArbitratorAlreadySet"
	CodeInvalidArbitrator       nativecommon.Code = "InvalidArbitrator"
	CodeProposalAddressMismatch nativecommon.Code = "ProposalAddressMismatch"
	CodeProposalFeeMismatch     nativecommon.Code = "ProposalFeeMismatch"
	CodeAlreadyApproved         nativecommon.Code = "AlreadyApproved"
	CodeAlreadyArbitrated       nativecommon.Code = "AlreadyArbitrated"
	CodeNoProposal              nativecommon.Code = "NoProposal"
	CodeNotDisputed             nativecommon.Code = "NotDisputed"
)

var (
	ErrArbitratorAlreadySet    = nativecommon.NewError(ModuleName, CodeArbitratorAlreadySet, "arbitrator already set")
	ErrInvalidArbitrator       = nativecommon.NewError(ModuleName, CodeInvalidArbitrator, "arbitrator must be a third party")
	ErrProposalAddressMismatch = nativecommon.NewError(ModuleName, CodeProposalAddressMismatch, "arbitrator differs from proposal")
	ErrProposalFeeMismatch     = nativecommon.NewError(ModuleName, CodeProposalFeeMismatch, "fee differs from proposal")
	ErrAlreadyApproved         = nativecommon.NewError(ModuleName, CodeAlreadyApproved, "arbitrator already approved")
	ErrAlreadyArbitrated       = nativecommon.NewError(ModuleName, CodeAlreadyArbitrated, "escrow already arbitrated")
	ErrNoProposal              = nativecommon.NewError(ModuleName, CodeNoProposal, "no arbitrator proposed")
	ErrNotDisputed             = nativecommon.NewError(ModuleName, CodeNotDisputed, "escrow is not under dispute")
)

var (
	errNilState = errors.New("arbitrator engine: state not configured")
	errNotBound = errors.New("arbitrator engine: modules not bound")
)
