package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"splitescrow/native/arbitrator"
	"splitescrow/native/dispute"
	"splitescrow/native/escrow"
)

const jsonRPCVersion = "2.0"

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type escrowPayParams struct {
	Buyer              string `json:"buyer,omitempty"`
	Seller             string `json:"seller"`
	Marketplace        string `json:"marketplace,omitempty"`
	MarketplaceFee     uint16 `json:"marketplaceFee"`
	Currency           string `json:"currency,omitempty"`
	ChallengePeriod    uint64 `json:"challengePeriod"`
	ChallengeExtension uint64 `json:"challengeExtension,omitempty"`
	Amount             string `json:"amount"`
	Value              string `json:"value,omitempty"`
	Arbitrator         string `json:"arbitrator,omitempty"`
	ArbitratorFee      uint16 `json:"arbitratorFee,omitempty"`
}

type escrowIDParams struct {
	ID string `json:"id"`
}

type escrowOutcomeParams struct {
	ID     string `json:"id"`
	Buyer  uint16 `json:"buyer"`
	Seller uint16 `json:"seller"`
}

type arbitratorParams struct {
	ID         string `json:"id"`
	Arbitrator string `json:"arbitrator"`
	Fee        uint16 `json:"fee"`
}

type claimParams struct {
	IDs []string `json:"ids"`
}

type protocolFeeParams struct {
	Bips uint16 `json:"bips"`
}

type governanceParams struct {
	Governance string `json:"governance"`
}

type pausedParams struct {
	Paused bool `json:"paused"`
}

type bankApproveParams struct {
	Spender  string `json:"spender"`
	Currency string `json:"currency,omitempty"`
	Amount   string `json:"amount"`
}

type bankTransferParams struct {
	To       string `json:"to"`
	Currency string `json:"currency,omitempty"`
	Amount   string `json:"amount"`
}

type bankQueryParams struct {
	Owner    string `json:"owner"`
	Spender  string `json:"spender,omitempty"`
	Currency string `json:"currency,omitempty"`
}

type historyParams struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	AfterSeq uint64 `json:"afterSeq,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type escrowPayResult struct {
	ID string `json:"id"`
}

type escrowJSON struct {
	ID                   string    `json:"id"`
	Buyer                string    `json:"buyer"`
	Seller               string    `json:"seller"`
	Marketplace          *string   `json:"marketplace,omitempty"`
	MarketplaceFee       uint16    `json:"marketplaceFee"`
	Currency             string    `json:"currency"`
	Amount               string    `json:"amount"`
	ChallengePeriodStart int64     `json:"challengePeriodStart"`
	ChallengePeriodEnd   int64     `json:"challengePeriodEnd"`
	ChallengeExtension   uint64    `json:"challengeExtension"`
	ProtocolFee          uint16    `json:"protocolFee"`
	Consensus            [2]int16  `json:"consensus"`
	Split                [4]uint16 `json:"split"`
	Claimed              bool      `json:"claimed"`
	CreatedAt            int64     `json:"createdAt"`
}

type payoutJSON struct {
	EscrowID   string            `json:"escrowId"`
	Currency   string            `json:"currency"`
	Reason     string            `json:"reason"`
	Split      [5]uint16         `json:"split"`
	Recipients map[string]string `json:"recipients"`
	Amounts    map[string]string `json:"amounts"`
}

type paramsJSON struct {
	Governance  string `json:"governance"`
	ProtocolFee uint16 `json:"protocolFee"`
	Paused      bool   `json:"paused"`
}

type settlementJSON struct {
	Buyer   uint16  `json:"buyer"`
	Seller  uint16  `json:"seller"`
	By      *string `json:"by,omitempty"`
	Pending bool    `json:"pending"`
}

type arbitratorJSON struct {
	Arbitrator      *string `json:"arbitrator,omitempty"`
	Fee             uint16  `json:"fee"`
	BuyerConsensus  bool    `json:"buyerConsensus"`
	SellerConsensus bool    `json:"sellerConsensus"`
	Arbitrated      bool    `json:"arbitrated"`
}

type amountJSON struct {
	Amount string `json:"amount"`
}

var recipientNames = [5]string{"buyer", "seller", "marketplace", "protocol", "arbitrator"}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

func optionalAddress(addr common.Address) *string {
	if addr == (common.Address{}) {
		return nil
	}
	hex := addr.Hex()
	return &hex
}

func formatEscrow(e *escrow.Escrow) escrowJSON {
	return escrowJSON{
		ID:                   formatID(e.ID),
		Buyer:                e.Buyer.Hex(),
		Seller:               e.Seller.Hex(),
		Marketplace:          optionalAddress(e.Marketplace),
		MarketplaceFee:       e.MarketplaceFee,
		Currency:             e.Currency.Hex(),
		Amount:               e.Amount.String(),
		ChallengePeriodStart: e.ChallengePeriodStart,
		ChallengePeriodEnd:   e.ChallengePeriodEnd,
		ChallengeExtension:   e.ChallengeExtension,
		ProtocolFee:          e.ProtocolFee,
		Consensus:            e.Consensus,
		Split:                e.Split,
		Claimed:              e.Claimed,
		CreatedAt:            e.CreatedAt,
	}
}

func formatPayout(p *escrow.Payout) *payoutJSON {
	if p == nil {
		return nil
	}
	out := &payoutJSON{
		EscrowID:   formatID(p.EscrowID),
		Currency:   p.Currency.Hex(),
		Reason:     p.Reason.String(),
		Split:      p.Split,
		Recipients: make(map[string]string, len(recipientNames)),
		Amounts:    make(map[string]string, len(recipientNames)),
	}
	for i, name := range recipientNames {
		if p.Recipients[i] != (common.Address{}) {
			out.Recipients[name] = p.Recipients[i].Hex()
		}
		amount := p.Amounts[i]
		if amount == nil {
			amount = big.NewInt(0)
		}
		out.Amounts[name] = amount.String()
	}
	return out
}

func formatPayouts(payouts []*escrow.Payout) []*payoutJSON {
	out := make([]*payoutJSON, 0, len(payouts))
	for _, p := range payouts {
		out = append(out, formatPayout(p))
	}
	return out
}

func formatParams(p *escrow.Params) paramsJSON {
	return paramsJSON{Governance: p.Governance.Hex(), ProtocolFee: p.ProtocolFee, Paused: p.Paused}
}

func formatSettlement(s *dispute.Settlement) settlementJSON {
	return settlementJSON{Buyer: s.Offer[0], Seller: s.Offer[1], By: optionalAddress(s.By), Pending: s.Pending()}
}

func formatArbitrator(r *arbitrator.Record) arbitratorJSON {
	return arbitratorJSON{
		Arbitrator:      optionalAddress(r.Arbitrator),
		Fee:             r.Fee,
		BuyerConsensus:  r.BuyerConsensus,
		SellerConsensus: r.SellerConsensus,
		Arbitrated:      r.Arbitrated,
	}
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Address{}, fmt.Errorf("%s required", field)
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s must be a hex address", field)
	}
	return common.HexToAddress(trimmed), nil
}

func parseOptionalAddress(field, raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, nil
	}
	return parseAddress(field, raw)
}

func parseEscrowID(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("id required")
	}
	id, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// parseAmount accepts a base-10 or 0x-prefixed amount that fits in 256 bits.
// Empty input reads as zero.
func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	var (
		value *uint256.Int
		err   error
	)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		value, err = uint256.FromHex(trimmed)
	} else {
		value, err = uint256.FromDecimal(trimmed)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return value.ToBig(), nil
}
