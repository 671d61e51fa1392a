package escrow

import "math/big"

// OutcomeSplit converts an outcome between buyer and seller into the effective
// split stored on the escrow. Marketplace and protocol fees are taken from the
// seller's part only.
func OutcomeSplit(buyer, seller, marketplaceFee, protocolFee uint16) (Split, error) {
	if uint32(buyer)+uint32(seller) != TotalBips {
		return Split{}, ErrInvalidSplit
	}
	if uint32(marketplaceFee)+uint32(protocolFee) > TotalBips {
		return Split{}, ErrInvalidFeeConfiguration
	}
	m := uint32(marketplaceFee) * uint32(seller) / TotalBips
	p := uint32(protocolFee) * uint32(seller) / TotalBips
	return Split{
		buyer,
		uint16(TotalBips - uint32(buyer) - m - p),
		uint16(m),
		uint16(p),
	}, nil
}

// SplitCalculation carves an extra fee (index 4) out of the buyer and seller
// shares of a stored split, proportionally to their size. Marketplace and
// protocol shares are left untouched and the result still totals 10000.
func SplitCalculation(in [5]uint16) ([5]uint16, error) {
	split := Split{in[WhoBuyer], in[WhoSeller], in[WhoMarketplace], in[WhoProtocol]}
	if err := split.Validate(); err != nil {
		return [5]uint16{}, err
	}
	fee := uint32(in[WhoArbitrator])
	parties := uint32(in[WhoBuyer]) + uint32(in[WhoSeller])
	if fee > parties {
		return [5]uint16{}, ErrInvalidFeeConfiguration
	}
	out := in
	if fee == 0 {
		return out, nil
	}
	buyer := uint32(in[WhoBuyer]) - fee*uint32(in[WhoBuyer])/parties
	out[WhoBuyer] = uint16(buyer)
	out[WhoSeller] = uint16(TotalBips - buyer - uint32(in[WhoMarketplace]) - uint32(in[WhoProtocol]) - fee)
	return out, nil
}

// ShareAmounts converts a payout split into absolute amounts. Each share is
// floored; the rounding remainder is credited to the largest share so the
// amounts always add up to amount.
func ShareAmounts(amount *big.Int, split [5]uint16) [5]*big.Int {
	var out [5]*big.Int
	total := cloneBigInt(amount)
	denom := new(big.Int).SetUint64(uint64(TotalBips))
	paid := big.NewInt(0)
	largest := 0
	for i, bips := range split {
		share := new(big.Int).Mul(total, new(big.Int).SetUint64(uint64(bips)))
		share.Quo(share, denom)
		out[i] = share
		paid.Add(paid, share)
		if bips > split[largest] {
			largest = i
		}
	}
	if dust := new(big.Int).Sub(total, paid); dust.Sign() > 0 {
		out[largest].Add(out[largest], dust)
	}
	return out
}

// Widen extends a stored split with an empty arbitrator share.
func (s Split) Widen() [5]uint16 {
	return [5]uint16{s[WhoBuyer], s[WhoSeller], s[WhoMarketplace], s[WhoProtocol], 0}
}
