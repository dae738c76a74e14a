// Package currency implements C1: classification of the supported
// secondary chains (BTC, BCH), address parsing/validation per chain
// and per network, grounded on the chaincfg.Params pattern used
// throughout the pack (e.g. the various chaincfg/*params.go files)
// and on baby636-multiwallet's bitcoincash wallet for the BCH side.
package currency

import (
	"github.com/lightningnetwork/lnswap/swaperrors"
)

// Currency enumerates the secondary chains a swap can trade MWC
// against.
type Currency byte

const (
	// BTC is Bitcoin.
	BTC Currency = iota
	// BCH is Bitcoin Cash.
	BCH
)

func (c Currency) String() string {
	switch c {
	case BTC:
		return "BTC"
	case BCH:
		return "BCH"
	default:
		return "UNKNOWN"
	}
}

// ParseCurrency maps a wire-level currency tag to a Currency value.
func ParseCurrency(s string) (Currency, error) {
	switch s {
	case "BTC":
		return BTC, nil
	case "BCH":
		return BCH, nil
	default:
		return 0, swaperrors.New(swaperrors.KindInvalidArgument,
			"unsupported secondary currency %q", s)
	}
}

// Network is the MWC network a swap runs on. The secondary chain's own
// mainnet/testnet selection is derived from this via Params.
type Network byte

const (
	// Mainnet is the MWC production network.
	Mainnet Network = iota
	// Floonet is the MWC test network.
	Floonet
)

func (n Network) String() string {
	if n == Mainnet {
		return "mainnet"
	}
	return "floonet"
}
