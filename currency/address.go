package currency

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	bchchaincfg "github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchutil"

	"github.com/lightningnetwork/lnswap/swaperrors"
)

// Params bundles the secondary chain's own network parameters for one
// (Currency, Network) pair, mirroring the chaincfg.Params indirection
// used across the pack's chain implementations.
type Params struct {
	Currency Currency
	Network  Network

	btcParams *chaincfg.Params
	bchParams *bchchaincfg.Params
}

// btcParamsTable and bchParamsTable map our Network enum onto each
// chain library's own parameter sets.
var btcParamsTable = map[Network]*chaincfg.Params{
	Mainnet: &chaincfg.MainNetParams,
	Floonet: &chaincfg.TestNet3Params,
}

var bchParamsTable = map[Network]*bchchaincfg.Params{
	Mainnet: &bchchaincfg.MainNetParams,
	Floonet: &bchchaincfg.TestNet3Params,
}

// ParamsFor returns the chain parameters for a given currency/network
// pair.
func ParamsFor(cur Currency, net Network) (*Params, error) {
	switch cur {
	case BTC:
		p, ok := btcParamsTable[net]
		if !ok {
			return nil, swaperrors.New(swaperrors.KindInvalidArgument,
				"no BTC params for network %s", net)
		}
		return &Params{Currency: cur, Network: net, btcParams: p}, nil
	case BCH:
		p, ok := bchParamsTable[net]
		if !ok {
			return nil, swaperrors.New(swaperrors.KindInvalidArgument,
				"no BCH params for network %s", net)
		}
		return &Params{Currency: cur, Network: net, bchParams: p}, nil
	default:
		return nil, swaperrors.New(swaperrors.KindInvalidArgument,
			"unsupported currency %s", cur)
	}
}

// Address is a parsed, network-validated secondary-chain address. It
// wraps the chain library's own address type so callers can still get
// at the underlying pkScript via the respective builder in
// secondary/btc or secondary/bch.
type Address struct {
	Currency Currency
	Encoded  string

	BTC btcutil.Address
	BCH bchutil.Address
}

// ParseAddress parses and validates a textual secondary-chain address
// against the declared currency and network. Mismatched networks or
// malformed input return swaperrors.ErrInvalidSecondaryAddress (spec §4.1).
func ParseAddress(cur Currency, net Network, encoded string) (*Address, error) {
	params, err := ParamsFor(cur, net)
	if err != nil {
		return nil, err
	}

	switch cur {
	case BTC:
		addr, err := btcutil.DecodeAddress(encoded, params.btcParams)
		if err != nil {
			return nil, swaperrors.ErrInvalidSecondaryAddress
		}
		if !addr.IsForNet(params.btcParams) {
			return nil, swaperrors.ErrInvalidSecondaryAddress
		}
		return &Address{Currency: cur, Encoded: encoded, BTC: addr}, nil

	case BCH:
		addr, err := bchutil.DecodeAddress(encoded, params.bchParams)
		if err != nil {
			return nil, swaperrors.ErrInvalidSecondaryAddress
		}
		if !addr.IsForNet(params.bchParams) {
			return nil, swaperrors.ErrInvalidSecondaryAddress
		}
		return &Address{Currency: cur, Encoded: encoded, BCH: addr}, nil

	default:
		return nil, swaperrors.New(swaperrors.KindInvalidArgument,
			"unsupported currency %s", cur)
	}
}

// ValidateRefundAddress checks that the buyer's refund address matches
// the trade's declared secondary_currency before any lock occurs
// (spec §4.1 rule). A mismatch is fatal to the trade.
func ValidateRefundAddress(declared Currency, net Network, encoded string) error {
	addr, err := ParseAddress(declared, net, encoded)
	if err != nil {
		return err
	}
	if addr.Currency != declared {
		return swaperrors.ErrInvalidSecondaryAddress
	}
	return nil
}
