package config

import (
	"fmt"
	"strings"
)

// NetworkName names the network a node belongs to.
type NetworkName int

// Supported networks.
const (
	DarkFi NetworkName = iota
	Solana
	Bitcoin
	Ethereum
)

// ErrUnsupportedNetwork is returned by ParseNetworkName for unknown names.
var ErrUnsupportedNetwork = fmt.Errorf("unsupported network")

func (n NetworkName) String() string {
	switch n {
	case DarkFi:
		return "DarkFi"
	case Solana:
		return "Solana"
	case Bitcoin:
		return "Bitcoin"
	case Ethereum:
		return "Ethereum"
	default:
		return fmt.Sprintf("NetworkName(%d)", int(n))
	}
}

// ParseNetworkName parses a network name or its ticker, case insensitive.
func ParseNetworkName(s string) (NetworkName, error) {
	switch strings.ToLower(s) {
	case "drk", "darkfi":
		return DarkFi, nil
	case "sol", "solana":
		return Solana, nil
	case "btc", "bitcoin":
		return Bitcoin, nil
	case "eth", "ethereum":
		return Ethereum, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, s)
	}
}
