// Package classify maps raw Transfer logs to domain actions.
package classify

import (
	"errors"
	"strings"

	"github.com/mzeeshan-dev/position-indexer/internal/constants"
	"github.com/mzeeshan-dev/position-indexer/internal/models"
)

// ErrMissingTokenID marks an event with an empty or unparseable token id.
// Such events are dropped permanently; retrying reproduces the same input.
var ErrMissingTokenID = errors.New("event has no token id")

// ErrNullToNull marks a null-to-null transfer. A real contract never emits
// one, so it is safe to discard.
var ErrNullToNull = errors.New("transfer between null addresses")

// NormalizeAddress lowercases an address so lookups are case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// IsNull reports whether addr is the contract's null sentinel.
func IsNull(addr string) bool {
	return NormalizeAddress(addr) == constants.NullAddress
}

// Classify returns exactly one of Mint, Burn or Transfer for a decoded
// event: Mint when the sender is the null address, Burn when the receiver
// is, Transfer otherwise.
func Classify(ev *models.TransferEvent) (models.ActionKind, error) {
	if strings.TrimSpace(ev.TokenID) == "" {
		return "", ErrMissingTokenID
	}

	fromNull := IsNull(ev.From)
	toNull := IsNull(ev.To)

	switch {
	case fromNull && toNull:
		return "", ErrNullToNull
	case fromNull:
		return models.ActionMint, nil
	case toNull:
		return models.ActionBurn, nil
	default:
		return models.ActionTransfer, nil
	}
}
