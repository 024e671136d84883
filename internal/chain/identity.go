package chain

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// WalletIdentity implements domain.Identity for wallet-addressed users. A
// user ID is a hex EVM address; a malformed address is never authenticated,
// and a configured allowlist restricts access further.
type WalletIdentity struct {
	allow map[string]struct{} // lowercased addresses; nil means open
}

// NewWalletIdentity creates a WalletIdentity. With an empty allowlist every
// well-formed address is accepted.
func NewWalletIdentity(allowlist []string) *WalletIdentity {
	wi := &WalletIdentity{}
	if len(allowlist) > 0 {
		wi.allow = make(map[string]struct{}, len(allowlist))
		for _, addr := range allowlist {
			wi.allow[strings.ToLower(addr)] = struct{}{}
		}
	}
	return wi
}

// Authenticated reports whether userID is a well-formed wallet address that
// passes the allowlist.
func (wi *WalletIdentity) Authenticated(_ context.Context, userID string) (bool, error) {
	if !common.IsHexAddress(userID) {
		return false, nil
	}
	if wi.allow == nil {
		return true, nil
	}
	_, ok := wi.allow[strings.ToLower(userID)]
	return ok, nil
}

// Compile-time interface check.
var _ domain.Identity = (*WalletIdentity)(nil)
