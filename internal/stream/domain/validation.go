package domain

import "strings"

// ValidateCreate checks creation inputs before they touch the store.
func ValidateCreate(req CreateStreamRequest) error {
	if strings.TrimSpace(req.WalletAddress) == "" {
		return ErrInvalidWallet
	}
	if req.Config.RatePerInterval <= 0 {
		return ErrInvalidRate
	}
	if !req.Config.BillingInterval.Valid() {
		return ErrInvalidInterval
	}
	if strings.TrimSpace(req.Config.ServiceName) == "" {
		return ErrInvalidService
	}
	if req.InitialBalance < 0 {
		return ErrInvalidBalance
	}
	return nil
}
