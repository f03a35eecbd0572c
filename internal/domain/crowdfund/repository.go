package crowdfund

import (
	"context"
	"encoding/json"
)

// Repository is the transactional view of crowdfund storage an engine call runs against.
type Repository interface {
	GetConfig(ctx context.Context) (*Config, error)
	SaveConfig(ctx context.Context, config *Config) error
	IsSaleConducted(ctx context.Context) (bool, error)
	SetSaleConducted(ctx context.Context) error

	// GetState returns nil without error when no sale exists.
	GetState(ctx context.Context) (*State, error)
	SaveState(ctx context.Context, state *State) error
	ClearState(ctx context.Context) error

	AddAvailableToken(ctx context.Context, tokenID string) error
	RemoveAvailableToken(ctx context.Context, tokenID string) error
	IsTokenAvailable(ctx context.Context, tokenID string) (bool, error)
	GetAvailableTokens(ctx context.Context, startAfter string, limit int) ([]string, error)
	CountAvailableTokens(ctx context.Context) (uint64, error)

	IsTokenMinted(ctx context.Context, tokenID string) (bool, error)
	RecordMintedToken(ctx context.Context, tokenID, owner string) error

	// GetPurchases returns nil when the purchaser has no ledger entry.
	GetPurchases(ctx context.Context, purchaser string) ([]Purchase, error)
	SavePurchases(ctx context.Context, purchaser string, purchases []Purchase) error
	RemovePurchases(ctx context.Context, purchaser string) error
	// GetLedgerEntries returns up to limit entries ascending by purchaser.
	GetLedgerEntries(ctx context.Context, limit int) ([]LedgerEntry, error)
	// TakePurchases returns up to limit purchases ordered by purchaser, then purchase order.
	TakePurchases(ctx context.Context, limit int) ([]Purchase, error)
}

type RatesResult struct {
	Msgs      []Message
	Remainder Coin
}

// Rates computes fee disbursements for a payment. Remainder is what is left
// for the seller after deductive fees.
type Rates interface {
	OnFundsTransfer(ctx context.Context, payer string, amount Coin) (*RatesResult, error)
}

// RecipientResolver turns a symbolic name into a payable address.
type RecipientResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Registry is the external token registry. Mint, Burn and TransferTo are
// driven by dispatched messages; Tokens is a paginated ownership query.
type Registry interface {
	Mint(ctx context.Context, contract, tokenID, owner, tokenURI string, extension json.RawMessage) error
	Burn(ctx context.Context, contract, tokenID string) error
	TransferTo(ctx context.Context, contract, recipient, tokenID string) error
	Tokens(ctx context.Context, contract, owner, startAfter string, limit int) ([]string, error)
}

// Deliver applies a registry message to registry.
func Deliver(ctx context.Context, registry Registry, msg Message) error {
	switch msg.Kind {
	case MessageRegistryMint:
		return registry.Mint(ctx, msg.Contract, msg.TokenID, msg.To, msg.TokenURI, msg.Extension)
	case MessageRegistryBurn:
		return registry.Burn(ctx, msg.Contract, msg.TokenID)
	case MessageRegistryTransfer:
		return registry.TransferTo(ctx, msg.Contract, msg.To, msg.TokenID)
	default:
		return nil
	}
}
