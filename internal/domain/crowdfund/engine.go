package crowdfund

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

const (
	MaxLimit     = 100
	DefaultLimit = 50
	MaxMintLimit = 100
)

// Env describes the caller and the clock for a single call.
type Env struct {
	Block    BlockInfo
	Contract string
	Sender   string
	Funds    []Coin
}

// Engine implements the sale state machine, the purchase ledger and the
// batch settlement engine on top of a Repository. Every method expects to run
// inside a transaction that is discarded when it returns an error.
type Engine struct {
	rates      Rates
	recipients RecipientResolver
	registry   Registry
}

func NewEngine(rates Rates, recipients RecipientResolver, registry Registry) *Engine {
	return &Engine{
		rates:      rates,
		recipients: recipients,
		registry:   registry,
	}
}

type InstantiateParams struct {
	Owner            string `json:"owner,omitempty"`
	TokenAddress     string `json:"token_address"`
	CanMintAfterSale bool   `json:"can_mint_after_sale"`
}

func (e *Engine) Instantiate(ctx context.Context, repo Repository, env Env, params InstantiateParams) (*Response, error) {
	existing, err := repo.GetConfig(ctx)
	if err != nil && !errors.Is(err, domainErrors.ErrNotInitialized) {
		return nil, err
	}
	if existing != nil {
		return nil, domainErrors.ErrAlreadyInitialized
	}

	owner := params.Owner
	if owner == "" {
		owner = env.Sender
	}
	if params.TokenAddress == "" {
		return nil, fmt.Errorf("token address is required: %w", domainErrors.ErrInvalidRecipient)
	}

	config := &Config{
		Owner:            owner,
		TokenAddress:     params.TokenAddress,
		CanMintAfterSale: params.CanMintAfterSale,
	}
	if err := repo.SaveConfig(ctx, config); err != nil {
		return nil, err
	}

	return NewResponse().
		AddAttribute("action", "instantiate").
		AddAttribute("owner", owner).
		AddAttribute("token_address", params.TokenAddress), nil
}

type UpdateConfigParams struct {
	TokenAddress     *string `json:"token_address,omitempty"`
	CanMintAfterSale *bool   `json:"can_mint_after_sale,omitempty"`
	Owner            *string `json:"owner,omitempty"`
}

func (e *Engine) UpdateConfig(ctx context.Context, repo Repository, env Env, params UpdateConfigParams) (*Response, error) {
	if err := nonPayable(env.Funds); err != nil {
		return nil, err
	}
	config, err := e.ownerConfig(ctx, repo, env)
	if err != nil {
		return nil, err
	}

	if params.TokenAddress != nil {
		if *params.TokenAddress == "" {
			return nil, domainErrors.ErrInvalidRecipient
		}
		config.TokenAddress = *params.TokenAddress
	}
	if params.CanMintAfterSale != nil {
		config.CanMintAfterSale = *params.CanMintAfterSale
	}
	if params.Owner != nil && *params.Owner != "" {
		config.Owner = *params.Owner
	}

	if err := repo.SaveConfig(ctx, config); err != nil {
		return nil, err
	}

	return NewResponse().AddAttribute("action", "update_config"), nil
}

func (e *Engine) Mint(ctx context.Context, repo Repository, env Env, mints []MintRequest) (*Response, error) {
	if err := nonPayable(env.Funds); err != nil {
		return nil, err
	}
	if len(mints) > MaxMintLimit {
		return nil, domainErrors.ErrTooManyMintMessages
	}

	config, err := e.ownerConfig(ctx, repo, env)
	if err != nil {
		return nil, err
	}

	state, err := repo.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return nil, domainErrors.ErrSaleStarted
	}

	conducted, err := repo.IsSaleConducted(ctx)
	if err != nil {
		return nil, err
	}
	if conducted && !config.CanMintAfterSale {
		return nil, domainErrors.ErrCannotMintAfterSaleConducted
	}

	registry, err := e.registryAddress(ctx, config)
	if err != nil {
		return nil, err
	}

	resp := NewResponse()
	for _, req := range mints {
		if req.TokenID == "" {
			return nil, domainErrors.ErrInvalidTokenID
		}
		minted, err := repo.IsTokenMinted(ctx, req.TokenID)
		if err != nil {
			return nil, err
		}
		if minted {
			return nil, fmt.Errorf("token %q: %w", req.TokenID, domainErrors.ErrTokenAlreadyMinted)
		}

		// Tokens minted to someone else are set aside (airdrops, team
		// allocations) and never become part of the sale inventory.
		owner := req.Owner
		if owner == "" {
			owner = env.Contract
		}
		if err := repo.RecordMintedToken(ctx, req.TokenID, owner); err != nil {
			return nil, err
		}
		if owner == env.Contract {
			if err := repo.AddAvailableToken(ctx, req.TokenID); err != nil {
				return nil, err
			}
		}

		resp.AddAttribute("action", "mint").
			AddAttribute("token_id", req.TokenID).
			AddMessages(RegistryMint(registry, owner, req))
	}

	return resp, nil
}

type StartSaleParams struct {
	Expiration         Expiration `json:"expiration"`
	Price              Coin       `json:"price"`
	MinTokensSold      uint64     `json:"min_tokens_sold"`
	MaxAmountPerWallet *uint32    `json:"max_amount_per_wallet,omitempty"`
	Recipient          Recipient  `json:"recipient"`
}

func (e *Engine) StartSale(ctx context.Context, repo Repository, env Env, params StartSaleParams) (*Response, error) {
	if err := nonPayable(env.Funds); err != nil {
		return nil, err
	}
	if _, err := e.ownerConfig(ctx, repo, env); err != nil {
		return nil, err
	}

	state, err := repo.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return nil, domainErrors.ErrSaleStarted
	}

	if err := params.Expiration.Validate(); err != nil {
		return nil, err
	}
	if params.Expiration.IsExpired(env.Block) {
		return nil, domainErrors.ErrExpirationInPast
	}
	if params.Price.IsZero() || params.Price.Denom == "" {
		return nil, domainErrors.ErrInvalidPrice
	}

	maxAmountPerWallet := uint32(1)
	if params.MaxAmountPerWallet != nil {
		if *params.MaxAmountPerWallet == 0 {
			return nil, domainErrors.ErrInvalidMaxPerWallet
		}
		maxAmountPerWallet = *params.MaxAmountPerWallet
	}

	if _, err := e.resolve(ctx, params.Recipient.Address); err != nil {
		return nil, err
	}

	state = &State{
		Expiration:         params.Expiration,
		Price:              params.Price,
		MinTokensSold:      params.MinTokensSold,
		MaxAmountPerWallet: maxAmountPerWallet,
		Recipient:          params.Recipient,
	}
	if err := repo.SaveState(ctx, state); err != nil {
		return nil, err
	}
	if err := repo.SetSaleConducted(ctx); err != nil {
		return nil, err
	}

	return NewResponse().
		AddAttribute("action", "start_sale").
		AddAttribute("expiration", params.Expiration.String()).
		AddAttribute("price", params.Price.String()).
		AddUintAttribute("min_tokens_sold", params.MinTokensSold).
		AddUintAttribute("max_amount_per_wallet", uint64(maxAmountPerWallet)), nil
}

func (e *Engine) State(ctx context.Context, repo Repository) (*State, error) {
	state, err := repo.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domainErrors.ErrNoOngoingSale
	}
	return state, nil
}

func (e *Engine) Config(ctx context.Context, repo Repository) (*Config, error) {
	return repo.GetConfig(ctx)
}

func (e *Engine) Phase(ctx context.Context, repo Repository, block BlockInfo) (Phase, error) {
	state, err := repo.GetState(ctx)
	if err != nil {
		return "", err
	}
	available, err := repo.CountAvailableTokens(ctx)
	if err != nil {
		return "", err
	}
	return DerivePhase(state, available, block), nil
}

func (e *Engine) AvailableTokens(ctx context.Context, repo Repository, startAfter string, limit *uint32) ([]string, error) {
	return repo.GetAvailableTokens(ctx, startAfter, resolveLimit(limit))
}

func (e *Engine) IsTokenAvailable(ctx context.Context, repo Repository, tokenID string) (bool, error) {
	return repo.IsTokenAvailable(ctx, tokenID)
}

func (e *Engine) Purchases(ctx context.Context, repo Repository, purchaser string) ([]Purchase, error) {
	return repo.GetPurchases(ctx, purchaser)
}

// OwnedTokens asks the registry which tokens owner holds.
func (e *Engine) OwnedTokens(ctx context.Context, repo Repository, owner, startAfter string, limit *uint32) ([]string, error) {
	config, err := repo.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	registry, err := e.registryAddress(ctx, config)
	if err != nil {
		return nil, err
	}
	return e.registry.Tokens(ctx, registry, owner, startAfter, resolveLimit(limit))
}

func (e *Engine) ownerConfig(ctx context.Context, repo Repository, env Env) (*Config, error) {
	config, err := repo.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if config.Owner != env.Sender {
		return nil, domainErrors.ErrUnauthorized
	}
	return config, nil
}

func (e *Engine) registryAddress(ctx context.Context, config *Config) (string, error) {
	return e.resolve(ctx, config.TokenAddress)
}

func (e *Engine) resolve(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", domainErrors.ErrInvalidRecipient
	}
	if e.recipients == nil {
		return name, nil
	}
	addr, err := e.recipients.Resolve(ctx, name)
	if err != nil {
		return "", err
	}
	return addr, nil
}

func resolveLimit(limit *uint32) int {
	if limit == nil {
		return DefaultLimit
	}
	if *limit > MaxLimit {
		return MaxLimit
	}
	return int(*limit)
}
