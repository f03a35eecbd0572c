// Package registry holds token registry implementations the outbox
// dispatcher delivers mint, burn and transfer messages to.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
)

var (
	ErrTokenExists   = errors.New("token already exists")
	ErrTokenNotFound = errors.New("token not found")
)

type token struct {
	owner     string
	uri       string
	extension json.RawMessage
}

// MemoryRegistry is an in-process token registry. Deliveries are idempotent
// so a message redelivered after a failed acknowledgement has no extra effect.
type MemoryRegistry struct {
	mu        sync.Mutex
	contracts map[string]map[string]token
	failures  map[crowdfund.MessageKind][]error
}

var _ crowdfund.Registry = (*MemoryRegistry)(nil)

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		contracts: map[string]map[string]token{},
		failures:  map[crowdfund.MessageKind][]error{},
	}
}

// FailNext makes the next call of the given kind return err.
func (r *MemoryRegistry) FailNext(kind crowdfund.MessageKind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[kind] = append(r.failures[kind], err)
}

func (r *MemoryRegistry) injected(kind crowdfund.MessageKind) error {
	queue := r.failures[kind]
	if len(queue) == 0 {
		return nil
	}
	r.failures[kind] = queue[1:]
	return queue[0]
}

func (r *MemoryRegistry) tokens(contract string) map[string]token {
	tokens, ok := r.contracts[contract]
	if !ok {
		tokens = map[string]token{}
		r.contracts[contract] = tokens
	}
	return tokens
}

func (r *MemoryRegistry) Mint(ctx context.Context, contract, tokenID, owner, tokenURI string, extension json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.injected(crowdfund.MessageRegistryMint); err != nil {
		return err
	}

	tokens := r.tokens(contract)
	if existing, ok := tokens[tokenID]; ok {
		if existing.owner == owner {
			return nil
		}
		return fmt.Errorf("mint %s: %w", tokenID, ErrTokenExists)
	}
	tokens[tokenID] = token{owner: owner, uri: tokenURI, extension: extension}
	return nil
}

func (r *MemoryRegistry) Burn(ctx context.Context, contract, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.injected(crowdfund.MessageRegistryBurn); err != nil {
		return err
	}
	delete(r.tokens(contract), tokenID)
	return nil
}

func (r *MemoryRegistry) TransferTo(ctx context.Context, contract, recipient, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.injected(crowdfund.MessageRegistryTransfer); err != nil {
		return err
	}

	tokens := r.tokens(contract)
	t, ok := tokens[tokenID]
	if !ok {
		return fmt.Errorf("transfer %s: %w", tokenID, ErrTokenNotFound)
	}
	t.owner = recipient
	tokens[tokenID] = t
	return nil
}

func (r *MemoryRegistry) Tokens(ctx context.Context, contract, owner, startAfter string, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, t := range r.contracts[contract] {
		if t.owner == owner && (startAfter == "" || id > startAfter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// OwnerOf reports the current owner of tokenID, or false when it does not exist.
func (r *MemoryRegistry) OwnerOf(contract, tokenID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.contracts[contract][tokenID]
	return t.owner, ok
}
