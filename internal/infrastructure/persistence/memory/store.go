// Package memory provides an in-process transactional crowdfund store used for
// single-node development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

type memoryState struct {
	config         *crowdfund.Config
	saleConducted  bool
	sale           *crowdfund.State
	available      map[string]struct{}
	availableCount uint64
	minted         map[string]string
	purchases      map[string][]crowdfund.Purchase
}

func newMemoryState() memoryState {
	return memoryState{
		available: map[string]struct{}{},
		minted:    map[string]string{},
		purchases: map[string][]crowdfund.Purchase{},
	}
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		saleConducted:  s.saleConducted,
		availableCount: s.availableCount,
		available:      make(map[string]struct{}, len(s.available)),
		minted:         make(map[string]string, len(s.minted)),
		purchases:      make(map[string][]crowdfund.Purchase, len(s.purchases)),
	}
	if s.config != nil {
		cfg := *s.config
		c.config = &cfg
	}
	if s.sale != nil {
		c.sale = s.sale.Clone()
	}
	for k := range s.available {
		c.available[k] = struct{}{}
	}
	for k, v := range s.minted {
		c.minted[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = append([]crowdfund.Purchase(nil), v...)
	}
	return c
}

// Store holds the committed state. Transactions work on a private copy and
// fail with ErrTransactionFailed at commit if another transaction committed first.
type Store struct {
	mu      sync.Mutex
	state   memoryState
	version uint64
	outbox  []*ports.OutboxMessage
}

func NewStore() *Store {
	return &Store{state: newMemoryState()}
}

// CrowdfundRepository implements ports.CrowdfundRepository and ports.OutboxRepository.
type CrowdfundRepository struct {
	store *Store

	isTx    bool
	done    bool
	base    uint64
	view    memoryState
	pending []*ports.OutboxMessage
}

func NewCrowdfundRepository(store *Store) *CrowdfundRepository {
	return &CrowdfundRepository{store: store}
}

var (
	_ ports.CrowdfundRepository = (*CrowdfundRepository)(nil)
	_ ports.OutboxRepository    = (*CrowdfundRepository)(nil)
)

func (r *CrowdfundRepository) BeginTx(ctx context.Context) (ports.CrowdfundRepository, error) {
	if r.isTx {
		return nil, errors.New("transaction already started")
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return &CrowdfundRepository{
		store: r.store,
		isTx:  true,
		base:  r.store.version,
		view:  r.store.state.clone(),
	}, nil
}

func (r *CrowdfundRepository) CommitTx(ctx context.Context) error {
	if !r.isTx || r.done {
		return errors.New("no transaction to commit")
	}
	r.done = true

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.version != r.base {
		return fmt.Errorf("concurrent commit detected: %w", domainErrors.ErrTransactionFailed)
	}
	r.store.state = r.view
	r.store.version++
	r.store.outbox = append(r.store.outbox, r.pending...)
	return nil
}

func (r *CrowdfundRepository) RollbackTx(ctx context.Context) error {
	if !r.isTx || r.done {
		return errors.New("no transaction to rollback")
	}
	r.done = true
	r.pending = nil
	return nil
}

func (r *CrowdfundRepository) read(fn func(s *memoryState) error) error {
	if r.isTx {
		if r.done {
			return errors.New("transaction already finished")
		}
		return fn(&r.view)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(&r.store.state)
}

func (r *CrowdfundRepository) write(fn func(s *memoryState) error) error {
	if r.isTx {
		return r.read(fn)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := fn(&r.store.state); err != nil {
		return err
	}
	r.store.version++
	return nil
}

func (r *CrowdfundRepository) GetConfig(ctx context.Context) (*crowdfund.Config, error) {
	var config *crowdfund.Config
	err := r.read(func(s *memoryState) error {
		if s.config == nil {
			return domainErrors.ErrNotInitialized
		}
		cfg := *s.config
		config = &cfg
		return nil
	})
	return config, err
}

func (r *CrowdfundRepository) SaveConfig(ctx context.Context, config *crowdfund.Config) error {
	return r.write(func(s *memoryState) error {
		cfg := *config
		s.config = &cfg
		return nil
	})
}

func (r *CrowdfundRepository) IsSaleConducted(ctx context.Context) (bool, error) {
	var conducted bool
	err := r.read(func(s *memoryState) error {
		conducted = s.saleConducted
		return nil
	})
	return conducted, err
}

func (r *CrowdfundRepository) SetSaleConducted(ctx context.Context) error {
	return r.write(func(s *memoryState) error {
		s.saleConducted = true
		return nil
	})
}

func (r *CrowdfundRepository) GetState(ctx context.Context) (*crowdfund.State, error) {
	var state *crowdfund.State
	err := r.read(func(s *memoryState) error {
		if s.sale != nil {
			state = s.sale.Clone()
		}
		return nil
	})
	return state, err
}

func (r *CrowdfundRepository) SaveState(ctx context.Context, state *crowdfund.State) error {
	return r.write(func(s *memoryState) error {
		s.sale = state.Clone()
		return nil
	})
}

func (r *CrowdfundRepository) ClearState(ctx context.Context) error {
	return r.write(func(s *memoryState) error {
		s.sale = nil
		return nil
	})
}

func (r *CrowdfundRepository) AddAvailableToken(ctx context.Context, tokenID string) error {
	return r.write(func(s *memoryState) error {
		if _, ok := s.available[tokenID]; ok {
			return nil
		}
		s.available[tokenID] = struct{}{}
		s.availableCount++
		return nil
	})
}

func (r *CrowdfundRepository) RemoveAvailableToken(ctx context.Context, tokenID string) error {
	return r.write(func(s *memoryState) error {
		if _, ok := s.available[tokenID]; !ok {
			return domainErrors.ErrTokenNotAvailable
		}
		delete(s.available, tokenID)
		s.availableCount--
		return nil
	})
}

func (r *CrowdfundRepository) IsTokenAvailable(ctx context.Context, tokenID string) (bool, error) {
	var ok bool
	err := r.read(func(s *memoryState) error {
		_, ok = s.available[tokenID]
		return nil
	})
	return ok, err
}

func (r *CrowdfundRepository) GetAvailableTokens(ctx context.Context, startAfter string, limit int) ([]string, error) {
	var tokens []string
	err := r.read(func(s *memoryState) error {
		ids := make([]string, 0, len(s.available))
		for id := range s.available {
			if startAfter == "" || id > startAfter {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		if len(ids) > limit {
			ids = ids[:limit]
		}
		tokens = ids
		return nil
	})
	return tokens, err
}

func (r *CrowdfundRepository) CountAvailableTokens(ctx context.Context) (uint64, error) {
	var count uint64
	err := r.read(func(s *memoryState) error {
		count = s.availableCount
		return nil
	})
	return count, err
}

func (r *CrowdfundRepository) IsTokenMinted(ctx context.Context, tokenID string) (bool, error) {
	var ok bool
	err := r.read(func(s *memoryState) error {
		_, ok = s.minted[tokenID]
		return nil
	})
	return ok, err
}

func (r *CrowdfundRepository) RecordMintedToken(ctx context.Context, tokenID, owner string) error {
	return r.write(func(s *memoryState) error {
		if _, ok := s.minted[tokenID]; ok {
			return domainErrors.ErrTokenAlreadyMinted
		}
		s.minted[tokenID] = owner
		return nil
	})
}

func (r *CrowdfundRepository) GetPurchases(ctx context.Context, purchaser string) ([]crowdfund.Purchase, error) {
	var purchases []crowdfund.Purchase
	err := r.read(func(s *memoryState) error {
		if p, ok := s.purchases[purchaser]; ok {
			purchases = append([]crowdfund.Purchase(nil), p...)
		}
		return nil
	})
	return purchases, err
}

func (r *CrowdfundRepository) SavePurchases(ctx context.Context, purchaser string, purchases []crowdfund.Purchase) error {
	return r.write(func(s *memoryState) error {
		if len(purchases) == 0 {
			delete(s.purchases, purchaser)
			return nil
		}
		s.purchases[purchaser] = append([]crowdfund.Purchase(nil), purchases...)
		return nil
	})
}

func (r *CrowdfundRepository) RemovePurchases(ctx context.Context, purchaser string) error {
	return r.write(func(s *memoryState) error {
		delete(s.purchases, purchaser)
		return nil
	})
}

func (r *CrowdfundRepository) GetLedgerEntries(ctx context.Context, limit int) ([]crowdfund.LedgerEntry, error) {
	var entries []crowdfund.LedgerEntry
	err := r.read(func(s *memoryState) error {
		for _, purchaser := range sortedPurchasers(s) {
			if len(entries) >= limit {
				break
			}
			entries = append(entries, crowdfund.LedgerEntry{
				Purchaser: purchaser,
				Purchases: append([]crowdfund.Purchase(nil), s.purchases[purchaser]...),
			})
		}
		return nil
	})
	return entries, err
}

func (r *CrowdfundRepository) TakePurchases(ctx context.Context, limit int) ([]crowdfund.Purchase, error) {
	var out []crowdfund.Purchase
	err := r.read(func(s *memoryState) error {
		for _, purchaser := range sortedPurchasers(s) {
			for _, p := range s.purchases[purchaser] {
				if len(out) >= limit {
					return nil
				}
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func sortedPurchasers(s *memoryState) []string {
	keys := make([]string, 0, len(s.purchases))
	for k := range s.purchases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
