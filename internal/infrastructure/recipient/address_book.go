package recipient

import (
	"context"
	"strings"
	"sync"

	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

// AddressBook resolves symbolic names to addresses. Names that are not in
// the book are treated as addresses unless the book is strict.
type AddressBook struct {
	mu      sync.RWMutex
	entries map[string]string
	strict  bool
}

func NewAddressBook(entries map[string]string, strict bool) *AddressBook {
	book := &AddressBook{entries: make(map[string]string, len(entries)), strict: strict}
	for name, addr := range entries {
		book.entries[name] = addr
	}
	return book
}

func (b *AddressBook) Resolve(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domainErrors.ErrInvalidRecipient
	}

	b.mu.RLock()
	addr, ok := b.entries[name]
	b.mu.RUnlock()

	switch {
	case ok:
		return addr, nil
	case b.strict:
		return "", domainErrors.ErrInvalidRecipient
	default:
		return name, nil
	}
}

func (b *AddressBook) Set(name, addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[name] = addr
}
