package recipient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

func TestResolve(t *testing.T) {
	ctx := context.Background()
	book := NewAddressBook(map[string]string{"treasury": "addr1treasury"}, false)

	addr, err := book.Resolve(ctx, "treasury")
	require.NoError(t, err)
	assert.Equal(t, "addr1treasury", addr)

	addr, err = book.Resolve(ctx, "addr1raw")
	require.NoError(t, err)
	assert.Equal(t, "addr1raw", addr)

	_, err = book.Resolve(ctx, " ")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidRecipient)

	book.Set("vault", "addr1vault")
	addr, err = book.Resolve(ctx, "vault")
	require.NoError(t, err)
	assert.Equal(t, "addr1vault", addr)
}

func TestResolveStrict(t *testing.T) {
	book := NewAddressBook(map[string]string{"treasury": "addr1treasury"}, true)

	_, err := book.Resolve(context.Background(), "unknown")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidRecipient)
}
