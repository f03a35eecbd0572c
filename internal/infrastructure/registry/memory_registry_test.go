package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
)

func TestMemoryRegistryDelivery(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	for _, msg := range []crowdfund.Message{
		crowdfund.RegistryMint("nft", "crowdfund", crowdfund.MintRequest{TokenID: "1"}),
		crowdfund.RegistryMint("nft", "crowdfund", crowdfund.MintRequest{TokenID: "2"}),
		crowdfund.RegistryMint("nft", "crowdfund", crowdfund.MintRequest{TokenID: "3"}),
		crowdfund.RegistryTransfer("nft", "alice", "1"),
		crowdfund.RegistryBurn("nft", "3"),
	} {
		require.NoError(t, crowdfund.Deliver(ctx, reg, msg))
	}

	owned, err := reg.Tokens(ctx, "nft", "crowdfund", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, owned)

	owner, ok := reg.OwnerOf("nft", "1")
	require.True(t, ok)
	assert.Equal(t, "alice", owner)

	_, ok = reg.OwnerOf("nft", "3")
	assert.False(t, ok)
}

func TestMemoryRegistryRedeliveryIsHarmless(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	mint := crowdfund.RegistryMint("nft", "crowdfund", crowdfund.MintRequest{TokenID: "1"})
	require.NoError(t, crowdfund.Deliver(ctx, reg, mint))
	require.NoError(t, crowdfund.Deliver(ctx, reg, mint))

	transfer := crowdfund.RegistryTransfer("nft", "alice", "1")
	require.NoError(t, crowdfund.Deliver(ctx, reg, transfer))
	require.NoError(t, crowdfund.Deliver(ctx, reg, transfer))

	burn := crowdfund.RegistryBurn("nft", "1")
	require.NoError(t, crowdfund.Deliver(ctx, reg, burn))
	require.NoError(t, crowdfund.Deliver(ctx, reg, burn))

	err := reg.Mint(ctx, "nft", "2", "bob", "", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, reg.Mint(ctx, "nft", "2", "carol", "", nil), ErrTokenExists)
	assert.ErrorIs(t, reg.TransferTo(ctx, "nft", "bob", "9"), ErrTokenNotFound)
}

func TestMemoryRegistryInjectedFailure(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	boom := errors.New("registry unavailable")

	reg.FailNext(crowdfund.MessageRegistryMint, boom)
	assert.ErrorIs(t, reg.Mint(ctx, "nft", "1", "crowdfund", "", nil), boom)
	assert.NoError(t, reg.Mint(ctx, "nft", "1", "crowdfund", "", nil))
}
