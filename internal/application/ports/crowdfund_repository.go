package ports

import (
	"context"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
)

// CrowdfundRepository is the crowdfund store. Calls made on the value returned
// by BeginTx share one transaction; nothing they write is visible until CommitTx.
type CrowdfundRepository interface {
	crowdfund.Repository

	AppendOutbox(ctx context.Context, msgs ...*OutboxMessage) error

	BeginTx(ctx context.Context) (CrowdfundRepository, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}
