package crowdfund

import (
	"fmt"
	"time"

	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

// BlockInfo is the externally supplied clock every transition is evaluated against.
type BlockInfo struct {
	Height uint64    `json:"height"`
	Time   time.Time `json:"time"`
}

type ExpirationKind string

const (
	ExpirationNever    ExpirationKind = "never"
	ExpirationAtHeight ExpirationKind = "at_height"
	ExpirationAtTime   ExpirationKind = "at_time"
)

type Expiration struct {
	Kind   ExpirationKind `json:"kind"`
	Height uint64         `json:"height,omitempty"`
	Time   time.Time      `json:"time,omitzero"`
}

func ExpiresAtHeight(height uint64) Expiration {
	return Expiration{Kind: ExpirationAtHeight, Height: height}
}

func ExpiresAtTime(t time.Time) Expiration {
	return Expiration{Kind: ExpirationAtTime, Time: t.UTC()}
}

func NeverExpires() Expiration {
	return Expiration{Kind: ExpirationNever}
}

// Validate accepts only expirations a sale can actually reach.
func (e Expiration) Validate() error {
	switch e.Kind {
	case ExpirationAtHeight, ExpirationAtTime:
		return nil
	case ExpirationNever, "":
		return domainErrors.ErrExpirationMustNotBeNever
	default:
		return fmt.Errorf("%q: %w", e.Kind, domainErrors.ErrInvalidExpiration)
	}
}

func (e Expiration) IsExpired(block BlockInfo) bool {
	switch e.Kind {
	case ExpirationAtHeight:
		return block.Height >= e.Height
	case ExpirationAtTime:
		return !block.Time.Before(e.Time)
	default:
		return false
	}
}

func (e Expiration) String() string {
	switch e.Kind {
	case ExpirationAtHeight:
		return fmt.Sprintf("expiration height: %d", e.Height)
	case ExpirationAtTime:
		return fmt.Sprintf("expiration time: %s", e.Time.Format(time.RFC3339))
	default:
		return "expiration: never"
	}
}
