package errors

import (
	"errors"
)

// Class groups domain errors by how the caller should react to them.
type Class string

const (
	ClassAuthorization      Class = "authorization"
	ClassStateConflict      Class = "state_conflict"
	ClassResourceExhaustion Class = "resource_exhaustion"
	ClassFundsMismatch      Class = "funds_mismatch"
	ClassInvalidInput       Class = "invalid_input"
	ClassInternal           Class = "internal"
)

type Error struct {
	class Class
	msg   string
}

func newError(class Class, msg string) *Error {
	return &Error{class: class, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Class() Class {
	return e.class
}

var (
	ErrUnauthorized = newError(ClassAuthorization, "unauthorized")

	ErrSaleStarted                  = newError(ClassStateConflict, "sale already started")
	ErrNoOngoingSale                = newError(ClassStateConflict, "no ongoing sale")
	ErrSaleNotEnded                 = newError(ClassStateConflict, "sale has not ended")
	ErrMinSalesExceeded             = newError(ClassStateConflict, "minimum sales exceeded, sale cannot be refunded")
	ErrNoPurchases                  = newError(ClassStateConflict, "no purchases to refund")
	ErrCannotMintAfterSaleConducted = newError(ClassStateConflict, "cannot mint after a sale has been conducted")
	ErrNotInitialized               = newError(ClassStateConflict, "crowdfund is not initialized")
	ErrAlreadyInitialized           = newError(ClassStateConflict, "crowdfund is already initialized")
	ErrTokenAlreadyMinted           = newError(ClassStateConflict, "token already minted")

	ErrPurchaseLimitReached = newError(ClassResourceExhaustion, "purchase limit reached")
	ErrAllTokensPurchased   = newError(ClassResourceExhaustion, "all tokens purchased")
	ErrTokenNotAvailable    = newError(ClassResourceExhaustion, "token not available")
	ErrTooManyMintMessages  = newError(ClassResourceExhaustion, "too many mint messages")
	ErrLimitMustNotBeZero   = newError(ClassResourceExhaustion, "limit must not be zero")

	ErrInvalidFunds      = newError(ClassFundsMismatch, "invalid funds")
	ErrInsufficientFunds = newError(ClassFundsMismatch, "insufficient funds")
	ErrNonPayable        = newError(ClassFundsMismatch, "operation does not accept funds")

	ErrExpirationMustNotBeNever = newError(ClassInvalidInput, "expiration must not be never")
	ErrExpirationInPast         = newError(ClassInvalidInput, "expiration is in the past")
	ErrInvalidExpiration        = newError(ClassInvalidInput, "unknown expiration kind")
	ErrInvalidPrice             = newError(ClassInvalidInput, "price must be greater than zero")
	ErrInvalidMaxPerWallet      = newError(ClassInvalidInput, "max amount per wallet must be greater than zero")
	ErrInvalidNumberOfTokens    = newError(ClassInvalidInput, "number of tokens must be greater than zero")
	ErrInvalidTokenID           = newError(ClassInvalidInput, "token id cannot be empty")
	ErrInvalidRecipient         = newError(ClassInvalidInput, "invalid recipient")

	ErrAmountOverflow     = newError(ClassInternal, "amount overflow")
	ErrLedgerInconsistent = newError(ClassInternal, "ledger does not match sale state")
	// ErrTransactionFailed is transient: the call may be retried as a whole.
	ErrTransactionFailed = newError(ClassInternal, "transaction failed")
)

// ClassOf reports the class of err, or ClassInternal when err is not a domain error.
func ClassOf(err error) Class {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.class
	}
	return ClassInternal
}
