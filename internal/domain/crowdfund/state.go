package crowdfund

import (
	"encoding/json"
)

type Config struct {
	Owner            string `json:"owner"`
	TokenAddress     string `json:"token_address"`
	CanMintAfterSale bool   `json:"can_mint_after_sale"`
}

// Recipient receives sale proceeds. A non-empty Msg means the funds are routed
// through a forwarding message instead of a direct transfer.
type Recipient struct {
	Address string          `json:"address"`
	Msg     json.RawMessage `json:"msg,omitempty"`
}

func (r Recipient) HasMsg() bool {
	return len(r.Msg) > 0
}

// State only exists while a sale is active or settling.
type State struct {
	Expiration         Expiration `json:"expiration"`
	Price              Coin       `json:"price"`
	MinTokensSold      uint64     `json:"min_tokens_sold"`
	MaxAmountPerWallet uint32     `json:"max_amount_per_wallet"`
	Recipient          Recipient  `json:"recipient"`

	AmountSold        uint64 `json:"amount_sold"`
	AmountToSend      uint64 `json:"amount_to_send"`
	AmountTransferred uint64 `json:"amount_transferred"`
	AmountRefunded    uint64 `json:"amount_refunded"`
}

func (s *State) IsExpired(block BlockInfo) bool {
	return s.Expiration.IsExpired(block)
}

func (s *State) MinimumReached() bool {
	return s.AmountSold >= s.MinTokensSold
}

// Outstanding is the number of purchases still waiting for settlement.
func (s *State) Outstanding() uint64 {
	return subSaturating(s.AmountSold, s.AmountTransferred+s.AmountRefunded)
}

func (s *State) Clone() *State {
	clone := *s
	clone.Recipient.Msg = append(json.RawMessage(nil), s.Recipient.Msg...)
	return &clone
}

type Purchase struct {
	TokenID   string    `json:"token_id"`
	Purchaser string    `json:"purchaser"`
	TaxAmount uint64    `json:"tax_amount"`
	Msgs      []Message `json:"msgs,omitempty"`
}

// LedgerEntry is the ordered list of one buyer's unsettled purchases.
type LedgerEntry struct {
	Purchaser string     `json:"purchaser"`
	Purchases []Purchase `json:"purchases"`
}

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseActive  Phase = "active"
	PhaseClosing Phase = "closing"
)

// DerivePhase computes the lifecycle phase from the optional state, the
// inventory size and the block. It is never stored.
func DerivePhase(state *State, available uint64, block BlockInfo) Phase {
	if state == nil {
		return PhaseIdle
	}
	if state.IsExpired(block) || available == 0 {
		return PhaseClosing
	}
	return PhaseActive
}

// MintRequest describes one token to mint. An empty Owner mints to the crowdfund itself.
type MintRequest struct {
	TokenID   string          `json:"token_id"`
	Owner     string          `json:"owner,omitempty"`
	TokenURI  string          `json:"token_uri,omitempty"`
	Extension json.RawMessage `json:"extension,omitempty"`
}
