package crowdfund

import (
	"encoding/json"
	"strconv"
)

type MessageKind string

const (
	MessageBankSend         MessageKind = "bank_send"
	MessageForward          MessageKind = "recipient_forward"
	MessageRegistryMint     MessageKind = "registry_mint"
	MessageRegistryBurn     MessageKind = "registry_burn"
	MessageRegistryTransfer MessageKind = "registry_transfer"
)

// Message is an instruction emitted by a call. Messages are dispatched after
// the call commits and are never awaited by the engine.
type Message struct {
	Kind      MessageKind     `json:"kind"`
	Contract  string          `json:"contract,omitempty"`
	To        string          `json:"to,omitempty"`
	TokenID   string          `json:"token_id,omitempty"`
	TokenURI  string          `json:"token_uri,omitempty"`
	Extension json.RawMessage `json:"extension,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Funds     []Coin          `json:"funds,omitempty"`
}

func BankSend(to string, funds ...Coin) Message {
	return Message{Kind: MessageBankSend, To: to, Funds: funds}
}

func Forward(recipient Recipient, funds ...Coin) Message {
	return Message{Kind: MessageForward, To: recipient.Address, Payload: recipient.Msg, Funds: funds}
}

func RegistryMint(contract, owner string, req MintRequest) Message {
	return Message{
		Kind:      MessageRegistryMint,
		Contract:  contract,
		To:        owner,
		TokenID:   req.TokenID,
		TokenURI:  req.TokenURI,
		Extension: req.Extension,
	}
}

func RegistryBurn(contract, tokenID string) Message {
	return Message{Kind: MessageRegistryBurn, Contract: contract, TokenID: tokenID}
}

func RegistryTransfer(contract, recipient, tokenID string) Message {
	return Message{Kind: MessageRegistryTransfer, Contract: contract, To: recipient, TokenID: tokenID}
}

// IsRegistryMessage reports whether m is addressed to the token registry.
func (m Message) IsRegistryMessage() bool {
	switch m.Kind {
	case MessageRegistryMint, MessageRegistryBurn, MessageRegistryTransfer:
		return true
	default:
		return false
	}
}

// MergeBankSends folds bank sends to the same address into one message,
// summing amounts per denomination. Other messages keep their position.
func MergeBankSends(msgs []Message) ([]Message, error) {
	merged := make([]Message, 0, len(msgs))
	index := make(map[string]int)

	for _, msg := range msgs {
		if msg.Kind != MessageBankSend {
			merged = append(merged, msg)
			continue
		}
		pos, ok := index[msg.To]
		if !ok {
			index[msg.To] = len(merged)
			merged = append(merged, BankSend(msg.To, append([]Coin(nil), msg.Funds...)...))
			continue
		}
		for _, coin := range msg.Funds {
			funds, err := addCoin(merged[pos].Funds, coin)
			if err != nil {
				return nil, err
			}
			merged[pos].Funds = funds
		}
	}

	return merged, nil
}

func addCoin(funds []Coin, coin Coin) ([]Coin, error) {
	for i := range funds {
		if funds[i].Denom == coin.Denom {
			sum, err := addAmount(funds[i].Amount, coin.Amount)
			if err != nil {
				return nil, err
			}
			funds[i].Amount = sum
			return funds, nil
		}
	}
	return append(funds, coin), nil
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is the outcome of a successful call: attributes describing what
// happened plus the messages to dispatch.
type Response struct {
	Attributes []Attribute `json:"attributes"`
	Messages   []Message   `json:"messages"`
}

func NewResponse() *Response {
	return &Response{Attributes: []Attribute{}, Messages: []Message{}}
}

func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

func (r *Response) AddUintAttribute(key string, value uint64) *Response {
	return r.AddAttribute(key, strconv.FormatUint(value, 10))
}

func (r *Response) AddMessages(msgs ...Message) *Response {
	r.Messages = append(r.Messages, msgs...)
	return r
}

// Attribute returns the last value recorded for key.
func (r *Response) Attribute(key string) string {
	for i := len(r.Attributes) - 1; i >= 0; i-- {
		if r.Attributes[i].Key == key {
			return r.Attributes[i].Value
		}
	}
	return ""
}

// MessagesOf filters the response messages by kind.
func (r *Response) MessagesOf(kind MessageKind) []Message {
	var out []Message
	for _, m := range r.Messages {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}
