package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	"github.com/yuzvak/crowdfund-service/internal/pkg/generator"
)

type SetupConfig struct {
	Owner         string
	TokenAddress  string
	TokenCount    int
	Price         coin
	MinTokensSold uint64
	MaxPerWallet  uint32
	SaleDuration  time.Duration
}

// Setup instantiates the crowdfund if needed, mints the inventory and starts a sale.
func (lt *LoadTester) Setup(cfg SetupConfig) error {
	code, env, err := lt.post("/admin/instantiate", cfg.Owner, map[string]any{"token_address": cfg.TokenAddress})
	if err != nil {
		return err
	}
	if code != http.StatusCreated && env.Code != "state_conflict" {
		return fmt.Errorf("instantiate: %d %s", code, env.Error)
	}

	mints := generator.NewTokenGenerator("lt-"+generator.RunID(), cfg.TokenCount).GenerateMints(cfg.TokenCount)
	for start := 0; start < len(mints); start += crowdfund.MaxMintLimit {
		end := min(start+crowdfund.MaxMintLimit, len(mints))
		code, env, err := lt.post("/tokens/mint", cfg.Owner, map[string]any{"tokens": mints[start:end]})
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return fmt.Errorf("mint: %d %s", code, env.Error)
		}
	}

	code, env, err = lt.post("/sales", cfg.Owner, map[string]any{
		"expiration":            crowdfund.ExpiresAtTime(time.Now().Add(cfg.SaleDuration)),
		"price":                 cfg.Price,
		"min_tokens_sold":       cfg.MinTokensSold,
		"max_amount_per_wallet": cfg.MaxPerWallet,
		"recipient":             map[string]string{"address": cfg.Owner},
	})
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("start sale: %d %s", code, env.Error)
	}

	fmt.Printf("Sale started: %d tokens at %d%s\n", cfg.TokenCount, cfg.Price.Amount, cfg.Price.Denom)
	return nil
}

func (lt *LoadTester) post(path, sender string, body any) (int, envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, envelope{}, err
	}
	req, err := http.NewRequest(http.MethodPost, lt.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sender", sender)

	resp, err := lt.client.Do(req)
	if err != nil {
		return 0, envelope{}, err
	}
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env, nil
}
