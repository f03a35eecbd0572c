package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/yuzvak/crowdfund-service/internal/pkg/generator"
)

type LoadTestConfig struct {
	BaseURL             string
	ConcurrentBuyers    int
	TestDurationSeconds int
	RampUpSeconds       int
	TokensPerPurchase   uint32
}

type TestResult struct {
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	TokensPurchased     int64
	SuccessfulPurchases int64
	RejectedPurchases   int64
	ResponseTimes       []time.Duration
	Errors              map[string]int64
	mutex               sync.RWMutex
}

type PerformanceMetrics struct {
	StartTime           time.Time
	EndTime             time.Time
	TotalDuration       time.Duration
	ThroughputRPS       float64
	SuccessfulTPS       float64
	P50ResponseTime     time.Duration
	P95ResponseTime     time.Duration
	P99ResponseTime     time.Duration
	ErrorRate           float64
	PurchaseSuccessRate float64
	TokensPurchased     int64
	InventoryBefore     int
	InventoryAfter      int
	Oversold            bool
	Errors              map[string]int64
}

type LoadTester struct {
	config  *LoadTestConfig
	result  *TestResult
	client  *http.Client
	price   coin
	soldOut atomic.Bool
	runID   string
}

type coin struct {
	Denom  string `json:"denom"`
	Amount uint64 `json:"amount,string"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

func NewLoadTester(config *LoadTestConfig) *LoadTester {
	return &LoadTester{
		config: config,
		result: &TestResult{
			ResponseTimes: make([]time.Duration, 0),
			Errors:        make(map[string]int64),
		},
		runID: generator.RunID(),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        1000,
				MaxIdleConnsPerHost: 100,
				MaxConnsPerHost:     200,
			},
		},
	}
}

func (lt *LoadTester) recordResponse(duration time.Duration, success bool, operation string, err error) {
	lt.result.mutex.Lock()
	defer lt.result.mutex.Unlock()

	atomic.AddInt64(&lt.result.TotalRequests, 1)
	lt.result.ResponseTimes = append(lt.result.ResponseTimes, duration)

	if success {
		atomic.AddInt64(&lt.result.SuccessfulRequests, 1)
	} else {
		atomic.AddInt64(&lt.result.FailedRequests, 1)
		if err != nil {
			lt.result.Errors[fmt.Sprintf("%s: %s", operation, err.Error())]++
		}
	}
}

func (lt *LoadTester) get(path string, out any) error {
	resp, err := lt.client.Get(lt.config.BaseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %d %s", path, resp.StatusCode, env.Error)
	}
	return json.Unmarshal(env.Data, out)
}

// inventory pages through the available tokens.
func (lt *LoadTester) inventory() (int, error) {
	total := 0
	startAfter := ""
	for {
		var page struct {
			Tokens []string `json:"tokens"`
		}
		if err := lt.get("/tokens/available?limit=100&start_after="+url.QueryEscape(startAfter), &page); err != nil {
			return 0, err
		}
		total += len(page.Tokens)
		if len(page.Tokens) < 100 {
			return total, nil
		}
		startAfter = page.Tokens[len(page.Tokens)-1]
	}
}

func (lt *LoadTester) simulateBuyer(ctx context.Context, buyerID int, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if lt.soldOut.Load() {
				return
			}
			if !lt.performPurchase(fmt.Sprintf("buyer_%s_%d", lt.runID, buyerID)) {
				return
			}
			time.Sleep(time.Duration(rand.Intn(1000)) * time.Millisecond)
		}
	}
}

// performPurchase reports whether the buyer should keep trying.
func (lt *LoadTester) performPurchase(sender string) bool {
	n := lt.config.TokensPerPurchase
	body, _ := json.Marshal(map[string]any{
		"funds":            []coin{{Denom: lt.price.Denom, Amount: lt.price.Amount * uint64(n)}},
		"number_of_tokens": n,
	})

	req, err := http.NewRequest(http.MethodPost, lt.config.BaseURL+"/purchase", bytes.NewReader(body))
	if err != nil {
		lt.recordResponse(0, false, "purchase", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sender", sender)

	start := time.Now()
	resp, err := lt.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		lt.recordResponse(duration, false, "purchase", err)
		return true
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	_ = json.Unmarshal(raw, &env)

	switch {
	case resp.StatusCode == http.StatusOK:
		lt.recordResponse(duration, true, "purchase", nil)
		atomic.AddInt64(&lt.result.SuccessfulPurchases, 1)

		var result struct {
			Attributes []struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			} `json:"attributes"`
		}
		if json.Unmarshal(env.Data, &result) == nil {
			for _, attr := range result.Attributes {
				if attr.Key == "number_of_tokens_purchased" {
					var bought int64
					fmt.Sscan(attr.Value, &bought)
					atomic.AddInt64(&lt.result.TokensPurchased, bought)
				}
			}
		}
		return true
	case env.Code == "resource_exhaustion" || env.Code == "state_conflict":
		// Sold out, wallet limit reached or sale over: expected under contention.
		lt.recordResponse(duration, true, "purchase", nil)
		atomic.AddInt64(&lt.result.RejectedPurchases, 1)
		if env.Error == "all tokens purchased" || env.Error == "no ongoing sale" {
			lt.soldOut.Store(true)
		}
		return false
	default:
		lt.recordResponse(duration, false, "purchase", fmt.Errorf("%d %s", resp.StatusCode, env.Error))
		return true
	}
}

func (lt *LoadTester) Run() (*PerformanceMetrics, error) {
	var state struct {
		Price coin `json:"price"`
	}
	if err := lt.get("/sales/state", &state); err != nil {
		return nil, fmt.Errorf("no sale to test against: %w", err)
	}
	lt.price = state.Price

	before, err := lt.inventory()
	if err != nil {
		return nil, err
	}

	fmt.Printf("Starting load test with %d concurrent buyers for %d seconds (%d tokens, price %d%s)\n",
		lt.config.ConcurrentBuyers, lt.config.TestDurationSeconds, before, lt.price.Amount, lt.price.Denom)

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(lt.config.TestDurationSeconds)*time.Second)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, stopping test...")
		cancel()
	}()

	startTime := time.Now()
	var wg sync.WaitGroup

	userInterval := time.Duration(lt.config.RampUpSeconds) * time.Second / time.Duration(lt.config.ConcurrentBuyers)

	for i := 0; i < lt.config.ConcurrentBuyers; i++ {
		wg.Add(1)
		go lt.simulateBuyer(ctx, i, &wg)

		if i < lt.config.ConcurrentBuyers-1 {
			time.Sleep(userInterval)
		}
	}

	go lt.monitorProgress(ctx, startTime)

	wg.Wait()
	endTime := time.Now()

	metrics := lt.calculateMetrics(startTime, endTime)
	metrics.InventoryBefore = before
	if after, err := lt.inventory(); err == nil {
		metrics.InventoryAfter = after
		metrics.Oversold = int64(before-after) != metrics.TokensPurchased
	}
	return metrics, nil
}

func (lt *LoadTester) monitorProgress(ctx context.Context, startTime time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(startTime)
			totalReqs := atomic.LoadInt64(&lt.result.TotalRequests)
			bought := atomic.LoadInt64(&lt.result.TokensPurchased)

			fmt.Printf("[%s] Requests: %d, Tokens bought: %d, RPS: %.1f\n",
				elapsed.Round(time.Second), totalReqs, bought, float64(totalReqs)/elapsed.Seconds())
		}
	}
}

func (lt *LoadTester) calculateMetrics(startTime, endTime time.Time) *PerformanceMetrics {
	lt.result.mutex.RLock()
	defer lt.result.mutex.RUnlock()

	totalDuration := endTime.Sub(startTime)
	totalRequests := atomic.LoadInt64(&lt.result.TotalRequests)

	metrics := &PerformanceMetrics{
		StartTime:       startTime,
		EndTime:         endTime,
		TotalDuration:   totalDuration,
		TokensPurchased: atomic.LoadInt64(&lt.result.TokensPurchased),
		Errors:          lt.result.Errors,
	}

	if totalDuration.Seconds() > 0 {
		metrics.ThroughputRPS = float64(totalRequests) / totalDuration.Seconds()
		metrics.SuccessfulTPS = float64(lt.result.SuccessfulPurchases) / totalDuration.Seconds()
	}

	if totalRequests > 0 {
		metrics.ErrorRate = float64(atomic.LoadInt64(&lt.result.FailedRequests)) / float64(totalRequests) * 100
	}

	if attempts := lt.result.SuccessfulPurchases + lt.result.RejectedPurchases; attempts > 0 {
		metrics.PurchaseSuccessRate = float64(lt.result.SuccessfulPurchases) / float64(attempts) * 100
	}

	if len(lt.result.ResponseTimes) > 0 {
		metrics.P50ResponseTime = calculatePercentile(lt.result.ResponseTimes, 50)
		metrics.P95ResponseTime = calculatePercentile(lt.result.ResponseTimes, 95)
		metrics.P99ResponseTime = calculatePercentile(lt.result.ResponseTimes, 99)
	}

	return metrics
}

func calculatePercentile(durations []time.Duration, percentile int) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	index := int(float64(len(sorted)) * float64(percentile) / 100.0)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}

func (pm *PerformanceMetrics) PrintReport() {
	fmt.Printf("PERFORMANCE TEST RESULTS\n")
	fmt.Printf("Test Duration: %v\n", pm.TotalDuration.Round(time.Second))
	fmt.Printf("\n")

	fmt.Printf("THROUGHPUT METRICS:\n")
	fmt.Printf("- Total RPS: %.2f requests/second\n", pm.ThroughputRPS)
	fmt.Printf("- Successful purchases: %.2f/second\n", pm.SuccessfulTPS)
	fmt.Printf("- Error Rate: %.2f%%\n", pm.ErrorRate)
	fmt.Printf("\n")

	fmt.Printf("RESPONSE TIME METRICS:\n")
	fmt.Printf("- P50 Response Time: %v\n", pm.P50ResponseTime.Round(time.Millisecond))
	fmt.Printf("- P95 Response Time: %v\n", pm.P95ResponseTime.Round(time.Millisecond))
	fmt.Printf("- P99 Response Time: %v\n", pm.P99ResponseTime.Round(time.Millisecond))
	fmt.Printf("\n")

	fmt.Printf("SALE METRICS:\n")
	fmt.Printf("- Purchase Success Rate: %.2f%%\n", pm.PurchaseSuccessRate)
	fmt.Printf("- Tokens purchased: %d (inventory %d -> %d)\n", pm.TokensPurchased, pm.InventoryBefore, pm.InventoryAfter)
	if pm.Oversold {
		fmt.Printf("- WARNING: inventory change does not match tokens purchased\n")
	}
	fmt.Printf("\n")
}

func (pm *PerformanceMetrics) SaveToFile(filename string) error {
	data, err := json.MarshalIndent(pm, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
