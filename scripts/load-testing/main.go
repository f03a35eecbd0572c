package main

import (
	"fmt"
	"log"
	"os"
	"time"
)

func main() {
	config := &LoadTestConfig{
		BaseURL:             "http://localhost:8080",
		ConcurrentBuyers:    100,
		TestDurationSeconds: 60,
		RampUpSeconds:       10,
		TokensPerPurchase:   1,
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "light":
			config.ConcurrentBuyers = 50
			config.TestDurationSeconds = 30
		case "heavy":
			config.ConcurrentBuyers = 500
			config.TestDurationSeconds = 300
		case "stress":
			config.ConcurrentBuyers = 1000
			config.TestDurationSeconds = 600
		}
	}
	if url := os.Getenv("CROWDFUND_URL"); url != "" {
		config.BaseURL = url
	}

	loadTester := NewLoadTester(config)

	if len(os.Args) > 1 && os.Args[1] == "setup" {
		err := loadTester.Setup(SetupConfig{
			Owner:         "loadtest-owner",
			TokenAddress:  "registry",
			TokenCount:    10000,
			Price:         coin{Denom: "uusd", Amount: 10},
			MinTokensSold: 1,
			MaxPerWallet:  5,
			SaleDuration:  time.Hour,
		})
		if err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	fmt.Printf("Configuration:\n")
	fmt.Printf("- Base URL: %s\n", config.BaseURL)
	fmt.Printf("- Concurrent Buyers: %d\n", config.ConcurrentBuyers)
	fmt.Printf("- Test Duration: %d seconds\n", config.TestDurationSeconds)
	fmt.Printf("- Ramp Up: %d seconds\n", config.RampUpSeconds)
	fmt.Printf("\nStarting test...\n\n")

	metrics, err := loadTester.Run()
	if err != nil {
		log.Fatalf("Load test failed: %v", err)
	}

	metrics.PrintReport()

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("load_test_results_%s.json", timestamp)
	if err := metrics.SaveToFile(filename); err != nil {
		log.Printf("Failed to save results to file: %v", err)
	} else {
		fmt.Printf("Results saved to: %s\n", filename)
	}
}
