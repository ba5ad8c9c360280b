package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TransactionPayload is the body of POST /finance/transactions.
type TransactionPayload struct {
	Description string `json:"description"`
	Code        string `json:"code"`
	CostCenter  string `json:"cost_center"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	Date        string `json:"date"`
}

type LoadTestConfig struct {
	BaseURL           string
	RequestsPerSecond int
	DurationSeconds   int
	ConcurrentWorkers int
	RunID             string
}

type Stats struct {
	successCount  atomic.Int64
	createdCents  atomic.Int64
	conflictCount atomic.Int64
	errorCount    atomic.Int64
	responseTimes []float64
	mu            sync.Mutex
}

func (s *Stats) addResponseTime(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseTimes = append(s.responseTimes, duration)
}

func (s *Stats) getResponseTimes() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.responseTimes)
}

var seq atomic.Int64

// nextPayload alternates revenue and expense rows so the running balance
// moves both ways under concurrent writes.
func nextPayload(runID string) ([]byte, int64) {
	n := seq.Add(1)
	amount, cents := "100.00", int64(10000)
	if n%2 == 0 {
		amount, cents = "-40.00", -4000
	}
	p := TransactionPayload{
		Description: "Load test " + strconv.FormatInt(n, 10),
		Code:        fmt.Sprintf("LOAD-%s-%d", runID, n),
		CostCenter:  "Carga",
		Amount:      amount,
		Status:      "pendente",
		Date:        time.Now().Format("2006-01-02"),
	}
	b, _ := json.Marshal(p)
	return b, cents
}

func sendRequest(client *http.Client, config LoadTestConfig, stats *Stats) {
	start := time.Now()

	body, cents := nextPayload(config.RunID)
	req, err := http.NewRequest(http.MethodPost, config.BaseURL+"/finance/transactions", bytes.NewReader(body))
	if err != nil {
		stats.errorCount.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		stats.errorCount.Add(1)
		stats.addResponseTime(time.Since(start).Seconds())
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	stats.addResponseTime(time.Since(start).Seconds())

	switch resp.StatusCode {
	case http.StatusCreated:
		stats.successCount.Add(1)
		stats.createdCents.Add(cents)
	case http.StatusConflict:
		stats.conflictCount.Add(1)
	default:
		stats.errorCount.Add(1)
	}
}

func worker(client *http.Client, config LoadTestConfig, stats *Stats, jobs <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	for range jobs {
		sendRequest(client, config, stats)
	}
}

func calculatePercentile(sorted []float64, percentile float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)) * percentile)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

type summary struct {
	Revenue  json.Number `json:"revenue"`
	Expenses json.Number `json:"expenses"`
	Balance  json.Number `json:"balance"`
}

func fetchSummary(client *http.Client, baseURL string) (*summary, error) {
	resp, err := client.Get(baseURL + "/finance/summary")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summary returned %d", resp.StatusCode)
	}
	var s summary
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func main() {
	config := LoadTestConfig{
		BaseURL:           strings.TrimRight(getEnvOrDefault("TARGET_URL", "http://localhost:4000/api/v1"), "/"),
		RequestsPerSecond: getEnvIntOrDefault("REQUESTS_PER_SECOND", 50),
		DurationSeconds:   getEnvIntOrDefault("DURATION_SECONDS", 10),
		ConcurrentWorkers: getEnvIntOrDefault("CONCURRENT_WORKERS", 20),
		RunID:             strconv.FormatInt(time.Now().Unix(), 36),
	}

	fmt.Println("Starting load test...")
	fmt.Printf("Target: %s\n", config.BaseURL)
	fmt.Printf("Total requests: %d\n", config.RequestsPerSecond*config.DurationSeconds)
	fmt.Printf("Target RPS: %d\n", config.RequestsPerSecond)
	fmt.Printf("Concurrent workers: %d\n", config.ConcurrentWorkers)
	fmt.Printf("Duration: %d seconds\n", config.DurationSeconds)
	fmt.Println(strings.Repeat("-", 50))

	stats := &Stats{}
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        config.ConcurrentWorkers,
			MaxIdleConnsPerHost: config.ConcurrentWorkers,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 60 * time.Second,
	}

	before, err := fetchSummary(client, config.BaseURL)
	if err != nil {
		fmt.Printf("could not read the summary before the run: %v\n", err)
	}

	jobs := make(chan struct{}, config.RequestsPerSecond)
	var wg sync.WaitGroup
	for i := 0; i < config.ConcurrentWorkers; i++ {
		wg.Add(1)
		go worker(client, config, stats, jobs, &wg)
	}

	startTime := time.Now()
	totalRequests := config.RequestsPerSecond * config.DurationSeconds
	requestsSent := 0

	for i := 0; i < config.DurationSeconds && requestsSent < totalRequests; i++ {
		batchStart := time.Now()
		for j := 0; j < config.RequestsPerSecond && requestsSent < totalRequests; j++ {
			jobs <- struct{}{}
			requestsSent++
		}

		success := stats.successCount.Load()
		failed := stats.errorCount.Load() + stats.conflictCount.Load()
		fmt.Printf("[%ds] Completed: %d | Created: %d | Failed: %d\n", i+1, success+failed, success, failed)

		if elapsed := time.Since(batchStart); elapsed < time.Second {
			time.Sleep(time.Second - elapsed)
		}
	}

	close(jobs)
	wg.Wait()

	duration := time.Since(startTime).Seconds()
	success := stats.successCount.Load()
	conflicts := stats.conflictCount.Load()
	errs := stats.errorCount.Load()
	total := success + conflicts + errs

	times := stats.getResponseTimes()
	slices.Sort(times)
	var avg float64
	for _, t := range times {
		avg += t
	}
	if len(times) > 0 {
		avg /= float64(len(times))
	}

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Duration: %.2f seconds\n", duration)
	fmt.Printf("Total requests: %d\n", total)
	fmt.Printf("Created: %d\n", success)
	fmt.Printf("Conflicts: %d\n", conflicts)
	fmt.Printf("Failed: %d\n", errs)
	if total > 0 {
		fmt.Printf("Success rate: %.2f%%\n", float64(success)/float64(total)*100)
	}
	fmt.Printf("\nActual RPS: %.2f\n", float64(total)/duration)
	if len(times) > 0 {
		fmt.Printf("\nResponse times:\n")
		fmt.Printf("  Average: %.2f ms\n", avg*1000)
		fmt.Printf("  P50: %.2f ms\n", calculatePercentile(times, 0.50)*1000)
		fmt.Printf("  P95: %.2f ms\n", calculatePercentile(times, 0.95)*1000)
		fmt.Printf("  P99: %.2f ms\n", calculatePercentile(times, 0.99)*1000)
		fmt.Printf("  Min: %.2f ms\n", times[0]*1000)
		fmt.Printf("  Max: %.2f ms\n", times[len(times)-1]*1000)
	}

	after, err := fetchSummary(client, config.BaseURL)
	if err != nil || before == nil {
		return
	}
	b0, _ := before.Balance.Float64()
	b1, _ := after.Balance.Float64()
	expected := float64(stats.createdCents.Load()) / 100
	fmt.Printf("\nBalance moved by %.2f, created rows add up to %.2f\n", b1-b0, expected)
	if fmt.Sprintf("%.2f", b1-b0) != fmt.Sprintf("%.2f", expected) {
		fmt.Println("WARNING: balance drift detected; another writer may have touched the ledger during the run")
	}
}
