// README: Traffic simulator; ingests orders and drives tablet claim/ready cycles against the API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

type Config struct {
	BaseURL     string
	Orders      int
	Operators   int
	PrepTime    time.Duration
	OvenSeconds int
	Timeout     time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("EXPO_SIM_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.IntVar(&cfg.Orders, "orders", envOrDefaultInt("EXPO_SIM_ORDERS", 10), "Orders to ingest")
	flag.IntVar(&cfg.Operators, "operators", envOrDefaultInt("EXPO_SIM_OPERATORS", 4), "Concurrent tablet operators")
	flag.DurationVar(&cfg.PrepTime, "prep", envOrDefaultDuration("EXPO_SIM_PREP", 2*time.Second), "Simulated prep time per item")
	flag.IntVar(&cfg.OvenSeconds, "oven-seconds", envOrDefaultInt("EXPO_SIM_OVEN_SECONDS", 10), "Oven duration for oven items")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("EXPO_SIM_TIMEOUT", 5*time.Minute), "Total run timeout")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

var products = []struct {
	name   string
	sector string
	oven   bool
}{
	{"pizza margherita", "", true},
	{"pizza calabresa", "", true},
	{"caipirinha", "bar", false},
	{"cold beer", "bar", false},
	{"french fries", "fryer", false},
	{"tiramisu", "desserts", false},
}

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	sim := &simulator{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}

	for i := 0; i < cfg.Orders; i++ {
		if err := sim.ingestOrder(ctx, i); err != nil {
			log.Fatalf("ingest order %d: %v", i, err)
		}
	}
	fmt.Printf("ingested %d orders\n", cfg.Orders)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Operators; i++ {
		wg.Add(1)
		go func(op int) {
			defer wg.Done()
			sim.runOperator(ctx, fmt.Sprintf("sim-op-%d", op))
		}(i)
	}
	wg.Wait()

	fmt.Printf("done: claimed=%d conflicts=%d ready=%d\n",
		sim.claimed.Load(), sim.conflicts.Load(), sim.ready.Load())
}

type simulator struct {
	cfg    Config
	client *http.Client

	claimed   counter
	conflicts counter
	ready     counter
}

func (s *simulator) ingestOrder(ctx context.Context, n int) error {
	count := 1 + rand.Intn(3)
	items := make([]map[string]any, count)
	for i := range items {
		p := products[rand.Intn(len(products))]
		items[i] = map[string]any{
			"product":  p.name,
			"quantity": 1 + rand.Intn(2),
			"sector":   p.sector,
		}
	}
	body := map[string]any{
		"ref":           fmt.Sprintf("sim-%d-%d", time.Now().UnixNano(), n),
		"customer_name": fmt.Sprintf("customer %d", n),
		"address":       "rua da simulacao, 42",
		"total":         "35.90",
		"order_type":    "delivery",
		"items":         items,
	}
	status, _, err := s.post(ctx, "/api/webhooks/orders", body)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", status)
	}
	return nil
}

// runOperator polls the pending queue and works items to ready until the
// queue stays empty.
func (s *simulator) runOperator(ctx context.Context, operatorID string) {
	idle := 0
	for idle < 5 {
		select {
		case <-ctx.Done():
			return
		default:
		}

		items, err := s.pendingItems(ctx)
		if err != nil {
			log.Printf("%s: list: %v", operatorID, err)
			return
		}
		if len(items) == 0 {
			idle++
			time.Sleep(time.Second)
			continue
		}
		idle = 0

		it := items[rand.Intn(len(items))]
		if err := s.workItem(ctx, operatorID, it); err != nil {
			log.Printf("%s: item %s: %v", operatorID, it.ID, err)
		}
	}
}

type simItem struct {
	ID     string  `json:"id"`
	Sector *string `json:"sector"`
}

func (s *simulator) pendingItems(ctx context.Context) ([]simItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/api/items?status=pending", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var items []simItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *simulator) workItem(ctx context.Context, operatorID string, it simItem) error {
	op := map[string]any{"operator_id": operatorID}

	status, _, err := s.post(ctx, "/api/items/"+it.ID+"/claim", op)
	if err != nil {
		return err
	}
	if status == http.StatusConflict {
		s.conflicts.Add(1)
		return nil
	}
	if status != http.StatusOK {
		return fmt.Errorf("claim status %d", status)
	}
	s.claimed.Add(1)

	time.Sleep(s.cfg.PrepTime)

	// Items without a sector go through the oven cycle.
	if it.Sector == nil || *it.Sector == "" {
		body := map[string]any{"operator_id": operatorID, "oven_seconds": s.cfg.OvenSeconds}
		if status, _, err = s.post(ctx, "/api/items/"+it.ID+"/oven", body); err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("oven status %d", status)
		}
		time.Sleep(time.Duration(s.cfg.OvenSeconds) * time.Second)
	}

	if status, _, err = s.post(ctx, "/api/items/"+it.ID+"/ready", op); err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("ready status %d", status)
	}
	s.ready.Add(1)
	return nil
}

func (s *simulator) post(ctx context.Context, path string, body any) (int, []byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data, nil
}

type counter struct {
	mu sync.Mutex
	n  int64
}

func (c *counter) Add(d int64) {
	c.mu.Lock()
	c.n += d
	c.mu.Unlock()
}

func (c *counter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
