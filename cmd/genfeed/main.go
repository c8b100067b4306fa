// Command genfeed generates an encrypted sample feed envelope for local
// development: a handful of incident records sealed with the same scheme
// the vendor uses, ready to serve from any static file server.
//
// Usage:
//
//	go run ./cmd/genfeed -password dev-feed-password -out testdata/incidents.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/the-data-sherpa/vanguard-sub000/internal/feed"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	password := flag.String("password", "", "feed encryption password")
	out := flag.String("out", "", "output path for the sealed envelope JSON")
	count := flag.Int("count", 5, "number of sample incidents")
	flag.Parse()

	if *password == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -password, -out")
	}

	env, err := feed.Seal(sampleIncidents(*count), *password)
	if err != nil {
		return fmt.Errorf("seal feed: %w", err)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := os.WriteFile(*out, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}

	log.Printf("wrote %d sealed incidents to %s", *count, *out)
	return nil
}

var sampleCalls = []struct {
	callType string
	address  string
	units    []string
}{
	{"STRUF", "123 Main Street", []string{"E1", "L2", "BC1"}},
	{"EMS", "9 Oak Avenue Apartment 4", []string{"M3"}},
	{"MVA", "Interstate 40 Westbound Mile 291", []string{"E5", "R1"}},
	{"GASLK", "47 Industrial Drive", []string{"E2", "HM1"}},
	{"WATER", "Crabtree Creek Greenway", []string{"R1", "B2"}},
}

func sampleIncidents(count int) []map[string]any {
	now := time.Now().UTC()
	out := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		call := sampleCalls[i%len(sampleCalls)]
		received := now.Add(-time.Duration(i*7) * time.Minute)

		units := make([]any, len(call.units))
		statuses := make([]any, len(call.units))
		for j, u := range call.units {
			units[j] = u
			statuses[j] = map[string]any{
				"unit":       u,
				"dispatched": received.Add(30 * time.Second).Format(time.RFC3339),
				"enroute":    received.Add(2 * time.Minute).Format(time.RFC3339),
			}
		}

		out = append(out, map[string]any{
			"incident_id":        fmt.Sprintf("CAD-%d", 1000+i),
			"call_type":          call.callType,
			"address":            call.address,
			"call_received_time": received.Format(time.RFC3339),
			"latitude":           35.78 + float64(i)*0.01,
			"longitude":          -78.64 - float64(i)*0.01,
			"units":              units,
			"unit_statuses":      statuses,
		})
	}
	return out
}
