// Stress Test: writes a synthetic HAProxy log and times the parser pool on it.
// Run: go run ./cmd/stress --lines 1000000
// Then: hapdb new /tmp/hapdb-stress.log && hapdb serve --db /tmp/hapdb-stress.log.db
// Verify: go run ./cmd/stress --verify http://localhost:9102

package main

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"hapdb/internal/worker"

	json "github.com/goccy/go-json"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/pflag"
)

var (
	methods  = []string{"GET", "GET", "GET", "POST", "PUT", "DELETE", "HEAD"}
	backends = []string{"web/web1", "web/web2", "api/api1", "api/api2", "static/<NOSRV>"}
	statuses = []int{200, 200, 200, 200, 301, 304, 404, 500, 503}
)

func main() {
	lines := pflag.Int("lines", 500000, "number of log lines to generate")
	out := pflag.String("out", "/tmp/hapdb-stress.log", "generated log file")
	verify := pflag.String("verify", "", "query a running hapdb serve at this base URL instead")
	pflag.Parse()

	if *verify != "" {
		os.Exit(verifyAPI(*verify))
	}

	fmt.Println("=== hapdb Stress Test ===")
	fmt.Printf("CPUs: %d, generating %d lines\n\n", runtime.NumCPU(), *lines)

	// Phase 1: generate
	fmt.Println("[1/3] Writing synthetic log...")
	input, err := generate(*out, *lines)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  Wrote %s\n", *out)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	// Phase 2: parse with growing pools
	fmt.Println("[2/3] Parsing...")
	var records int
	for workers := 1; workers <= runtime.NumCPU(); workers *= 2 {
		pool := worker.NewPool(workers, 4096, nil, nil)
		start := time.Now()
		recs, err := pool.ParseAll(ctx, input)
		if err != nil {
			fmt.Printf("\n  Interrupted: %v\n", err)
			os.Exit(1)
		}
		elapsed := time.Since(start)
		records = len(recs)
		fmt.Printf("  workers=%-3d %8.0f lines/s  (%s)", workers, float64(len(input))/elapsed.Seconds(), elapsed.Round(time.Millisecond))

		u, err := sample(self)
		if err != nil {
			fmt.Printf("  usage unavailable: %v\n", err)
			continue
		}
		fmt.Printf("  rss=%.0f MB cpu=%.0f%%\n", u.RSSMB, u.CPUPct)
	}

	// Phase 3: check skip ratio, every 50th line is garbage
	fmt.Println("[3/3] Checking results...")
	wantRecords := len(input) - (len(input)+49)/50
	if records != wantRecords {
		fmt.Printf("❌ Parsed %d records, expected %d\n", records, wantRecords)
		os.Exit(1)
	}
	fmt.Printf("✅ %d records from %d lines\n", records, len(input))
}

// usage is the stress process's footprint right after a parse run.
type usage struct {
	RSSMB  float64
	CPUPct float64 // since process start, summed over cores
}

func sample(p *process.Process) (usage, error) {
	mem, err := p.MemoryInfo()
	if err != nil {
		return usage{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return usage{}, err
	}
	return usage{RSSMB: float64(mem.RSS) / 1024 / 1024, CPUPct: cpu}, nil
}

// generate writes n syslog-wrapped lines to path and returns them.
func generate(path string, n int) ([]string, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	rng := rand.New(rand.NewSource(1))
	base := time.Date(2013, 12, 9, 12, 0, 0, 0, time.UTC)
	lines := make([]string, 0, n)

	for i := 0; i < n; i++ {
		var line string
		switch {
		case i%50 == 0:
			line = "Dec  9 13:01:26 localhost haproxy[28029]: Proxy loadbalancer started."
		case i%97 == 0:
			line = syntheticLine(rng, base.Add(time.Duration(i)*time.Millisecond), `<BADREQ>`)
		default:
			req := fmt.Sprintf("%s /item/%d HTTP/1.1", methods[rng.Intn(len(methods))], rng.Intn(10000))
			line = syntheticLine(rng, base.Add(time.Duration(i)*time.Millisecond), req)
		}
		lines = append(lines, line)
		w.WriteString(line)
		w.WriteByte('\n')
	}

	if err := w.Flush(); err != nil {
		return nil, err
	}
	return lines, nil
}

func syntheticLine(rng *rand.Rand, ts time.Time, request string) string {
	tr := rng.Intn(500)
	return fmt.Sprintf(
		`%s localhost haproxy[28029]: 10.%d.%d.%d:%d [%s.%03d] fe %s 0/0/%d/%d/%d %d %d - - ---- %d/%d/%d/%d/0 0/0 "%s"`,
		ts.Format("Jan _2 15:04:05"),
		rng.Intn(256), rng.Intn(256), rng.Intn(256), 1024+rng.Intn(60000),
		ts.Format("02/Jan/2006:15:04:05"), ts.Nanosecond()/int(time.Millisecond),
		backends[rng.Intn(len(backends))],
		rng.Intn(5), tr, tr+rng.Intn(50),
		statuses[rng.Intn(len(statuses))], rng.Intn(100000),
		rng.Intn(100), rng.Intn(100), rng.Intn(50), rng.Intn(10),
		request,
	)
}

func verifyAPI(base string) int {
	fmt.Println("=== Verifying hapdb serve ===")
	resp, err := http.Get(base + "/api/stats")
	if err != nil {
		fmt.Printf("❌ Failed to query API: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	var stats map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		fmt.Printf("❌ Bad response: %v\n", err)
		return 1
	}
	if n, _ := stats["total_records"].(float64); n == 0 {
		fmt.Println("❌ No records stored. Run hapdb new on the generated log first.")
		return 1
	}

	fmt.Printf("✅ %.0f record(s) stored\n", stats["total_records"])
	fmt.Printf("  Status classes: %v\n", stats["status_classes"])
	fmt.Printf("  Top backend: %v\n", stats["top_backend"])
	fmt.Printf("  Avg total time: %.1f ms\n", stats["avg_total_time_ms"])
	return 0
}
