// Command smoke probes a running admission-api deployment and fails when a
// critical endpoint misbehaves. Intended for post-deploy verification.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type probe struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Expect   int    `json:"expect"`
	Auth     bool   `json:"auth"`
	Critical bool   `json:"critical"`
}

type result struct {
	Probe    probe
	Status   int
	Duration time.Duration
	Err      error
}

func defaultProbes(apiPrefix string) []probe {
	return []probe{
		{Method: http.MethodGet, Path: "/health", Expect: http.StatusOK, Critical: true},
		{Method: http.MethodGet, Path: "/ready", Expect: http.StatusOK, Critical: true},
		{Method: http.MethodGet, Path: "/metrics", Expect: http.StatusOK},
		{Method: http.MethodGet, Path: apiPrefix + "/admissions", Expect: http.StatusOK, Auth: true, Critical: true},
		{Method: http.MethodGet, Path: apiPrefix + "/dashboard", Expect: http.StatusOK, Auth: true},
		{Method: http.MethodGet, Path: apiPrefix + "/notifications/summary", Expect: http.StatusOK, Auth: true},
	}
}

func main() {
	var (
		base       string
		apiPrefix  string
		token      string
		probesPath string
		timeout    time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&apiPrefix, "prefix", "/api/v1", "API route prefix")
	flag.StringVar(&token, "token", os.Getenv("SMOKE_TOKEN"), "Bearer token for authenticated probes")
	flag.StringVar(&probesPath, "probes", "", "Optional JSON file overriding the built-in probe set")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	probes := defaultProbes(apiPrefix)
	if probesPath != "" {
		loaded, err := loadProbes(probesPath)
		if err != nil {
			log.Fatalf("failed to load probes: %v", err)
		}
		probes = loaded
	}

	client := &http.Client{Timeout: timeout}
	var failures int

	fmt.Println("Smoke Report")
	fmt.Println("============")
	for _, p := range probes {
		if p.Auth && token == "" {
			fmt.Printf("[SKIP] %s %s (no token)\n", p.Method, p.Path)
			continue
		}
		res := run(client, base, token, p)
		status := "OK"
		if res.Err != nil || res.Status != p.Expect {
			status = "FAIL"
			if p.Critical {
				failures++
			}
		}
		fmt.Printf("[%s] %s %s\n", status, p.Method, p.Path)
		if res.Err != nil {
			fmt.Printf("  Error: %v\n", res.Err)
			continue
		}
		fmt.Printf("  Status: %d (want %d) in %s\n", res.Status, p.Expect, res.Duration)
	}

	fmt.Printf("Critical failures: %d\n", failures)
	if failures > 0 {
		os.Exit(1)
	}
}

func loadProbes(path string) ([]probe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var probes []probe
	if err := json.Unmarshal(data, &probes); err != nil {
		return nil, err
	}
	if len(probes) == 0 {
		return nil, fmt.Errorf("no probes defined in %s", path)
	}
	return probes, nil
}

func run(client *http.Client, base, token string, p probe) result {
	res := result{Probe: p}

	method := strings.ToUpper(strings.TrimSpace(p.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := p.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		res.Err = err
		return res
	}
	if p.Auth && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode
	return res
}
