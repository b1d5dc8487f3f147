package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type jobStatus struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

func main() {
	base := flag.String("url", "http://localhost:8081", "Server base URL")
	wait := flag.Duration("wait", 2*time.Minute, "How long to poll for the refresh result (0 to return immediately)")
	flag.Parse()

	adminSecret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	if adminSecret == "" {
		fmt.Println("Missing ADMIN_SECRET environment variable")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	do := func(method, url string, out any) (int, error) {
		req, err := http.NewRequest(method, url, nil)
		if err != nil {
			return 0, err
		}
		req.Header.Set("X-Admin-Secret", adminSecret)
		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}

	var started struct {
		JobID string `json:"job_id"`
		Error string `json:"error"`
	}
	code, err := do(http.MethodPost, *base+"/api/v1/admin/refresh", &started)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Response Status: %d job=%s %s\n", code, started.JobID, started.Error)
	if code != http.StatusAccepted || *wait == 0 {
		if code != http.StatusAccepted {
			os.Exit(1)
		}
		return
	}

	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		time.Sleep(2 * time.Second)
		var job jobStatus
		if _, err := do(http.MethodGet, *base+"/api/v1/admin/job/"+started.JobID, &job); err != nil {
			fmt.Printf("Error polling job: %v\n", err)
			os.Exit(1)
		}
		if job.Status == "running" {
			continue
		}
		fmt.Printf("Job %s %s %s\n%s\n", job.ID, job.Status, job.Error, job.Result)
		if job.Status == "failed" {
			os.Exit(1)
		}
		return
	}
	fmt.Println("Timed out waiting for refresh")
	os.Exit(1)
}
