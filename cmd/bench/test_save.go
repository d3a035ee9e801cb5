package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

type counters struct {
	ok     int64
	busy   int64
	failed int64
}

func (c *counters) String() string {
	return fmt.Sprintf("ok: %d busy: %d failed: %d",
		atomic.LoadInt64(&c.ok), atomic.LoadInt64(&c.busy), atomic.LoadInt64(&c.failed))
}

func newClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     1024,
			MaxIdleConnsPerHost: 1024,
			MaxIdleConns:        1024,
		},
	}
}

func putAnnotation(client *http.Client, c Config, document string, page int64, n int64, result *counters) {

	body := fmt.Sprintf(`{"content":[{"type":"ENTRY","text":"entry %d"},{"type":"TITLE_LEVEL_1","text":"page %d"}]}`, n, page)

	url := fmt.Sprintf("%s/directories/%s/%d/annotation", c.Base, document, page)
	req, err := http.NewRequest("PUT", url, bytes.NewReader([]byte(body)))
	if err != nil {
		fmt.Println("ERROR: new request:", err.Error())
		os.Exit(3)
	}
	req.Header.Set("Authorization", c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		fmt.Println("ERROR: do request:", err.Error())
		os.Exit(4)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		atomic.AddInt64(&result.ok, 1)
	case http.StatusServiceUnavailable:
		atomic.AddInt64(&result.busy, 1)
	default:
		atomic.AddInt64(&result.failed, 1)
	}
}

func run(c Config, name string, f func(client *http.Client, n int64, result *counters)) {

	if c.Base == "" {
		start, stop := CreateServer(&c)
		defer stop()
		go start()
	}
	err := WaitReady(c.Base, 10*time.Second)
	if err != nil {
		fmt.Println("ERROR:", err.Error())
		os.Exit(2)
	}

	client := newClient()
	result := &counters{}
	items := c.N

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(time.Second):
				fmt.Println("pending:", atomic.LoadInt64(&items), result)
			}
		}
	}()

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for {
			n := atomic.AddInt64(&items, -1)
			if n < 0 {
				break
			}
			f(client, n, result)
		}
	})

	took := time.Since(t0)
	fmt.Println("test:", name)
	fmt.Println("sent:", c.N)
	fmt.Println(result)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f saves/sec\n", float64(c.N)/took.Seconds())
}

// TestSave spreads new pages over several documents, mostly appends.
func TestSave(c Config) {
	if c.Documents <= 0 {
		c.Documents = 1
	}
	run(c, "SAVE", func(client *http.Client, n int64, result *counters) {
		document := DocumentName(int(n % int64(c.Documents)))
		page := (n/int64(c.Documents))%9999 + 1
		putAnnotation(client, c, document, page, n, result)
	})
}
