package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fulldump/annotationstore/bootstrap"
	"github.com/fulldump/annotationstore/configuration"
)

func Parallel(workers int, f func()) {
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	wg.Wait()
}

func TempDir() (string, func()) {
	dir, err := os.MkdirTemp("", "annotationstore_bench_*")
	if err != nil {
		panic("Could not create temp directory: " + err.Error())
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

func DocumentName(i int) string {
	return fmt.Sprintf("bench-%04d.pdf", i)
}

// CreateServer starts an in-process server over a temporary directory that
// accepts the debug token.
func CreateServer(c *Config) (start, stop func()) {
	dir, cleanup := TempDir()
	cleanups = append(cleanups, cleanup)

	conf := configuration.Default()
	conf.DocumentsDir = filepath.Join(dir, "documents")
	conf.AnnotationsDir = filepath.Join(dir, "annotations")
	conf.TokensFile = ""
	conf.Debug = true
	conf.LogLevel = "warn"
	c.Base = "http://" + conf.HttpAddr
	c.Token = configuration.DebugToken

	err := os.MkdirAll(conf.DocumentsDir, 0755)
	if err != nil {
		panic(err)
	}
	for i := 0; i < c.Documents; i++ {
		err := os.WriteFile(filepath.Join(conf.DocumentsDir, DocumentName(i)), []byte("%PDF-1.4"), 0666)
		if err != nil {
			panic(err)
		}
	}

	return bootstrap.Bootstrap(&conf)
}

// WaitReady polls the health check until the server answers.
func WaitReady(base string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/release")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not ready after %s", base, timeout)
}
