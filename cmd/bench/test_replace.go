package main

import (
	"net/http"
)

// TestReplace hammers the same page of one document, every save but the first
// one rewrites the archive.
func TestReplace(c Config) {
	if c.Documents <= 0 {
		c.Documents = 1
	}
	run(c, "REPLACE", func(client *http.Client, n int64, result *counters) {
		putAnnotation(client, c, DocumentName(0), 1, n, result)
	})
}
