package service

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fulldump/apitest"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Save writes a markdown example of the request/response pair into
// API_EXAMPLES_PATH, if set.
func Save(response *apitest.Response, title, description string) {

	examplesPath := os.Getenv("API_EXAMPLES_PATH")
	if examplesPath == "" {
		return
	}

	request := response.Request

	query := request.URL.RawQuery
	if query != "" {
		query = "?" + query
	}

	b := &strings.Builder{}

	fmt.Fprintf(b, "# %s\n", title)
	fmt.Fprintln(b, mdDescription(description))

	fmt.Fprint(b, "Curl example:\n\n```sh\n")
	method := ""
	if request.Method != "GET" {
		method = "-X " + request.Method + " "
	}
	fmt.Fprintf(b, "curl %s\"https://example.com%s%s\"", method, request.URL.Path, query)
	for _, k := range sortedKeys(request.Header) {
		for _, v := range request.Header[k] {
			fmt.Fprintf(b, " \\\n-H \"%s: %s\"", k, v)
		}
	}
	if requestBody := formatBody(response.BodyRequestString(), request.Header.Get("Content-Type")); requestBody != "" {
		fmt.Fprintf(b, " \\\n-d '%s'", requestBody)
	}
	fmt.Fprint(b, "\n```\n\n\n")

	fmt.Fprint(b, "HTTP request/response example:\n\n```http\n")
	fmt.Fprintf(b, "%s %s%s %s\n", request.Method, request.URL.Path, query, request.Proto)
	fmt.Fprintln(b, "Host: example.com")
	for _, k := range sortedKeys(request.Header) {
		for _, v := range request.Header[k] {
			fmt.Fprintf(b, "%s: %s\n", k, v)
		}
	}
	fmt.Fprintf(b, "\n%s\n\n", formatBody(response.BodyRequestString(), request.Header.Get("Content-Type")))

	fmt.Fprintf(b, "%s %s\n", response.Proto, response.Status)
	for _, k := range sortedKeys(response.Header) {
		switch k {
		case "Date":
			fmt.Fprintln(b, "Date: Mon, 15 Aug 2022 02:08:13 GMT")
		case "X-Request-Id":
			fmt.Fprintln(b, "X-Request-Id: 2f1c3d5e-6a7b-4c8d-9e0f-123456789abc")
		default:
			for _, v := range response.Header[k] {
				fmt.Fprintf(b, "%s: %s\n", k, v)
			}
		}
	}
	fmt.Fprintf(b, "\n%s\n", formatBody(response.BodyString(), response.Header.Get("Content-Type")))
	fmt.Fprint(b, "```\n\n\n")

	filename := strings.ReplaceAll(strings.ToLower(title), " ", "_") + ".md"
	p := filepath.Join(examplesPath, filepath.Clean(filename))
	err := os.WriteFile(p, []byte(b.String()), 0666)
	if err != nil {
		slog.Error("save api example", "file", p, "err", err)
		return
	}
	slog.Info("api example saved", "file", p)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatBody pretty prints JSON bodies and hides binary ones.
func formatBody(body, contentType string) string {
	if strings.HasPrefix(contentType, "application/zip") {
		return fmt.Sprintf("<%d bytes of zip archive>", len(body))
	}

	var value any
	err := json.Unmarshal([]byte(body), &value)
	if err != nil {
		return body
	}
	pretty, err := json.Marshal(value, json.Deterministic(true), jsontext.WithIndent("    "))
	if err != nil {
		return body
	}
	return string(pretty)
}

// mdDescription removes the common tab indentation of a raw string literal.
func mdDescription(d string) string {
	lines := strings.Split(d, "\n")

	first, last := 0, len(lines)
	if len(lines) > 2 {
		first++
		last--
	}

	minTabs := -1
	for _, line := range lines[first:last] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c := len(line) - len(strings.TrimLeft(line, "\t"))
		if minTabs < 0 || c < minTabs {
			minTabs = c
		}
	}
	if minTabs <= 0 {
		return d
	}

	prefix := strings.Repeat("\t", minTabs)
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}
