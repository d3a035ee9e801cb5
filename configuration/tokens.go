package configuration

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// DebugToken is accepted in addition to the token file when Debug is set
const DebugToken = "12345678"

// ReadTokens parses one token per line, skipping blank lines and lines
// starting with '#'.
func ReadTokens(r io.Reader) ([]string, error) {
	tokens := []string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	return tokens, nil
}

// LoadTokens returns the tokens accepted by the HTTP gate. A missing tokens
// file yields no tokens.
func LoadTokens(c *Configuration) ([]string, error) {

	tokens := []string{}

	if c.TokensFile != "" {
		f, err := os.Open(c.TokensFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open tokens file: %w", err)
		}
		if err == nil {
			defer f.Close()
			tokens, err = ReadTokens(f)
			if err != nil {
				return nil, err
			}
		}
	}

	if c.Debug {
		tokens = append(tokens, DebugToken)
	}

	return tokens, nil
}
