package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

const (
	MinPage     = 1
	MaxPage     = 9999
	EntrySuffix = ".json"
)

// Element kinds that get `origin` and `checked` defaults on load.
var normalizedKinds = map[string]bool{
	"ENTRY":         true,
	"TITLE_LEVEL_1": true,
	"TITLE_LEVEL_2": true,
}

// EntryName formats a 1-based page index as the archive entry name,
// ex: 3 > "0003.json". Indices outside [MinPage, MaxPage] have no entry name.
func EntryName(page int) (string, error) {
	if page < MinPage || page > MaxPage {
		return "", fmt.Errorf("%w: %d is out of range [%d, %d]", ErrInvalidPage, page, MinPage, MaxPage)
	}
	return fmt.Sprintf("%04d%s", page, EntrySuffix), nil
}

// PageFromEntry is the inverse of EntryName. Entries not following the
// naming convention return false.
func PageFromEntry(name string) (int, bool) {
	digits, ok := strings.CutSuffix(name, EntrySuffix)
	if !ok || len(digits) != 4 {
		return 0, false
	}
	page, err := strconv.Atoi(digits)
	if err != nil || page < MinPage || page > MaxPage {
		return 0, false
	}
	return page, true
}

// Number is a JSON number kept as written, integers of any size included.
type Number string

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n), nil
}

// DecodeJSON parses a single JSON value into maps, slices, strings, booleans,
// nil and Number.
func DecodeJSON(raw []byte) (any, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(raw))
	value, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	_, err = dec.ReadToken()
	if err == nil {
		return nil, errors.New("unexpected data after top-level value")
	}
	if err != io.EOF {
		return nil, err
	}
	return value, nil
}

func decodeValue(dec *jsontext.Decoder) (any, error) {
	switch dec.PeekKind() {
	case '{':
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		object := map[string]any{}
		for dec.PeekKind() != '}' {
			name, err := dec.ReadToken()
			if err != nil {
				return nil, err
			}
			object[name.String()], err = decodeValue(dec)
			if err != nil {
				return nil, err
			}
		}
		_, err := dec.ReadToken()
		return object, err
	case '[':
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		array := []any{}
		for dec.PeekKind() != ']' {
			item, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			array = append(array, item)
		}
		_, err := dec.ReadToken()
		return array, err
	case '0':
		raw, err := dec.ReadValue()
		if err != nil {
			return nil, err
		}
		return Number(raw), nil
	default:
		tok, err := dec.ReadToken()
		if err != nil {
			return nil, err
		}
		switch tok.Kind() {
		case '"':
			return tok.String(), nil
		case 't', 'f':
			return tok.Bool(), nil
		default:
			return nil, nil
		}
	}
}

// DecodeOnLoad parses a stored entry and applies the load-time filter.
func DecodeOnLoad(raw []byte) (any, error) {
	record, err := DecodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedEntry, err.Error())
	}
	filterOnLoad(record)
	return record, nil
}

// EncodeOnSave serializes a record for storage: UTF-8 JSON, 2 spaces indent,
// sorted object keys, non-ASCII characters kept as is. No filter is applied.
func EncodeOnSave(record any) ([]byte, error) {
	data, err := json.Marshal(record,
		json.Deterministic(true),
		jsontext.WithIndent("  "),
		jsontext.SpaceAfterColon(true),
		jsontext.EscapeForHTML(false),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecord, err.Error())
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, ErrInvalidRecord
	}

	return data, nil
}

// filterOnLoad fills missing (or null) `origin` and `checked` fields of the
// annotation elements of a page. Only arrays have elements, an object record
// is left untouched.
func filterOnLoad(record any) {
	elements, ok := record.([]any)
	if !ok {
		return
	}
	for _, element := range elements {
		item, ok := element.(map[string]any)
		if !ok {
			continue
		}
		kind, _ := item["type"].(string)
		if !normalizedKinds[kind] {
			continue
		}
		if item["origin"] == nil {
			item["origin"] = "computer"
		}
		if item["checked"] == nil {
			item["checked"] = false
		}
	}
}
