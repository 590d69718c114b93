package parsers

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// KVParser normalizes key=value token streams, the delimited-text dialect
// some proxy exports use (e.g. `ts="2025-01-02 10:00:00" user=a@b.com
// action=Blocked`). Values may be double-quoted to carry spaces.
type KVParser struct {
	opts ParserOptions
}

// NewKVParser constructs a KVParser.
func NewKVParser(opts ParserOptions) *KVParser {
	return &KVParser{opts: opts}
}

// kvAliases maps kv-dialect keys onto the zscaler JSON keys so both
// dialects share one field table.
var kvAliases = map[string]string{
	"ts":       "datetime",
	"datetime": "datetime",
	"time":     "time",
	"src":      "ClientIP",
	"srcip":    "ClientIP",
	"dst":      "serverip",
	"dstip":    "serverip",
	"host":     "hostname",
	"dhost":    "hostname",
	"usr":      "user",
	"cat":      "threatcategory",
	"sev":      "severity",
	"act":      "action",
}

func (p *KVParser) ParseLine(ctx context.Context, line string) (*model.Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrSkipLine
	}

	fields := tokenizeKV(line)
	if len(fields) == 0 {
		// no key=value token anywhere: not this dialect
		return nil, ErrSkipLine
	}

	evt := &model.Event{
		ID:  uuid.NewString(),
		Raw: line,
	}
	populateEvent(evt, fields, p.opts)
	return evt, nil
}

// tokenizeKV splits a line into key=value pairs. Quoted values keep their
// embedded spaces; keys are case-folded and run through kvAliases.
func tokenizeKV(line string) map[string]any {
	fields := make(map[string]any)
	rest := line
	for rest != "" {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		eq := strings.Index(rest, "=")
		if eq <= 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(rest[:eq]))
		// a key containing spaces means the previous token had no '='
		if i := strings.LastIndexAny(key, " \t"); i >= 0 {
			key = key[i+1:]
		}
		rest = rest[eq+1:]

		var val string
		if strings.HasPrefix(rest, `"`) {
			rest = rest[1:]
			if end := strings.Index(rest, `"`); end >= 0 {
				val = rest[:end]
				rest = rest[end+1:]
			} else {
				val = rest
				rest = ""
			}
		} else {
			if end := strings.IndexAny(rest, " \t"); end >= 0 {
				val = rest[:end]
				rest = rest[end+1:]
			} else {
				val = rest
				rest = ""
			}
		}

		if key == "" {
			continue
		}
		if alias, ok := kvAliases[key]; ok {
			key = alias
		}
		fields[key] = val
	}
	return fields
}
