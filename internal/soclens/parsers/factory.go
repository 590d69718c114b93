package parsers

import (
	"context"
	"fmt"
	"strings"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// Dialect names recognized by the factory. The set is closed: detection is
// a function over line shape, not open-ended reflection.
const (
	DialectZscaler = "zscaler" // one JSON object per line
	DialectKV      = "kv"      // key=value token stream
	DialectAuto    = "auto"    // per-line detection
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

// NewParser returns a Parser for the given dialect ("zscaler", "kv" or "auto").
func (f *Factory) NewParser(dialect string, opts ParserOptions) (Parser, error) {
	switch dialect {
	case DialectZscaler, "json":
		return NewZscalerParser(opts), nil
	case DialectKV, "keyvalue", "leef":
		return NewKVParser(opts), nil
	case DialectAuto, "":
		return &autoParser{
			json: NewZscalerParser(opts),
			kv:   NewKVParser(opts),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported log dialect: %s", dialect)
	}
}

// DetectDialect classifies a line by shape: balanced-brace JSON object vs
// key=value token stream. Returns "" when neither applies.
func DetectDialect(line string) string {
	s := strings.TrimSpace(line)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "{") {
		return DialectZscaler
	}
	// at least one key=value token
	for _, tok := range strings.Fields(s) {
		if i := strings.Index(tok, "="); i > 0 {
			return DialectKV
		}
	}
	return ""
}

// autoParser routes each line to the dialect its shape matches.
type autoParser struct {
	json Parser
	kv   Parser
}

func (p *autoParser) ParseLine(ctx context.Context, line string) (*model.Event, error) {
	switch DetectDialect(line) {
	case DialectZscaler:
		return p.json.ParseLine(ctx, line)
	case DialectKV:
		return p.kv.ParseLine(ctx, line)
	default:
		return nil, ErrSkipLine
	}
}
