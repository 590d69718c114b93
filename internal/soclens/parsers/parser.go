package parsers

import (
	"context"
	"errors"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// ErrSkipLine indicates the parser couldn't parse the line but processing should continue.
var ErrSkipLine = errors.New("skip line")

type ParserOptions struct {
	// DefaultVendor is recorded on events whose dialect carries no vendor field.
	DefaultVendor string
}

// Parser converts one raw log line into a normalized Event.
type Parser interface {
	// ParseLine returns an Event for the line, or ErrSkipLine if the line
	// cannot be tokenized as the recognized dialect at all. Partial parses
	// (bad timestamp, invalid IP, unmapped vocabulary) still yield an Event.
	ParseLine(ctx context.Context, line string) (*model.Event, error)
}
