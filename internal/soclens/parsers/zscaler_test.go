package parsers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestZscalerParser_ParseLine(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantErr    bool
		wantUser   *string
		wantIP     *string
		wantAction *string
		wantHost   *string
		wantTime   bool
	}{
		{
			name:       "nested event object",
			line:       `{"event":{"datetime":"2025-06-01 10:15:30","user":"Alice@Example.COM","ClientIP":"10.0.0.5","action":"blocked","hostname":"Evil.Example.NET"}}`,
			wantUser:   ptrString("alice@example.com"),
			wantIP:     ptrString("10.0.0.5"),
			wantAction: ptrString("Blocked"),
			wantHost:   ptrString("evil.example.net"),
			wantTime:   true,
		},
		{
			name:       "flat object with alias keys",
			line:       `{"timestamp":"2025-06-01T10:15:30Z","login":"bob@example.com","src_ip":"192.168.1.7","action":"deny"}`,
			wantUser:   ptrString("bob@example.com"),
			wantIP:     ptrString("192.168.1.7"),
			wantAction: ptrString("Blocked"),
			wantTime:   true,
		},
		{
			name:     "invalid IP dropped, line survives",
			line:     `{"event":{"datetime":"2025-06-01 10:15:30","user":"carol@example.com","ClientIP":"999.999.1.1"}}`,
			wantUser: ptrString("carol@example.com"),
			wantIP:   nil,
			wantTime: true,
		},
		{
			name:     "bad timestamp dropped, line survives",
			line:     `{"event":{"datetime":"garbage","user":"dave@example.com"}}`,
			wantUser: ptrString("dave@example.com"),
			wantTime: false,
		},
		{
			name:       "unmapped action passes verbatim",
			line:       `{"event":{"action":"Sandboxed"}}`,
			wantAction: ptrString("Sandboxed"),
		},
		{
			name:    "truncated JSON is a skip",
			line:    `{"event":{"datetime":"2025-06-01 10:15`,
			wantErr: true,
		},
		{
			name:    "blank line is a skip",
			line:    "   ",
			wantErr: true,
		},
	}

	ctx := context.Background()
	p := NewZscalerParser(ParserOptions{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := p.ParseLine(ctx, tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrSkipLine) {
					t.Fatalf("expected ErrSkipLine, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if evt.Raw == "" {
				t.Error("raw line not retained")
			}
			checkStrPtr(t, "user", evt.UserEmail, tt.wantUser)
			checkStrPtr(t, "client_ip", evt.ClientIP, tt.wantIP)
			checkStrPtr(t, "action", evt.Action, tt.wantAction)
			checkStrPtr(t, "dest_host", evt.DestHost, tt.wantHost)
			if tt.wantTime && evt.EventTime == nil {
				t.Error("expected parsed event time, got nil")
			}
			if !tt.wantTime && evt.EventTime != nil {
				t.Errorf("expected nil event time, got %v", evt.EventTime)
			}
		})
	}
}

func TestZscalerParser_TimestampUTC(t *testing.T) {
	p := NewZscalerParser(ParserOptions{})
	evt, err := p.ParseLine(context.Background(),
		`{"event":{"datetime":"2025-06-01T10:15:30+05:30"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 6, 1, 4, 45, 30, 0, time.UTC)
	if evt.EventTime == nil || !evt.EventTime.Equal(want) {
		t.Errorf("got %v, want %v", evt.EventTime, want)
	}
}

func TestZscalerParser_NumericFieldsTolerant(t *testing.T) {
	p := NewZscalerParser(ParserOptions{})
	evt, err := p.ParseLine(context.Background(),
		`{"event":{"riskscore":"85","requestsize":1024,"responsesize":"not-a-number"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.RiskScore == nil || *evt.RiskScore != 85 {
		t.Errorf("risk_score = %v, want 85", evt.RiskScore)
	}
	if evt.RequestSize == nil || *evt.RequestSize != 1024 {
		t.Errorf("request_size = %v, want 1024", evt.RequestSize)
	}
	if evt.ResponseSize != nil {
		t.Errorf("response_size = %v, want nil", evt.ResponseSize)
	}
}

func checkStrPtr(t *testing.T, field string, got, want *string) {
	t.Helper()
	switch {
	case got == nil && want == nil:
	case got == nil || want == nil:
		t.Errorf("%s = %v, want %v", field, deref(got), deref(want))
	case *got != *want:
		t.Errorf("%s = %q, want %q", field, *got, *want)
	}
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
