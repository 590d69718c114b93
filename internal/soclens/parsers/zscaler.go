package parsers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// ZscalerParser normalizes Zscaler NSS-feed style JSON lines. Records
// usually nest their fields under an "event" object; flat objects are
// accepted too. A line that is not a complete JSON object is a genuine
// parse failure; missing or malformed individual fields are not.
type ZscalerParser struct {
	opts ParserOptions
}

// NewZscalerParser constructs a ZscalerParser.
func NewZscalerParser(opts ParserOptions) *ZscalerParser {
	return &ZscalerParser{opts: opts}
}

// fieldKeys maps the canonical event attribute to the JSON keys vendors
// use for it, in lookup order.
var fieldKeys = map[string][]string{
	"event_time":       {"datetime", "timestamp", "time", "event_time"},
	"event_id":         {"event_id", "eventid", "id"},
	"vendor":           {"vendor", "product"},
	"action":           {"action"},
	"reason":           {"reason"},
	"severity":         {"severity"},
	"status":           {"status"},
	"user_email":       {"user", "user_email", "login"},
	"department":       {"department", "dept"},
	"location":         {"location"},
	"client_ip":        {"ClientIP", "clientip", "client_ip", "src_ip"},
	"server_ip":        {"serverip", "server_ip", "dst_ip"},
	"dest_host":        {"hostname", "dest_host", "host"},
	"url":              {"url"},
	"request_method":   {"requestmethod", "request_method", "method"},
	"url_category":     {"urlcategory", "url_category"},
	"threat_category":  {"threatcategory", "threat_category"},
	"threat_name":      {"threatname", "threat_name"},
	"risk_score":       {"riskscore", "risk_score"},
	"request_size":     {"requestsize", "request_size"},
	"response_size":    {"responsesize", "response_size"},
	"transaction_size": {"transactionsize", "transaction_size"},
}

func (p *ZscalerParser) ParseLine(ctx context.Context, line string) (*model.Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrSkipLine
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		// truncated/corrupt JSON: the line cannot be tokenized at all
		return nil, ErrSkipLine
	}

	// fields usually live under "event"
	fields := obj
	if inner, ok := obj["event"].(map[string]any); ok {
		fields = inner
	}

	evt := &model.Event{
		ID:  uuid.NewString(),
		Raw: line,
	}
	populateEvent(evt, fields, p.opts)
	return evt, nil
}

// lookup returns the first present value among the dialect keys for the
// canonical attribute name.
func lookup(fields map[string]any, attr string) (any, bool) {
	for _, k := range fieldKeys[attr] {
		if v, ok := fields[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// populateEvent applies the shared field handling rules: tolerant
// timestamps, validated IPs, controlled vocabulary mapping, tolerant ints.
// Shared between the JSON and kv dialects.
func populateEvent(evt *model.Event, fields map[string]any, opts ParserOptions) {
	if v, ok := lookup(fields, "event_time"); ok {
		evt.EventTime = parseTimestamp(toString(v))
	}
	if v, ok := lookup(fields, "event_id"); ok {
		evt.EventID = ptrString(toString(v))
	}
	if v, ok := lookup(fields, "vendor"); ok {
		evt.Vendor = ptrString(toString(v))
	} else if opts.DefaultVendor != "" {
		evt.Vendor = ptrString(opts.DefaultVendor)
	}

	if v, ok := lookup(fields, "action"); ok {
		evt.Action = normalizeVocab(actionVocab, toString(v))
	}
	if v, ok := lookup(fields, "reason"); ok {
		evt.Reason = ptrString(toString(v))
	}
	if v, ok := lookup(fields, "severity"); ok {
		evt.Severity = normalizeVocab(severityVocab, toString(v))
	}
	if v, ok := lookup(fields, "status"); ok {
		evt.Status = toIntPtr(v)
	}

	if v, ok := lookup(fields, "user_email"); ok {
		evt.UserEmail = ptrString(strings.ToLower(toString(v)))
	}
	if v, ok := lookup(fields, "department"); ok {
		evt.Department = ptrString(toString(v))
	}
	if v, ok := lookup(fields, "location"); ok {
		evt.Location = ptrString(toString(v))
	}

	if v, ok := lookup(fields, "client_ip"); ok {
		evt.ClientIP = validIP(toString(v))
	}
	if v, ok := lookup(fields, "server_ip"); ok {
		evt.ServerIP = validIP(toString(v))
	}
	if v, ok := lookup(fields, "dest_host"); ok {
		evt.DestHost = ptrString(strings.ToLower(toString(v)))
	}
	if v, ok := lookup(fields, "url"); ok {
		evt.URL = ptrString(toString(v))
	}
	if v, ok := lookup(fields, "request_method"); ok {
		evt.RequestMethod = ptrString(strings.ToUpper(toString(v)))
	}

	if v, ok := lookup(fields, "url_category"); ok {
		evt.URLCategory = ptrString(toString(v))
	}
	if v, ok := lookup(fields, "threat_category"); ok {
		evt.ThreatCategory = ptrString(toString(v))
	}
	if v, ok := lookup(fields, "threat_name"); ok {
		evt.ThreatName = ptrString(toString(v))
	}
	if v, ok := lookup(fields, "risk_score"); ok {
		evt.RiskScore = toIntPtr(v)
	}

	if v, ok := lookup(fields, "request_size"); ok {
		evt.RequestSize = toIntPtr(v)
	}
	if v, ok := lookup(fields, "response_size"); ok {
		evt.ResponseSize = toIntPtr(v)
	}
	if v, ok := lookup(fields, "transaction_size"); ok {
		evt.TransactionSize = toIntPtr(v)
	}
}
