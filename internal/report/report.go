// Package report turns command results into the bounded status document
// returned to the control plane, and collects the progress events actions
// append to the events file.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/deckhand/pkg/domain"
)

const (
	// APIVersion is the report format version.
	APIVersion = "1.0"
	// MaxSize bounds the serialized document.
	MaxSize = 1024
	// MaxEventMsgSize bounds each event message.
	MaxEventMsgSize = 512
)

// Document is the wire shape of a report.
type Document struct {
	Status     domain.Status `json:"status"`
	APIVersion string        `json:"api_version"`
	// Truncated is "true" or "false"; receivers expect a string.
	Truncated string   `json:"truncated"`
	Results   []Result `json:"results"`
}

// Result is the single command result of a Document.
type Result struct {
	Status     domain.Status  `json:"status"`
	Msg        string         `json:"msg"`
	ReturnCode int            `json:"returncode"`
	Events     []domain.Event `json:"events"`
	ConfigSet  string         `json:"config_set,omitempty"`
}

// IsTruncated reports whether anything was dropped or trimmed.
func (d *Document) IsTruncated() bool {
	return d.Truncated == "true"
}

// Truncator bounds reports. The zero value uses MaxSize and MaxEventMsgSize.
type Truncator struct {
	MaxSize         int
	MaxEventMsgSize int
}

// Serialize bounds result with the default budgets.
func Serialize(result *domain.CommandResult) ([]byte, error) {
	_, data, err := Truncator{}.Report(result)
	return data, err
}

// Report builds the bounded document for result and its serialized form.
//
// Event messages are clipped first. While the document is over budget it
// then drops events of severity WARN or lower (lowest severity, then oldest
// first), trims the message from its end, and finally drops events of any
// severity. Survivors are ordered by timestamp. When even the bare document
// exceeds the budget it is returned together with domain.ErrReportOverBudget.
func (t Truncator) Report(result *domain.CommandResult) (*Document, []byte, error) {
	maxSize, maxEvent := t.MaxSize, t.MaxEventMsgSize
	if maxSize <= 0 {
		maxSize = MaxSize
	}
	if maxEvent <= 0 {
		maxEvent = MaxEventMsgSize
	}

	events := make([]domain.Event, len(result.Events))
	for i, ev := range result.Events {
		ev.Msg = clip(ev.Msg, maxEvent)
		events[i] = ev
	}

	doc := &Document{
		Status:     result.Status,
		APIVersion: APIVersion,
		Truncated:  "false",
		Results: []Result{{
			Status:     result.Status,
			Msg:        clip(result.Msg, maxSize),
			ReturnCode: result.ReturnCode,
			ConfigSet:  strings.Join(result.ConfigSets, ","),
		}},
	}
	res := &doc.Results[0]

	data, err := encode(doc, events)
	if err != nil {
		return nil, nil, err
	}

	if len(data) > maxSize && len(events) > 0 {
		sortBySeverity(events)
		if events, data, err = dropEvents(doc, events, data, maxSize, domain.SeverityWarn); err != nil {
			return nil, nil, err
		}
	}

	for len(data) > maxSize && res.Msg != "" {
		overflow := len(data) - maxSize
		if overflow >= len(res.Msg) {
			res.Msg = ""
		} else {
			res.Msg = clip(res.Msg, len(res.Msg)-overflow)
		}
		doc.Truncated = "true"
		if data, err = encode(doc, events); err != nil {
			return nil, nil, err
		}
	}

	if len(data) > maxSize && len(events) > 0 {
		if events, data, err = dropEvents(doc, events, data, maxSize, domain.SeverityFatal); err != nil {
			return nil, nil, err
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	if data, err = encode(doc, events); err != nil {
		return nil, nil, err
	}

	if len(data) > maxSize {
		return doc, data, fmt.Errorf("%w: %d bytes over a budget of %d", domain.ErrReportOverBudget, len(data), maxSize)
	}
	return doc, data, nil
}

// dropEvents removes events from the front of the severity-sorted slice
// while the document is over budget and the front event ranks at most ceiling.
func dropEvents(doc *Document, events []domain.Event, data []byte, maxSize int, ceiling domain.Severity) ([]domain.Event, []byte, error) {
	var err error
	for len(events) > 0 && len(data) > maxSize && events[0].Rank() <= ceiling {
		events = events[1:]
		doc.Truncated = "true"
		if data, err = encode(doc, events); err != nil {
			return nil, nil, err
		}
	}
	return events, data, nil
}

func sortBySeverity(events []domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		ri, rj := events[i].Rank(), events[j].Rank()
		if ri != rj {
			return ri < rj
		}
		return events[i].Timestamp < events[j].Timestamp
	})
}

func encode(doc *Document, events []domain.Event) ([]byte, error) {
	if events == nil {
		events = []domain.Event{}
	}
	doc.Results[0].Events = events

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// clip returns the longest prefix of s within max bytes that does not split
// a UTF-8 sequence.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 0 {
		return ""
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
