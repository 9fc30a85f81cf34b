package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/deckhand/pkg/domain"
	"gopkg.in/yaml.v3"
)

// CollectEvents reads the events file at path. A missing file yields no
// events.
func CollectEvents(path string) ([]domain.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()
	return ParseEvents(f)
}

// ParseEvents decodes a YAML document stream, one event per document.
// Documents that fail to decode or hold nothing are skipped, so a writer
// crashing mid-document costs only that event.
func ParseEvents(r io.Reader) ([]domain.Event, error) {
	var (
		events []domain.Event
		doc    strings.Builder
	)
	flush := func() {
		if ev, ok := decodeEvent(doc.String()); ok {
			events = append(events, ev)
		}
		doc.Reset()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "---" || strings.HasPrefix(line, "--- "):
			flush()
			if rest := strings.TrimPrefix(line, "---"); strings.TrimSpace(rest) != "" {
				doc.WriteString(strings.TrimSpace(rest))
				doc.WriteByte('\n')
			}
		case line == "...":
			flush()
		default:
			doc.WriteString(line)
			doc.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("failed to read events: %w", err)
	}
	flush()
	return events, nil
}

func decodeEvent(doc string) (domain.Event, bool) {
	if strings.TrimSpace(doc) == "" {
		return domain.Event{}, false
	}
	var fields map[string]any
	if err := yaml.Unmarshal([]byte(doc), &fields); err != nil || len(fields) == 0 {
		return domain.Event{}, false
	}

	ev := domain.Event{Severity: domain.SeverityInfo.String()}
	if msg, ok := fields["msg"]; ok {
		ev.Msg = scalar(msg)
	} else if msg, ok := fields["message"]; ok {
		ev.Msg = scalar(msg)
	}
	if sev := strings.TrimSpace(scalar(fields["severity"])); sev != "" {
		ev.Severity = sev
	}
	ev.Timestamp = millis(fields["timestamp"])
	return ev, true
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// millis accepts epoch milliseconds or an RFC3339 timestamp.
func millis(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int64:
		return t
	case uint64:
		if t > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(t)
	case float64:
		return int64(t)
	case time.Time:
		return t.UnixMilli()
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999 -07:00", "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UnixMilli()
			}
		}
	}
	return 0
}
