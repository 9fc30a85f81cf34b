package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var stagePattern = regexp.MustCompile(`^\d+$`)

// ParseStage decodes a persisted stage watermark. Anything other than a plain
// decimal number yields ErrInvalidStage.
func ParseStage(raw string) (int, error) {
	raw = strings.TrimRight(raw, "\n")
	if !stagePattern.MatchString(raw) {
		return 0, ErrInvalidStage
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ErrInvalidStage
	}
	return n, nil
}

// FormatStage encodes a stage watermark the way stores persist it.
func FormatStage(stage int) string {
	return strconv.Itoa(stage)
}
