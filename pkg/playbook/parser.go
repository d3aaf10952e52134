package playbook

import (
	"regexp"
	"strings"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
)

var (
	stepLinePattern   = regexp.MustCompile(`^\d+\.`)
	stepPrefixPattern = regexp.MustCompile(`^\d+\.\s*`)
)

// StepParser turns remediation prose into ordered steps. Step ids are assigned by
// the builder, so parsers leave them empty.
type StepParser interface {
	Parse(text string) []models.PlaybookStep
}

// NumberedLineParser treats every line starting with "<digits>." as a step and
// drops everything else.
type NumberedLineParser struct{}

// Parse implements StepParser
func (NumberedLineParser) Parse(text string) []models.PlaybookStep {
	var steps []models.PlaybookStep
	for _, line := range splitLines(text) {
		if action, ok := numberedAction(line); ok {
			steps = append(steps, models.PlaybookStep{Action: action})
		}
	}
	return steps
}

// AnnotatedLineParser extends NumberedLineParser with indented annotation lines
// beneath a step, for example:
//
//	Remediation:
//	1. Enable bucket encryption
//	   command: aws:s3-enable-encryption my-bucket
//	   validate: encrypted("aws:s3/my-bucket")
//	   rollback: aws:s3-disable-encryption my-bucket
//
// Annotations before the first step, or not indented, are ignored.
type AnnotatedLineParser struct{}

// Parse implements StepParser
func (AnnotatedLineParser) Parse(text string) []models.PlaybookStep {
	var steps []models.PlaybookStep
	for _, line := range splitLines(text) {
		if action, ok := numberedAction(line); ok {
			steps = append(steps, models.PlaybookStep{Action: action})
			continue
		}
		if len(steps) == 0 || !isIndented(line) {
			continue
		}

		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		current := &steps[len(steps)-1]
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "command", "run":
			current.Command = value
		case "validate", "validation":
			current.Validation = value
		case "rollback":
			current.Rollback = value
		}
	}
	return steps
}

// ParserByName returns the parser registered under name
func ParserByName(name string) (StepParser, bool) {
	switch name {
	case "", "numbered":
		return NumberedLineParser{}, true
	case "annotated":
		return AnnotatedLineParser{}, true
	}
	return nil, false
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

func numberedAction(line string) (string, bool) {
	if !stepLinePattern.MatchString(line) {
		return "", false
	}
	return stepPrefixPattern.ReplaceAllString(line, ""), true
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}
