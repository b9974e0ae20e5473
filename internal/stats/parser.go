package stats

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/singleronbio/scopetools/internal/logging"
)

var (
	// ErrNoMatch reports that the rule found no statistics span. It is recoverable.
	ErrNoMatch = errors.New("no statistics matched")
	// ErrMalformed reports a statistics line that does not split into name and value.
	ErrMalformed = errors.New("malformed statistics line")
)

// MalformedLineError carries the offending line of a malformed span.
type MalformedLineError struct {
	Rule string
	Line string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("%s: rule %s: %q", ErrMalformed, e.Rule, e.Line)
}

func (e *MalformedLineError) Unwrap() error { return ErrMalformed }

var (
	separator     = regexp.MustCompile(`:\s*`)
	groupedDigits = regexp.MustCompile(`(\d),(\d)`)
)

// Parser turns captured stdout into statistic blocks.
type Parser struct {
	log *slog.Logger
}

// NewParser returns a parser logging through logger (nil discards).
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Parser{log: logging.WithComponent(logger, "stats")}
}

// Extract locates the span described by rule and splits each non-blank line
// into a statistic. Line order is preserved.
//
// When the rule does not match, Extract logs a warning and returns an empty
// block with ErrNoMatch. A line without exactly one separator fails the whole
// extraction with a *MalformedLineError.
func (p *Parser) Extract(text string, rule Rule) (Block, error) {
	span, ok := rule.Locate(text)
	if !ok {
		p.log.Warn("no statistics matched in tool output", logging.Rule(rule.Name()))
		return Block{}, ErrNoMatch
	}

	var block Block
	for _, line := range strings.Split(span, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, value, err := splitLine(line)
		if err != nil {
			return Block{}, &MalformedLineError{Rule: rule.Name(), Line: line}
		}
		if rule.Visible(name) {
			block.Visible.Set(name, value)
		} else {
			block.Invisible.Set(name, value)
		}
	}
	p.log.Debug("statistics extracted",
		logging.Rule(rule.Name()),
		slog.Int("visible", block.Visible.Len()),
		slog.Int("invisible", block.Invisible.Len()))
	return block, nil
}

func splitLine(line string) (string, string, error) {
	normalized := separator.ReplaceAllString(line, ":")
	if strings.Count(normalized, ":") != 1 {
		return "", "", ErrMalformed
	}
	name, value, _ := strings.Cut(normalized, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", ErrMalformed
	}
	return name, stripThousands(strings.TrimSpace(value)), nil
}

// stripThousands removes commas between digits: "1,234,567 (8.1%)" becomes
// "1234567 (8.1%)".
func stripThousands(value string) string {
	for {
		next := groupedDigits.ReplaceAllString(value, "$1$2")
		if next == value {
			return value
		}
		value = next
	}
}
