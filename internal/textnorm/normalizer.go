package textnorm

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// trailingPunctuation lists the sentence-final marks stripped from every
// transcript before it is delivered.
const trailingPunctuation = "。，！？、；：“”‘’.,!?;:"

// StripTrailingPunctuation removes trailing sentence punctuation, both ASCII
// and CJK forms. Interior punctuation is untouched.
func StripTrailingPunctuation(text string) string {
	return strings.TrimRightFunc(text, func(r rune) bool {
		return strings.ContainsRune(trailingPunctuation, r)
	})
}

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Normalizer applies user substitution rules and trailing punctuation
// stripping to final transcripts. The rules file holds one case-insensitive
// `find => replace` pair per line; # starts a comment.
type Normalizer struct {
	rules     []rule
	loopLimit int
}

// New loads substitution rules from path. A missing or empty path yields a
// normalizer that only strips punctuation.
func New(path string, loopLimit int) (*Normalizer, error) {
	if loopLimit <= 0 {
		loopLimit = 30
	}
	if strings.TrimSpace(path) == "" {
		return &Normalizer{loopLimit: loopLimit}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Normalizer{loopLimit: loopLimit}, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	rules, err := parseRules(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return &Normalizer{rules: rules, loopLimit: loopLimit}, nil
}

// Apply transforms text deterministically: substitution rules run until a
// fixed point (bounded by the loop limit), then trailing punctuation is
// stripped.
func (n *Normalizer) Apply(text string) (string, error) {
	result := text
	for i := 0; i < n.loopLimit && len(n.rules) > 0; i++ {
		changed := false
		for _, rule := range n.rules {
			next := rule.re.ReplaceAllString(result, rule.replacement)
			if next != result {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return StripTrailingPunctuation(strings.TrimSpace(result)), nil
}

func parseRules(contents string) ([]rule, error) {
	lines := strings.Split(contents, "\n")
	rules := make([]rule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=>", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
		}
		from := strings.TrimSpace(parts[0])
		to := strings.TrimSpace(parts[1])
		if from == "" {
			return nil, fmt.Errorf("line %d: rule source cannot be empty", index+1)
		}

		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid rule source: %w", index+1, err)
		}
		rules = append(rules, rule{re: re, replacement: to})
	}
	return rules, nil
}
