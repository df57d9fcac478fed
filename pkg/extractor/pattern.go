package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

// NormalizePattern decodes escapes that arrive doubly encoded from JSON
// forms, so `\\d+` becomes `\d+`. Recognised: \\ \n \r \t \xHH. Anything
// else, including `\d` itself, is left as written.
func NormalizePattern(pattern string) string {
	if !strings.Contains(pattern, `\`) {
		return pattern
	}

	var sb strings.Builder
	sb.Grow(len(pattern))
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '\\' || i+1 >= len(pattern) {
			sb.WriteByte(c)
			continue
		}

		switch next := pattern[i+1]; next {
		case '\\':
			sb.WriteByte('\\')
			i++
		case 'n':
			sb.WriteByte('\n')
			i++
		case 'r':
			sb.WriteByte('\r')
			i++
		case 't':
			sb.WriteByte('\t')
			i++
		case 'x':
			if i+3 < len(pattern) {
				if v, err := strconv.ParseUint(pattern[i+2:i+4], 16, 8); err == nil {
					sb.WriteByte(byte(v))
					i += 3
					continue
				}
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// Compile normalizes and compiles pattern in multi-line mode.
func Compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?m)" + NormalizePattern(pattern))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid pattern: %w", types.ErrExtraction, err)
	}
	return re, nil
}

// Extract applies pattern to text. The first named group that took part in
// the match wins, then the first positional group, then the whole match.
func Extract(text, pattern string) (string, error) {
	re, err := Compile(pattern)
	if err != nil {
		return "", err
	}

	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", fmt.Errorf("%w: no match for %q", types.ErrExtraction, pattern)
	}

	value, ok := pick(re, text, loc)
	if !ok {
		return "", fmt.Errorf("%w: capture group did not participate in match for %q", types.ErrExtraction, pattern)
	}
	return value, nil
}

func pick(re *regexp.Regexp, text string, loc []int) (string, bool) {
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		if v, ok := submatch(text, loc, i); ok {
			return v, true
		}
	}
	if re.NumSubexp() > 0 {
		return submatch(text, loc, 1)
	}
	return text[loc[0]:loc[1]], true
}

func submatch(text string, loc []int, i int) (string, bool) {
	start, end := loc[2*i], loc[2*i+1]
	if start < 0 {
		return "", false
	}
	return text[start:end], true
}

// TryPattern reports every match of pattern in sample together with the
// groups of the first match, for trying patterns before saving an action.
func TryPattern(sample, pattern string) (*PatternTrial, error) {
	re, err := Compile(pattern)
	if err != nil {
		return nil, err
	}

	result := &PatternTrial{
		Matches: []string{},
		Groups:  map[string]*string{},
	}
	result.Matches = append(result.Matches, re.FindAllString(sample, -1)...)

	loc := re.FindStringSubmatchIndex(sample)
	if loc == nil {
		return result, nil
	}

	hasNamed := false
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		hasNamed = true
		result.Groups[name] = optional(submatch(sample, loc, i))
	}
	if !hasNamed && re.NumSubexp() > 0 {
		result.Groups["group1"] = optional(submatch(sample, loc, 1))
	}

	if v, ok := pick(re, sample, loc); ok {
		result.Extracted = &v
	}
	return result, nil
}

func optional(v string, ok bool) *string {
	if !ok {
		return nil
	}
	return &v
}
