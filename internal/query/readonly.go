package query

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var wordPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

var allowedLeadingKeywords = map[string]struct{}{
	"select": {},
	"with":   {},
	"from":   {},
}

var forbiddenKeywords = map[string]struct{}{
	"insert":     {},
	"update":     {},
	"delete":     {},
	"merge":      {},
	"create":     {},
	"drop":       {},
	"alter":      {},
	"truncate":   {},
	"grant":      {},
	"revoke":     {},
	"attach":     {},
	"detach":     {},
	"copy":       {},
	"install":    {},
	"load":       {},
	"pragma":     {},
	"call":       {},
	"export":     {},
	"import":     {},
	"vacuum":     {},
	"checkpoint": {},
}

// CheckReadOnly rejects anything other than a single SELECT/WITH statement
// free of data-definition and data-modification keywords. Keywords inside
// string literals, quoted identifiers and comments are ignored.
func CheckReadOnly(sqlText string) error {
	blanked, err := blankLiteralsAndComments(sqlText)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReadOnly, err)
	}
	cleaned := trimTrailingSemicolons(blanked)
	if cleaned == "" {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if strings.Contains(cleaned, ";") {
		return fmt.Errorf("%w: multiple statements are not allowed", ErrNotReadOnly)
	}

	words := wordPattern.FindAllString(strings.TrimLeft(cleaned, "( \t\r\n"), -1)
	if len(words) == 0 {
		return fmt.Errorf("%w: no statement keyword", ErrNotReadOnly)
	}
	if _, ok := allowedLeadingKeywords[strings.ToLower(words[0])]; !ok {
		return fmt.Errorf("%w: statement starts with %s", ErrNotReadOnly, strings.ToUpper(words[0]))
	}
	for _, word := range words {
		if _, bad := forbiddenKeywords[strings.ToLower(word)]; bad {
			return fmt.Errorf("%w: %s is not allowed", ErrNotReadOnly, strings.ToUpper(word))
		}
	}
	return nil
}

// TrimStatement strips surrounding whitespace and trailing semicolons.
func TrimStatement(sqlText string) string {
	return trimTrailingSemicolons(strings.TrimSpace(sqlText))
}

func trimTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// blankLiteralsAndComments replaces string literals, quoted identifiers,
// dollar-quoted bodies and comments with spaces, keeping the statement
// structure intact. Unterminated literals and comments are an error.
func blankLiteralsAndComments(sqlText string) (string, error) {
	var b strings.Builder
	b.Grow(len(sqlText))
	runes := []rune(sqlText)
	for i := 0; i < len(runes); i++ {
		current := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch {
		case current == '-' && next == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			b.WriteRune(' ')
		case current == '/' && next == '*':
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				i++
			}
			if i >= len(runes) {
				return "", fmt.Errorf("unterminated comment")
			}
			i++
			b.WriteRune(' ')
		case current == '\'' || current == '"':
			escapes := current == '\'' && escapeStringPrefix(runes, i)
			end, ok := closingQuote(runes, i+1, current, escapes)
			if !ok {
				return "", fmt.Errorf("unterminated quoted text")
			}
			i = end
			b.WriteString(" x ")
		case current == '$':
			if i > 0 && isIdentRune(runes[i-1]) {
				return "", fmt.Errorf("$ inside identifiers is not allowed")
			}
			tag, ok := dollarTag(runes, i)
			if !ok {
				b.WriteRune(current)
				continue
			}
			end := indexRunes(runes, i+len(tag), tag)
			if end < 0 {
				return "", fmt.Errorf("unterminated dollar-quoted text")
			}
			i = end + len(tag) - 1
			b.WriteString(" x ")
		default:
			b.WriteRune(current)
		}
	}
	return b.String(), nil
}

// escapeStringPrefix reports whether the quote at runes[i] opens an E'...'
// literal, where a backslash escapes the following character.
func escapeStringPrefix(runes []rune, i int) bool {
	if i == 0 || (runes[i-1] != 'E' && runes[i-1] != 'e') {
		return false
	}
	return i < 2 || !isIdentRune(runes[i-2])
}

// closingQuote returns the index of the quote that ends the literal starting
// at from. A doubled quote never ends it.
func closingQuote(runes []rune, from int, quote rune, escapes bool) (int, bool) {
	for i := from; i < len(runes); i++ {
		switch {
		case escapes && runes[i] == '\\':
			i++
		case runes[i] == quote:
			if i+1 < len(runes) && runes[i+1] == quote {
				i++
				continue
			}
			return i, true
		}
	}
	return 0, false
}

// dollarTag returns the opening $tag$ (or $$) at runes[i]. Positional
// parameters such as $1 are not tags.
func dollarTag(runes []rune, i int) ([]rune, bool) {
	for j := i + 1; j < len(runes); j++ {
		switch {
		case runes[j] == '$':
			return runes[i : j+1], true
		case j == i+1 && unicode.IsDigit(runes[j]):
			return nil, false
		case !isIdentRune(runes[j]):
			return nil, false
		}
	}
	return nil, false
}

func indexRunes(runes []rune, from int, needle []rune) int {
	for i := from; i+len(needle) <= len(runes); i++ {
		if string(runes[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return -1
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
