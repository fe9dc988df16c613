package intent

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/directory"
)

var targetMarkers = []string{
	"speak to", "speak with", "talk to", "talk with",
	"connect me to", "connect me with", "put me through to", "transfer me to",
	"looking for", "reach", "prata med", "söker",
}

var reasonMarkers = []string{" about ", " regarding ", " concerning ", " angående "}

var messageMarkers = []string{
	"leave a message", "take a message", "leave message",
	"lämna ett meddelande", "lämna meddelande",
}

var callerNameMarkers = []string{"my name is ", "this is ", "jag heter ", "det är "}

// cut points that end a spoken target
var targetTerminators = []string{
	" about ", " regarding ", " concerning ", " angående ", " please", " because ", " and ",
	",", ".", "?", "!",
}

var genericPeople = map[string]bool{
	"someone": true, "somebody": true, "anyone": true, "anybody": true, "någon": true,
}

const (
	maxNameWords = 3
	minNameWords = 2
)

// KeywordParser recognises common English and Swedish phrasings without any
// external service.
type KeywordParser struct{}

func (KeywordParser) Parse(_ context.Context, utterance string) (Intent, error) {
	text := strings.TrimSpace(utterance)
	lower := strings.ToLower(text)

	result := Intent{
		CallerName:   callerName(text, lower),
		Reason:       reason(text, lower),
		WantsMessage: containsAny(lower, messageMarkers),
	}

	target := afterFirstMarker(text, lower, targetMarkers)
	if target == "" && !result.WantsMessage && looksLikeName(text) {
		target = text
	}

	if target != "" {
		result.Person, result.Department = splitTarget(cutTarget(target))
	}

	return result, nil
}

func splitTarget(target string) (string, string) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", ""
	}

	if department, ok := directory.CanonicalDepartment(target); ok {
		return "", department
	}

	lower := strings.ToLower(target)
	for _, sep := range []string{" in ", " from ", " at ", " på ", " i "} {
		idx := strings.Index(lower, sep)
		if idx < 0 {
			continue
		}

		department, ok := directory.CanonicalDepartment(target[idx+len(sep):])
		if !ok {
			continue
		}

		person := strings.TrimSpace(target[:idx])
		if genericPeople[strings.ToLower(person)] {
			person = ""
		}

		return titleCase(person), department
	}

	if genericPeople[lower] {
		return "", ""
	}

	return titleCase(target), ""
}

func cutTarget(target string) string {
	lower := strings.ToLower(target)
	end := len(target)

	for _, terminator := range targetTerminators {
		if idx := strings.Index(lower, terminator); idx >= 0 && idx < end {
			end = idx
		}
	}

	return strings.TrimSpace(target[:end])
}

// afterFirstMarker returns the text following whichever marker appears first.
func afterFirstMarker(text, lower string, markers []string) string {
	best, bestLen := -1, 0

	for _, marker := range markers {
		idx := indexPhrase(lower, marker)
		if idx >= 0 && (best < 0 || idx < best) {
			best, bestLen = idx, len(marker)
		}
	}

	if best < 0 {
		return ""
	}

	return strings.TrimSpace(text[best+bestLen:])
}

// indexPhrase finds phrase only where it stands as whole words.
func indexPhrase(s, phrase string) int {
	for offset := 0; offset < len(s); {
		idx := strings.Index(s[offset:], phrase)
		if idx < 0 {
			return -1
		}

		start, end := offset+idx, offset+idx+len(phrase)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])

		if !isWordRune(before) && !isWordRune(after) {
			return start
		}

		offset = start + 1
	}

	return -1
}

// DecodeRune yields RuneError at either end of the string, which is not a word rune.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func reason(text, lower string) string {
	for _, marker := range reasonMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 {
			return strings.TrimRight(strings.TrimSpace(text[idx+len(marker):]), ".?!")
		}
	}

	return ""
}

func callerName(text, lower string) string {
	for _, marker := range callerNameMarkers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}

		var words []string

		for _, word := range strings.Fields(text[idx+len(marker):]) {
			trimmed := strings.TrimRight(word, ",.?!")
			if !startsUpper(trimmed) || len(words) == maxNameWords {
				break
			}

			words = append(words, trimmed)

			if trimmed != word {
				break
			}
		}

		if len(words) > 0 {
			return strings.Join(words, " ")
		}
	}

	return ""
}

// looksLikeName accepts a bare "Jane Doe" style answer to "who would you like
// to speak to".
func looksLikeName(text string) bool {
	words := strings.Fields(strings.TrimRight(text, ".?!"))
	if len(words) < minNameWords || len(words) > maxNameWords {
		return false
	}

	for _, word := range words {
		if !startsUpper(word) {
			return false
		}
	}

	return true
}

func startsUpper(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)

	return unicode.IsUpper(r)
}

func titleCase(s string) string {
	words := strings.Fields(s)

	for idx, word := range words {
		r, size := utf8.DecodeRuneInString(word)
		words[idx] = string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
	}

	return strings.Join(words, " ")
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}

	return false
}
