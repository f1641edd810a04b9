package speech

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	controlTokenPattern   = regexp.MustCompile(`\b[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+\b`)
	bracketTokenPattern   = regexp.MustCompile(`\[[^\]]*\]|<[^>]*>|\{\{?[^}]*\}?\}`)
	urlPattern            = regexp.MustCompile(`https?://\S+`)
	fencedCodePattern     = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern     = regexp.MustCompile("`[^`]*`")
	markdownLinkPattern   = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	knownSystemTokenWords = map[string]bool{
		"HANDOFF": true, "HANGUP": true, "TRANSFER": true, "NOOP": true, "SILENCE": true,
		"GATHER": true, "REDIRECT": true, "INTENT": true, "STATE": true, "NONE": true, "NULL": true,
	}
)

// Sanitize returns text that is safe to hand to a speech synthesizer. Control
// tokens (SNAKE_CASE capitals, known system words, bracketed placeholders) are
// removed, markup is dropped and whitespace collapsed. Input that is nothing
// but noise yields "".
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = fencedCodePattern.ReplaceAllString(raw, " ")
	raw = inlineCodePattern.ReplaceAllString(raw, " ")
	raw = markdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = urlPattern.ReplaceAllString(raw, " ")
	raw = bracketTokenPattern.ReplaceAllString(raw, " ")
	raw = controlTokenPattern.ReplaceAllString(raw, " ")
	raw = dropSystemWords(raw)

	raw = strings.NewReplacer(
		"*", " ",
		"_", " ",
		"\\", " ",
		"/", " ",
		"|", " ",
		"#", " ",
		"~", " ",
		"<", " ",
		">", " ",
		"&", " and ",
	).Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true

	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			continue
		case isSpeechSafePunctuation(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsPunct(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}

	out := strings.TrimSpace(b.String())
	if !hasSpeakableRune(out) {
		return ""
	}
	return tidyPunctuation(out)
}

func dropSystemWords(raw string) string {
	fields := strings.Fields(raw)
	kept := fields[:0]
	for _, f := range fields {
		word := strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if knownSystemTokenWords[word] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// tidyPunctuation removes the space left before punctuation when a token in
// the middle of a sentence was dropped.
func tidyPunctuation(s string) string {
	for _, p := range []string{".", ",", "!", "?", ":", ";"} {
		s = strings.ReplaceAll(s, " "+p, p)
	}
	return strings.TrimLeft(s, ".,!?:; ")
}

func hasSpeakableRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isSpeechSafePunctuation(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')':
		return true
	default:
		return false
	}
}
