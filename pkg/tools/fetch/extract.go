package fetch

import (
	"regexp"
	"strings"
)

var (
	scriptRe  = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagRe     = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe   = regexp.MustCompile(`[ \t\r\f]+`)
)

// entities is deliberately small: full HTML entity decoding is not the goal,
// just enough for readable prose.
var entities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
)

// minFragmentLen filters out navigation crumbs and button labels.
const minFragmentLen = 40

// looksLikeMarkup guesses whether a payload is HTML rather than plain text.
func looksLikeMarkup(s string) bool {
	probe := strings.ToLower(s)
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	for _, marker := range []string{"<!doctype", "<html", "<head", "<body", "<div", "<p>"} {
		if strings.Contains(probe, marker) {
			return true
		}
	}
	return false
}

// extractText reduces markup to readable prose: script/style blocks and
// comments are dropped, tags stripped, a small entity table decoded,
// whitespace collapsed, and only fragments longer than minFragmentLen kept.
func extractText(markup string) string {
	text := scriptRe.ReplaceAllString(markup, " ")
	text = styleRe.ReplaceAllString(text, " ")
	text = commentRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, "\n")
	text = entities.Replace(text)

	var fragments []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if len(line) > minFragmentLen {
			fragments = append(fragments, line)
		}
	}
	return strings.Join(fragments, "\n")
}
