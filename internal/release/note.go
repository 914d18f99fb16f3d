package release

import (
	"html"
	"strings"
)

// BodyMaxChars is the cap on release body text embedded in a note.
// Longer bodies are truncated with an ellipsis marker.
const BodyMaxChars = 8000

// FormatNote renders the HTML note body published to the CRM for one
// release. Every interpolated field is escaped; absent fields (no release
// name, no body, no URL) are omitted rather than rendered empty. Output is
// deterministic for identical inputs.
func FormatNote(repo Repo, rel Release) string {
	var b strings.Builder

	b.WriteString("<b>New release in ")
	b.WriteString(html.EscapeString(repo.String()))
	b.WriteString(": ")
	b.WriteString(html.EscapeString(rel.TagName))
	b.WriteString("</b>")

	if rel.Name != "" {
		b.WriteString("<br><br><b>")
		b.WriteString(html.EscapeString(rel.Name))
		b.WriteString("</b>")
	}

	if rel.Body != "" {
		body := rel.Body
		if runes := []rune(body); len(runes) > BodyMaxChars {
			body = string(runes[:BodyMaxChars]) + "..."
		}
		b.WriteString("<br><br>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(body), "\n", "<br>"))
	}

	if rel.HTMLURL != "" {
		b.WriteString(`<br><br><a href="`)
		b.WriteString(html.EscapeString(rel.HTMLURL))
		b.WriteString(`">View release on GitHub</a>`)
	}

	return b.String()
}
