package release

import (
	"strings"
	"testing"
)

func TestFormatNote_AllFields(t *testing.T) {
	repo := Repo{Owner: "acme", Name: "widgets"}
	rel := Release{
		TagName: "v1.2.0",
		Name:    "Widgets 1.2",
		Body:    "Fixed the flux capacitor.\nFaster spinning.",
		HTMLURL: "https://github.com/acme/widgets/releases/tag/v1.2.0",
	}

	note := FormatNote(repo, rel)

	for _, want := range []string{
		"acme/widgets",
		"v1.2.0",
		"<b>Widgets 1.2</b>",
		"Fixed the flux capacitor.<br>Faster spinning.",
		`<a href="https://github.com/acme/widgets/releases/tag/v1.2.0">`,
	} {
		if !strings.Contains(note, want) {
			t.Errorf("note missing %q\nnote: %s", want, note)
		}
	}
}

func TestFormatNote_EscapesMetacharacters(t *testing.T) {
	repo := Repo{Owner: "acme", Name: "widgets"}
	rel := Release{
		TagName: `v1.0 <script>&"'`,
		Name:    "<img src=x>",
		Body:    `a & b < c > d " e ' f`,
	}

	note := FormatNote(repo, rel)

	if strings.Contains(note, "<script>") || strings.Contains(note, "<img") {
		t.Errorf("note contains unescaped markup: %s", note)
	}
	for _, want := range []string{"&lt;script&gt;", "&amp;", "&#34;", "&#39;"} {
		if !strings.Contains(note, want) {
			t.Errorf("note missing escaped form %q: %s", want, note)
		}
	}
}

func TestFormatNote_TruncatesLongBody(t *testing.T) {
	rel := Release{
		TagName: "v1",
		Body:    strings.Repeat("z", BodyMaxChars+500),
	}

	note := FormatNote(Repo{Owner: "a", Name: "b"}, rel)

	if !strings.Contains(note, strings.Repeat("z", BodyMaxChars)+"...") {
		t.Error("body should be cut at the cap with an ellipsis marker")
	}
	if strings.Contains(note, strings.Repeat("z", BodyMaxChars+1)) {
		t.Error("body exceeds the cap")
	}
}

func TestFormatNote_OmitsAbsentFields(t *testing.T) {
	note := FormatNote(Repo{Owner: "acme", Name: "widgets"}, Release{TagName: "v2"})

	if strings.Contains(note, "<a href") {
		t.Error("note should omit the link when the release has no URL")
	}
	// Only the header line: no trailing empty sections.
	if strings.Count(note, "<br><br>") != 0 {
		t.Errorf("note should have no sections beyond the header: %s", note)
	}
}

func TestFormatNote_Deterministic(t *testing.T) {
	repo := Repo{Owner: "acme", Name: "widgets"}
	rel := Release{TagName: "v3", Name: "Three", Body: "body", HTMLURL: "https://example.com"}

	if FormatNote(repo, rel) != FormatNote(repo, rel) {
		t.Error("FormatNote must be deterministic")
	}
}
