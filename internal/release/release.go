package release

import "time"

// Repo identifies an upstream repository by owner and name.
type Repo struct {
	Owner string
	Name  string
}

// String returns the "owner/name" form used in logs and note bodies.
func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// Release is an upstream release record. The sync engine never mutates
// releases; it only reads them to decide what to publish.
type Release struct {
	ID          int64      `json:"id"`
	TagName     string     `json:"tag_name"`
	Name        string     `json:"name"`
	HTMLURL     string     `json:"html_url"`
	Body        string     `json:"body"`
	Draft       bool       `json:"draft"`
	PublishedAt *time.Time `json:"published_at"`
}

// Publishable reports whether the release is eligible for syncing:
// not a draft and carrying a publish timestamp.
func (r Release) Publishable() bool {
	return !r.Draft && r.PublishedAt != nil
}

// Watermark records the identity of the last release synchronized for a
// mapping. A zero Watermark means the mapping has never synced.
type Watermark struct {
	ReleaseID *int64
	// TagName is informational only; it is never used for comparison.
	TagName     *string
	PublishedAt *time.Time
}
