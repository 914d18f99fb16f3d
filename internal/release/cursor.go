package release

import "sort"

// Evaluate determines which of the fetched releases are new relative to the
// watermark, in the order they must be published, together with the
// watermark to persist once all of them have been published.
//
// Rules:
//   - Only publishable releases (non-draft, with a publish timestamp) are
//     considered. Candidates are ordered ascending by published_at; ties
//     keep the relative order of the input (stable sort, no secondary key).
//   - If the watermark carries a publish timestamp, a release is new iff
//     its timestamp is strictly later. The timestamp rule always wins when
//     a timestamp watermark exists; the id rule below is only a fallback
//     for mappings recorded before timestamps were tracked.
//   - Otherwise, if the watermark carries a release id, a release is new
//     iff its id is strictly greater.
//   - With no watermark at all, every publishable release is new.
//
// A release republished with a timestamp at or before the watermark is
// treated as already seen and is not resynced, even if its id is higher.
//
// Returns (nil, nil) when there is nothing to publish; the caller records
// the mapping as skipped and must not touch the stored watermark.
func Evaluate(w Watermark, releases []Release) ([]Release, *Watermark) {
	candidates := make([]Release, 0, len(releases))
	for _, r := range releases {
		if r.Publishable() {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PublishedAt.Before(*candidates[j].PublishedAt)
	})

	var fresh []Release
	switch {
	case w.PublishedAt != nil:
		for _, r := range candidates {
			if r.PublishedAt.After(*w.PublishedAt) {
				fresh = append(fresh, r)
			}
		}
	case w.ReleaseID != nil:
		for _, r := range candidates {
			if r.ID > *w.ReleaseID {
				fresh = append(fresh, r)
			}
		}
	default:
		fresh = candidates
	}

	if len(fresh) == 0 {
		return nil, nil
	}

	last := fresh[len(fresh)-1]
	id := last.ID
	tag := last.TagName
	publishedAt := *last.PublishedAt

	return fresh, &Watermark{
		ReleaseID:   &id,
		TagName:     &tag,
		PublishedAt: &publishedAt,
	}
}
