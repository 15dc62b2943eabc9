package chat

import "regexp"

// Inline reference tokens take two forms: a bracketed content id like
// [doc-3.pdf], or a bare 36-character hyphenated GUID emitted by the
// review flow. Both resolve against the same citation set.
var tokenPattern = regexp.MustCompile(
	`\[[^\[\]]+\]|[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`,
)

// Segment is one piece of rendered answer text: either a literal run
// (Ref == 0) or a numbered reference to a resolved citation.
type Segment struct {
	Text     string
	Ref      int
	Citation CitationRecord
}

// IsRef reports whether the segment is a resolved citation reference.
func (s Segment) IsRef() bool {
	return s.Ref > 0
}

// Render splits answer text into literal segments and numbered citation
// references. Numbers are assigned in first-seen order within this call,
// starting at 1; a token repeating an already-seen content id reuses its
// number. Tokens that match no citation are emitted verbatim so that no
// user-visible text is ever dropped, and an empty citation set makes
// every token a pass-through.
func Render(text string, citations []CitationRecord) []Segment {
	byID := make(map[string]CitationRecord, len(citations))
	for _, c := range citations {
		byID[c.ContentID] = c
	}

	assigned := make(map[string]int)
	var segs []Segment
	last := 0

	for _, loc := range tokenPattern.FindAllStringIndex(text, -1) {
		token := text[loc[0]:loc[1]]
		id := token
		if token[0] == '[' {
			id = token[1 : len(token)-1]
		}

		cit, ok := byID[id]
		if !ok {
			continue // leave the token in the surrounding literal run
		}

		if loc[0] > last {
			segs = append(segs, Segment{Text: text[last:loc[0]]})
		}
		n, seen := assigned[id]
		if !seen {
			n = len(assigned) + 1
			assigned[id] = n
		}
		segs = append(segs, Segment{Ref: n, Citation: cit})
		last = loc[1]
	}

	if last < len(text) {
		segs = append(segs, Segment{Text: text[last:]})
	}
	return segs
}

// Referenced returns the citations resolved by Render in assigned-number
// order. It is the source list a renderer shows under the answer.
func Referenced(segs []Segment) []CitationRecord {
	var out []CitationRecord
	seen := make(map[string]bool)
	for _, s := range segs {
		if s.IsRef() && !seen[s.Citation.ContentID] {
			seen[s.Citation.ContentID] = true
			out = append(out, s.Citation)
		}
	}
	return out
}
