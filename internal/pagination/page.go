package pagination

// Page is one slice of a feed.
type Page[T any] struct {
	Items   []T
	HasMore bool
}

// Take builds a page from a fetch of up to limit+1 rows: the extra row, if
// present, only signals that more data exists.
func Take[T any](fetched []T, limit int) Page[T] {
	if limit < 0 {
		limit = 0
	}
	if len(fetched) > limit {
		return Page[T]{Items: fetched[:limit], HasMore: true}
	}
	return Page[T]{Items: fetched}
}

// ResolveRanked picks the session position to serve from. The persisted
// position is authoritative: a missing token starts a session at it, and a
// token behind it (a replayed or concurrent page) is moved up to it.
func ResolveRanked(tok *Ranked, persisted int64) Ranked {
	if persisted < 0 {
		persisted = 0
	}
	if tok == nil {
		return Ranked{Base: persisted, Position: persisted}
	}
	r := *tok
	if r.Position < persisted {
		r.Position = persisted
	}
	return r
}

// SliceRanked serves limit items of a session's ranked list starting at
// r's offset. ranked must hold at least offset+limit+1 items when more
// exist. It returns the page and the position after it.
func SliceRanked[T any](ranked []T, r Ranked, limit int) (Page[T], Ranked) {
	off := int(r.Offset())
	if off < 0 {
		off = 0
	}
	if off >= len(ranked) {
		return Page[T]{}, r
	}
	p := Take(ranked[off:], limit)
	r.Position += int64(len(p.Items))
	return p, r
}
