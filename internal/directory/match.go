package directory

import "strings"

// normName folds a display name for comparison: lowercase, trimmed, inner
// whitespace collapsed to single spaces.
func normName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// MatchSubAccount resolves a local credential row to a remote sub-account by
// case-insensitive substring containment of the normalized names, in either
// direction ("Portland" matches "Portland Downtown" and vice versa). First
// match wins; returns false when nothing matches.
func MatchSubAccount(localName string, remotes []SubAccountRef) (SubAccountRef, bool) {
	ln := normName(localName)
	if ln == "" {
		return SubAccountRef{}, false
	}
	for _, r := range remotes {
		rn := normName(r.Name)
		if rn == "" {
			continue
		}
		if strings.Contains(rn, ln) || strings.Contains(ln, rn) {
			return r, true
		}
	}
	return SubAccountRef{}, false
}

// Slugify derives the stable API identifier from a display name:
// lowercase, runs of non-alphanumerics collapsed to single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			hyphen = false
		default:
			if !hyphen && b.Len() > 0 {
				b.WriteByte('-')
				hyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
