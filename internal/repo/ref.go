package repo

import "strings"

const (
	optionalPrefix = "optional:"
	dekryptPrefix  = "dekrypt:"
)

// Ref is a parsed logical file reference of the form
// [optional:][dekrypt:][<reponame>:]<path>.
type Ref struct {
	Optional bool
	Dekrypt  bool
	Repo     string
	Path     string
}

// ParseRef parses a logical file reference. The prefixes may appear in
// either order. A reference without a repo name leaves Repo empty; the
// Manager resolves that to its default repo.
func ParseRef(s string) Ref {
	var ref Ref
	for {
		switch {
		case strings.HasPrefix(s, optionalPrefix):
			ref.Optional = true
			s = s[len(optionalPrefix):]
			continue
		case strings.HasPrefix(s, dekryptPrefix):
			ref.Dekrypt = true
			s = s[len(dekryptPrefix):]
			continue
		}
		break
	}
	if idx := strings.Index(s, ":"); idx > 0 {
		ref.Repo = s[:idx]
		s = s[idx+1:]
	}
	ref.Path = s
	return ref
}

// String formats the reference back into its logical form.
func (r Ref) String() string {
	var b strings.Builder
	if r.Optional {
		b.WriteString(optionalPrefix)
	}
	if r.Dekrypt {
		b.WriteString(dekryptPrefix)
	}
	if r.Repo != "" {
		b.WriteString(r.Repo)
		b.WriteString(":")
	}
	b.WriteString(r.Path)
	return b.String()
}
