package fatfs

import "strings"

// normalize tokenizes path by "/", joining relative paths onto cwd first,
// then collapses "." and ".." left-to-right; ".." at root is a no-op.
func normalize(cwd, path string) []string {
	full := path
	if !strings.HasPrefix(path, "/") {
		full = cwd + "/" + path
	}
	raw := strings.Split(full, "/")
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		switch tok {
		case "", ".":
			// skip
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, tok)
		}
	}
	return out
}

// CleanPath resolves path against cwd and renders the result as a
// normalized absolute path string, without touching the directory it
// names — used by callers (like a shell's cd) that need the resolved
// string rather than a lookup.
func CleanPath(cwd, path string) string {
	return joinAbs(normalize(cwd, path))
}

// joinAbs renders tokens back into an absolute path string.
func joinAbs(tokens []string) string {
	if len(tokens) == 0 {
		return "/"
	}
	return "/" + strings.Join(tokens, "/")
}
