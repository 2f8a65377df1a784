package login

import "strings"

// IsLocalURL reports whether u points into this application: "/path" and
// "~/path" are local, "//host" and "/\host" are not.
func IsLocalURL(u string) bool {
	_, ok := LocalPath(u)
	return ok
}

// LocalPath returns the normalised local form of u.
func LocalPath(u string) (string, bool) {
	if rest, ok := strings.CutPrefix(u, "~"); ok {
		if !strings.HasPrefix(rest, "/") {
			return "", false
		}
		u = rest
	}

	if !strings.HasPrefix(u, "/") {
		return "", false
	}
	if len(u) > 1 && (u[1] == '/' || u[1] == '\\') {
		return "", false
	}
	if strings.ContainsAny(u, "\r\n\t") {
		return "", false
	}

	return u, true
}
