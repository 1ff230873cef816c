package authgate

import (
	"path"
	"strings"
)

// publicPaths are reachable without any cookie.
var publicPaths = map[string]bool{
	"/":               true,
	"/login":          true,
	"/create-account": true,
	"/demo":           true,
}

// publicPrefixes cover build assets, the API mount, images and share links.
var publicPrefixes = []string{
	"/_next/",
	"/api/",
	"/images/",
	"/p/",
}

// publicExtensions are asset types that must load before the user signs in.
// "js" and "json" are kept for the dashboard bundle and its manifests.
var publicExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "webp": true, "gif": true,
	"css": true, "ico": true, "svg": true,
	"woff": true, "woff2": true, "ttf": true,
	"js": true, "txt": true, "xml": true, "json": true,
}

// IsPublicPath reports whether p may be served without authentication.
// The path is cleaned first so dot segments cannot borrow a public prefix.
func IsPublicPath(p string) bool {
	if p == "" {
		p = "/"
	}
	clean := path.Clean("/" + p)
	// path.Clean drops the trailing slash a prefix match relies on.
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}

	if publicPaths[clean] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(clean, prefix) {
			return true
		}
	}

	ext, ok := staticExtension(clean)
	return ok && publicExtensions[ext]
}

// staticExtension returns the lower-cased extension of the final path segment.
// Only alphanumeric extensions count, matching what the build emits.
func staticExtension(p string) (string, bool) {
	segment := p[strings.LastIndex(p, "/")+1:]
	dot := strings.LastIndex(segment, ".")
	if dot < 0 || dot == len(segment)-1 {
		return "", false
	}
	ext := segment[dot+1:]
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "", false
		}
	}
	return strings.ToLower(ext), true
}
