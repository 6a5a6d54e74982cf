// Package pathutil implements the POSIX path canonicalization and prefix
// stripping debugedit needs to rewrite comp_dir/file paths (spec §4.B).
// Both operations are purely textual: they never touch the filesystem, so
// they work identically whether the path exists on this machine or not
// (the whole point — these paths name locations in the *build* sandbox).
package pathutil

import "strings"

// Canonicalize collapses redundant separators, resolves "." and ".."
// segments textually, preserves a leading "//" (the POSIX namespace
// escape), strips trailing separators and returns "." for an emptied
// result. It is grounded directly on canonicalize_path() in
// original_source/tools/debugedit.c, translated from its in-place
// two-cursor C string algorithm into an idiomatic Go byte-slice builder.
func Canonicalize(s string) string {
	if s == "" {
		return "."
	}

	var out strings.Builder
	out.Grow(len(s))

	i := 0
	if isSep(s[i]) {
		out.WriteByte('/')
		i++
		if i < len(s) && isSep(s[i]) && (i+1 >= len(s) || !isSep(s[i+1])) {
			// Special case for "//foo": a POSIX namespace escape.
			out.WriteByte('/')
			i++
		}
		for i < len(s) && isSep(s[i]) {
			i++
		}
	}
	rootLen := out.Len()

	var segments []string

	for i < len(s) {
		start := i
		for i < len(s) && !isSep(s[i]) {
			i++
		}
		seg := s[start:i]

		switch seg {
		case ".":
			// Drop it.
		case "..":
			if len(segments) > 0 && segments[len(segments)-1] != ".." {
				segments = segments[:len(segments)-1]
			} else if rootLen > 0 {
				// Leading "/../" collapses to "/": absolute paths have no
				// parent above root.
			} else {
				segments = append(segments, seg)
			}
		default:
			segments = append(segments, seg)
		}

		for i < len(s) && isSep(s[i]) {
			i++
		}
	}

	for _, seg := range segments {
		if out.Len() > rootLen {
			out.WriteByte('/')
		}
		out.WriteString(seg)
	}

	result := out.String()
	if result == "" {
		return "."
	}
	return result
}

func isSep(b byte) bool {
	return b == '/'
}

// SkipPrefix returns the remainder of path after dir, provided path begins
// with dir followed by end-of-string or a separator; it reports false
// otherwise. dir must not have a trailing separator. The returned
// remainder never starts with '/': any run of separators right after the
// matched prefix is consumed. Grounded on skip_dir_prefix() in
// original_source/tools/debugedit.c.
func SkipPrefix(path, dir string) (string, bool) {
	if !strings.HasPrefix(path, dir) {
		return "", false
	}
	rest := path[len(dir):]
	if rest != "" && !isSep(rest[0]) {
		return "", false
	}
	for len(rest) > 0 && isSep(rest[0]) {
		rest = rest[1:]
	}
	return rest, true
}

// Join mirrors the spec's "[comp_dir + '/' +] dir [+ '/' +] file" source
// path construction: it joins non-empty components with a single '/',
// skipping empty ones, without introducing doubled separators.
func Join(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, strings.TrimSuffix(p, "/"))
		}
	}
	return strings.Join(nonEmpty, "/")
}
