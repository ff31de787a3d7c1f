package fs

import "strings"

// Path is a filesystem path expressed as a sequence of component names,
// always implicitly anchored at the root directory. It has no notion of
// "current" on its own; FileSystem methods resolve a Path by walking from
// the root directory sector, component by component.
type Path struct {
	parts []string
}

// ParsePath splits a '/'-separated string into a Path, collapsing "." and
// resolving ".." against what precedes it, as if applied to the root.
func ParsePath(s string) Path {
	return Path{}.Merge(s)
}

// Merge resolves name against p: a leading '/' makes name absolute
// (discarding p's components); otherwise name is appended relative to p.
// "." is ignored, ".." pops the preceding component.
func (p Path) Merge(name string) Path {
	parts := append([]string(nil), p.parts...)
	if strings.HasPrefix(name, "/") {
		parts = parts[:0]
	}
	for _, seg := range strings.Split(name, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, seg)
		}
	}
	return Path{parts: parts}
}

// Split removes and returns the final component, leaving p naming its
// parent directory. Splitting the root path returns "".
func (p *Path) Split() string {
	if len(p.parts) == 0 {
		return ""
	}
	last := p.parts[len(p.parts)-1]
	p.parts = p.parts[:len(p.parts)-1]
	return last
}

// List returns the path's components in order from the root.
func (p Path) List() []string { return append([]string(nil), p.parts...) }

// String renders the path in '/'-separated form, "/" for the root.
func (p Path) String() string {
	if len(p.parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.parts, "/")
}
