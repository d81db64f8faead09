package fs

// ParsedPath is the result of splitting a registry-facing path into its
// optional drive-letter prefix and the remainder handed to lookupPath.
type ParsedPath struct {
	// HasDrive is true when the path began with an "X:" prefix.
	HasDrive bool
	// Drive is the upper-cased drive letter, valid only when HasDrive.
	Drive byte
	// Rest is the path text following the prefix (or the whole input when
	// there was none), unchanged otherwise: still using whichever of "/"
	// or "\" the caller wrote.
	Rest string
}

// ParsePath splits path on a leading "X:" drive prefix, where X is a
// single ASCII letter, matching "X:PATH" path syntax: without a prefix
// the path addresses whichever volume the caller (the registry, usually)
// treats as the default.
func ParsePath(path string) ParsedPath {
	if len(path) >= 2 && path[1] == ':' && isASCIILetter(path[0]) {
		return ParsedPath{
			HasDrive: true,
			Drive:    upperASCII(path[0]),
			Rest:     path[2:],
		}
	}
	return ParsedPath{Rest: path}
}

func isASCIILetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func upperASCII(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}
