// Package glob implements the recursive wildcard matcher FAT directory
// listing filters use, grounded on the classic FatFs/eFAT pattern-matching
// algorithm: '?' matches exactly one character, '*' matches zero or more,
// and runs of '?'/'*' are collapsed into a single backtracking block
// rather than matched greedily character by character.
package glob

import (
	"github.com/dargueta/fatfs/cp"
)

// Match reports whether name matches pattern, case-folded through page.
// Both strings are matched as Unicode rune sequences; callers working in
// OEM bytes should decode through page first.
func Match(pattern, name string, page *cp.CodePage) bool {
	return matchFrom([]rune(pattern), []rune(name), 0, 0, page)
}

// upper case-folds a rune the same way regardless of code page for now;
// page is threaded through so a future DBC-aware page can override this
// without changing Match's signature.
func upper(r rune, page *cp.CodePage) rune {
	_ = page
	return cp.ToUpperRune(r)
}

// matchFrom mirrors eEFPrvPatternMatching's recursive-descent structure:
// for each wildcard block in the pattern, try matching the rest of the
// pattern against every possible split point in the remaining name before
// giving up.
func matchFrom(pattern, name []rune, pi, ni int, page *cp.CodePage) bool {
	for {
		if pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == '*') {
			minChars := 0
			hasStar := false
			for pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == '*') {
				if pattern[pi] == '?' {
					minChars++
				} else {
					hasStar = true
				}
				pi++
			}

			if ni+minChars > len(name) {
				return false
			}
			ni += minChars

			if !hasStar {
				continue
			}

			// '*' present: try every possible consumption length, from
			// zero upward, recursing on the remainder.
			for extra := 0; ni+extra <= len(name); extra++ {
				if matchFrom(pattern, name, pi, ni+extra, page) {
					return true
				}
			}
			return false
		}

		if pi == len(pattern) {
			return ni == len(name)
		}
		if ni == len(name) {
			return false
		}
		if upper(pattern[pi], page) != upper(name[ni], page) {
			return false
		}
		pi++
		ni++
	}
}
