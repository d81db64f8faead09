// Package cp bridges the single-byte OEM code page used by short file
// names to Unicode, and provides the upper-case folding and double-byte
// character (DBC) range predicates the name pipeline needs.
//
// Only CP437 (the historical default) is wired up; additional code pages
// would plug in the same way by constructing another *CodePage over a
// different charmap.Charmap.
package cp

import (
	"golang.org/x/text/encoding/charmap"
)

// CodePage converts between an 8-bit OEM encoding and Unicode runes, and
// folds OEM bytes/runes to upper case the way FAT short names require.
type CodePage struct {
	id      int
	charmap *charmap.Charmap
}

// CP437 is the US OEM code page, the default for short file names.
var CP437 = &CodePage{id: 437, charmap: charmap.CodePage437}

// ID returns the numeric code page identifier (e.g. 437).
func (c *CodePage) ID() int { return c.id }

// ToUnicode decodes a single OEM byte to its Unicode rune.
func (c *CodePage) ToUnicode(b byte) rune {
	r := c.charmap.DecodeByte(b)
	if r == 0xFFFD {
		return rune(b)
	}
	return r
}

// FromUnicode encodes a Unicode rune to its OEM byte, reporting false if
// the rune has no representation in this code page.
func (c *CodePage) FromUnicode(r rune) (byte, bool) {
	b, ok := c.charmap.EncodeRune(r)
	return b, ok
}

// ToUpperOEM folds a single OEM byte to upper case, leaving bytes with no
// case mapping (including DBC lead bytes) unchanged. Grounded on the
// "to upper SBCS extended char" step of the original pattern-matching
// character reader.
func (c *CodePage) ToUpperOEM(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 0x20
	}
	if b < 0x80 {
		return b
	}
	r := c.ToUnicode(b)
	upper := ToUpperRune(r)
	if upper == r {
		return b
	}
	if ub, ok := c.FromUnicode(upper); ok {
		return ub
	}
	return b
}

// ToUpperRune folds any rune to upper case using simple Unicode case
// folding, used for both OEM (after decode) and native-Unicode API modes.
func ToUpperRune(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 0x20
	}
	if r < 0x80 {
		return r
	}
	return toUpperExtended(r)
}

// toUpperExtended covers the Latin-1 supplement range most OEM code pages
// draw their accented letters from; characters outside it are returned
// unchanged, matching the conservative behavior of the original's
// extended-character upper-case table.
func toUpperExtended(r rune) rune {
	switch {
	case r >= 0x00E0 && r <= 0x00FE && r != 0x00F7:
		return r - 0x20
	case r == 0x00FF:
		return 0x0178
	default:
		return r
	}
}

// IsDBCLeadByte reports whether b falls in a code page's double-byte lead
// range. CP437 is single-byte only, so this is always false for it; the
// hook exists so the name pipeline and glob matcher can stay code-page
// agnostic once a DBC page (932/936/949/950) is wired in.
func (c *CodePage) IsDBCLeadByte(b byte) bool {
	return false
}

// IsDBCTrailByte reports whether b falls in a code page's double-byte
// trail-byte range. See IsDBCLeadByte.
func (c *CodePage) IsDBCTrailByte(b byte) bool {
	return false
}
