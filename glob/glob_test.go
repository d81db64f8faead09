package glob_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dargueta/fatfs/cp"
	"github.com/dargueta/fatfs/glob"
)

func TestMatch_ExactCaseInsensitive(t *testing.T) {
	assert.True(t, glob.Match("README.TXT", "readme.txt", cp.CP437))
	assert.False(t, glob.Match("README.TXT", "readme.md", cp.CP437))
}

func TestMatch_QuestionMark(t *testing.T) {
	assert.True(t, glob.Match("FILE?.TXT", "FILE1.TXT", cp.CP437))
	assert.False(t, glob.Match("FILE?.TXT", "FILE12.TXT", cp.CP437))
}

func TestMatch_Star(t *testing.T) {
	assert.True(t, glob.Match("*.TXT", "ANYTHING.TXT", cp.CP437))
	assert.True(t, glob.Match("A*Z.TXT", "AZ.TXT", cp.CP437))
	assert.True(t, glob.Match("A*Z.TXT", "ABCZ.TXT", cp.CP437))
	assert.False(t, glob.Match("A*Z.TXT", "ABCY.TXT", cp.CP437))
}

func TestMatch_MixedWildcardBlock(t *testing.T) {
	assert.True(t, glob.Match("*?.TXT", "A.TXT", cp.CP437))
	assert.False(t, glob.Match("??.TXT", "A.TXT", cp.CP437))
}
