package errors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fatfserrors "github.com/dargueta/fatfs/errors"
)

func TestCode_String(t *testing.T) {
	assert.Equal(t, "no such file", fatfserrors.NoFile.String())
	assert.Equal(t, "no such file", fatfserrors.New(fatfserrors.NoFile).Error())
}

func TestErr_WithMessage_PreservesCode(t *testing.T) {
	base := fatfserrors.New(fatfserrors.InvalidName)
	wrapped := base.WithMessage("contains a reserved character")

	require.True(t, fatfserrors.Is(wrapped, fatfserrors.InvalidName))
	assert.Contains(t, wrapped.Error(), "reserved character")
}

func TestErr_WrapError_UnwrapsToCause(t *testing.T) {
	cause := fatfserrors.New(fatfserrors.DiskError)
	wrapped := fatfserrors.New(fatfserrors.IntError).WrapError(cause)

	require.True(t, fatfserrors.Is(wrapped.Unwrap(), fatfserrors.DiskError))
}

func TestIs_FalseForUnrelatedCode(t *testing.T) {
	err := fatfserrors.New(fatfserrors.Exist)
	assert.False(t, fatfserrors.Is(err, fatfserrors.NoFile))
}
