package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrKind_String(t *testing.T) {
	tests := []struct {
		kind ErrKind
		want string
	}{
		{ErrKindNoDataset, "no_dataset"},
		{ErrKindEmptyQuestion, "empty_question"},
		{ErrKindTranslationUnavailable, "translation_unavailable"},
		{ErrKindUnsafeQuery, "unsafe_query"},
		{ErrKindBinder, "binder_error"},
		{ErrKindCatalog, "catalog_error"},
		{ErrKindRuntime, "runtime_error"},
		{ErrKindInvalidInput, "invalid_input"},
		{ErrKindTimeout, "timeout"},
		{ErrKindUnknown, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestError_Message(t *testing.T) {
	err := New(ErrKindNoDataset, "upload first")
	assert.Equal(t, "[no_dataset] upload first", err.Error())

	wrapped := Wrap(ErrKindRuntime, "query failed", errors.New("division by zero"))
	assert.Equal(t, "[runtime_error] query failed: division by zero", wrapped.Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := Wrap(ErrKindTimeout, "query timed out", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsTimeout(err))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrKindBinder, KindOf(New(ErrKindBinder, "x")))
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, ErrKindUnknown, KindOf(nil))

	// Kind survives further wrapping with %w.
	inner := New(ErrKindUnsafeQuery, "rejected")
	outer := fmt.Errorf("handling request: %w", inner)
	assert.Equal(t, ErrKindUnsafeQuery, KindOf(outer))
	assert.True(t, IsUnsafeQuery(outer))
}

func TestPredicates(t *testing.T) {
	require.True(t, IsNoDataset(New(ErrKindNoDataset, "")))
	require.True(t, IsEmptyQuestion(New(ErrKindEmptyQuestion, "")))
	require.True(t, IsTranslationUnavailable(New(ErrKindTranslationUnavailable, "")))
	require.True(t, IsBinder(New(ErrKindBinder, "")))
	require.True(t, IsCatalog(New(ErrKindCatalog, "")))
	require.True(t, IsRuntime(New(ErrKindRuntime, "")))
	require.True(t, IsInvalidInput(New(ErrKindInvalidInput, "")))
	require.False(t, IsBinder(New(ErrKindCatalog, "")))
}
