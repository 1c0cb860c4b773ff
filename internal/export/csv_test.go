package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasage-io/datasage/internal/errs"
)

func TestEncodeRows(t *testing.T) {
	columns := []string{"region", "note", "sales"}
	rows := []map[string]any{
		{"region": "East", "note": "", "sales": int64(100)},
		{"region": nil, "note": "a,b", "sales": 1.5},
		{"region": "We\"st", "note": nil, "sales": nil},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeRows(&buf, columns, rows))

	want := "region,note,sales\n" +
		"East,\"\",100\n" +
		",\"a,b\",1.5\n" +
		"\"We\"\"st\",,\n"
	assert.Equal(t, want, buf.String())
}

func TestEncodeRows_NoColumns(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeRows(&buf, nil, nil)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestRoundTrip_NullVersusEmpty(t *testing.T) {
	columns := []string{"a", "b"}
	rows := []map[string]any{
		{"a": "", "b": nil},
		{"a": "x", "b": "line\nbreak"},
		{"a": "quote\"inside", "b": "comma,inside"},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeRows(&buf, columns, rows))

	gotCols, gotRows, err := DecodeRows(&buf)
	require.NoError(t, err)
	assert.Equal(t, columns, gotCols)
	require.Len(t, gotRows, 3)

	assert.Equal(t, "", gotRows[0]["a"])
	assert.Nil(t, gotRows[0]["b"])
	assert.Equal(t, "line\nbreak", gotRows[1]["b"])
	assert.Equal(t, "quote\"inside", gotRows[2]["a"])
	assert.Equal(t, "comma,inside", gotRows[2]["b"])
}

func TestDecodeRows_Errors(t *testing.T) {
	_, _, err := DecodeRows(strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	_, _, err = DecodeRows(strings.NewReader("a,b\n1\n"))
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	_, _, err = DecodeRows(strings.NewReader("a\n\"oops\n"))
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}
