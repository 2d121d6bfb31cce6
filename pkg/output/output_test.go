package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, "yaml": FormatYAML, " raw ": FormatRaw} {
		got, err := ParseFormat(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("table")
	require.ErrorContains(t, err, "unknown output format")
}

func TestWriteObject(t *testing.T) {
	obj := map[string]string{"name": "reauth"}

	var buf bytes.Buffer
	require.NoError(t, WriteObject(&buf, FormatJSON, obj))
	assert.Equal(t, "{\n  \"name\": \"reauth\"\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteObject(&buf, FormatYAML, obj))
	assert.Equal(t, "name: reauth\n", buf.String())

	require.Error(t, WriteObject(&buf, Format("table"), obj))
}

func TestWriteBody(t *testing.T) {
	body := []byte(`[{"id":1,"name":"Ada"}]`)

	var buf bytes.Buffer
	require.NoError(t, WriteBody(&buf, FormatYAML, body))
	assert.Contains(t, buf.String(), "- id: 1\n")
	assert.Contains(t, buf.String(), "name: Ada\n")

	buf.Reset()
	require.NoError(t, WriteBody(&buf, FormatRaw, body))
	assert.Equal(t, string(body)+"\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteBody(&buf, FormatJSON, []byte("plain text\n")))
	assert.Equal(t, "plain text\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteBody(&buf, FormatJSON, nil))
	assert.Empty(t, buf.String())
}
