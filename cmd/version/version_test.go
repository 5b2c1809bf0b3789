package version

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintVersionInfo(t *testing.T) {
	versions := Versions{Version: "1.0.0", GolangVersion: "go1.23", BuildTime: "2024-05-01", BaseURL: "https://api.example.com"}

	var text bytes.Buffer
	require.NoError(t, printVersionInfo(&text, versions, false))
	assert.Equal(t, "Core Version: v1.0.0\nGo Version: go1.23\nBuild Time: 2024-05-01\nService: https://api.example.com\n", text.String())

	var raw bytes.Buffer
	require.NoError(t, printVersionInfo(&raw, versions, true))
	var decoded Versions
	require.NoError(t, json.Unmarshal(raw.Bytes(), &decoded))
	assert.Equal(t, versions, decoded)
}
