package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	got, err := parseOptions([]string{"minify=true", "target=es2017", "indent=4", `list=["a"]`, "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"minify": true, "target": "es2017", "indent": float64(4), "list": []any{"a"}, "empty": "",
	}, got)

	_, err = parseOptions([]string{"novalue"})
	assert.Error(t, err)
	none, err := parseOptions(nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, "let a = 1;"))
	assert.Equal(t, "let a = 1;\n", buf.String())

	buf.Reset()
	require.NoError(t, printResult(&buf, map[string]any{"a": 1}))
	assert.JSONEq(t, `{"a":1}`, buf.String())
}

func TestCompileCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader("a: [1, 2]\n"))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", t.TempDir() + "/none.yml", "compile", "--from", "yml", "--to", "json", "-o", "indent="})
	require.NoError(t, rootCmd.Execute())
	assert.JSONEq(t, `{"a":[1,2]}`, out.String())
}
