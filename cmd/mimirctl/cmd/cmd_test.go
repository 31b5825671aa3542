package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const document = `
keys:
  - {name: verb, type: string, default: view}
  - {name: title, type: string, default: Default}
  - {name: count, type: int}
  - {name: a, type: string}
  - {name: b, type: string}
models:
  - name: base
    rules:
      - {key: title, match: {verb: view}, value: Hello!}
      - {key: title, match: {verb: edit}, value: Work it.}
      - {key: count, when: 'verb == "edit"', value: 2}
  - name: loop
    rules:
      - {key: a, from: b}
      - {key: b, from: a}
`

func writeDocument(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestCheck(t *testing.T) {
	t.Parallel()

	t.Run("Should summarise a valid document", func(t *testing.T) {
		t.Parallel()
		path := writeDocument(t, document)

		out, err := execute(t, "check", path)

		require.NoError(t, err)
		assert.Contains(t, out, "ok (5 keys, 2 models, 5 rules")
	})

	t.Run("Should fail on an invalid document", func(t *testing.T) {
		t.Parallel()
		path := writeDocument(t, "models: [{name: a, fallback: b}]\n")

		_, err := execute(t, "check", path)

		assert.ErrorContains(t, err, "unknown model")
	})

	t.Run("Should require a file", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "check")
		assert.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()

	path := writeDocument(t, document)

	t.Run("Should print resolved values as text", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "resolve", path, "--model", "base", "title", "verb")

		require.NoError(t, err)
		assert.Contains(t, out, `title = "Hello!" (rule from base)`)
		assert.Contains(t, out, `verb = "view" (default)`)
	})

	t.Run("Should apply typed overrides and print JSON", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "resolve", path, "-m", "base", "--set", "verb=edit", "--json", "title", "count")

		require.NoError(t, err)
		var got []resolvedKey
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "Work it.", got[0].Value)
		assert.EqualValues(t, 2, got[1].Value)
		assert.Equal(t, "rule", got[1].Source)
	})

	t.Run("Should reject an override of the wrong type", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "resolve", path, "-m", "base", "--set", "count=many")

		assert.ErrorContains(t, err, "--set count")
	})

	t.Run("Should reject a malformed override", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "resolve", path, "-m", "base", "--set", "count")

		assert.ErrorContains(t, err, "want key=value")
	})

	t.Run("Should reject an unknown model", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "resolve", path, "-m", "desktop")

		assert.ErrorContains(t, err, `model "desktop" not found (have base, loop)`)
	})

	t.Run("Should require the model flag", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "resolve", path)

		assert.ErrorContains(t, err, "model")
	})

	t.Run("Should report a recursion limit", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "resolve", path, "-m", "loop", "--max-depth", "8", "a")

		assert.ErrorContains(t, err, "resolve a")
	})
}

func TestPush_DryRun(t *testing.T) {
	t.Parallel()

	path := writeDocument(t, document)

	out, err := execute(t, "push", path, "--dry-run", "--key", "rules")

	require.NoError(t, err)
	assert.Contains(t, out, "would publish "+path+" to rules")
}

func TestPush_InvalidDocument(t *testing.T) {
	t.Parallel()

	path := writeDocument(t, "models: []\n")

	_, err := execute(t, "push", path, "--dry-run")

	assert.Error(t, err)
}
