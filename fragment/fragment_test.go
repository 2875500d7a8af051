package fragment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmora/runctl"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantBody string
		wantMeta Meta
	}{
		{
			name:     "no metadata",
			doc:      "Review the diff.\n",
			wantBody: "Review the diff.\n",
		},
		{
			name:     "metadata stripped",
			doc:      "---\nname: review\ndescription: Code review\ntags: [go, lint]\n---\nReview the diff.\n",
			wantBody: "Review the diff.\n",
			wantMeta: Meta{Name: "review", Description: "Code review", Tags: []string{"go", "lint"}},
		},
		{
			name:     "crlf markers",
			doc:      "---\r\nname: x\r\n---\r\nbody\r\n",
			wantBody: "body\r\n",
			wantMeta: Meta{Name: "x"},
		},
		{
			name:     "unclosed block is body",
			doc:      "---\nname: x\nbody\n",
			wantBody: "---\nname: x\nbody\n",
		},
		{
			name:     "marker not on first line",
			doc:      "intro\n---\nname: x\n---\nbody",
			wantBody: "intro\n---\nname: x\n---\nbody",
		},
		{
			name:     "later markers stay in body",
			doc:      "---\nname: x\n---\nbefore\n---\nafter\n",
			wantBody: "before\n---\nafter\n",
			wantMeta: Meta{Name: "x"},
		},
		{
			name:     "empty block at end of document",
			doc:      "---\n---",
			wantBody: "",
		},
		{
			name:     "malformed yaml still stripped",
			doc:      "---\n: [unbalanced\n---\nbody",
			wantBody: "body",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Parse("id", tt.doc)
			assert.Equal(t, "id", f.ID)
			assert.Equal(t, tt.wantBody, f.Body)
			assert.Equal(t, tt.wantMeta, f.Meta)
		})
	}
}

func TestLoader_Load(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, filepath.Join(first, "review", "SKILL.md"), "---\ndescription: dir form\n---\nreview body")
	writeFile(t, filepath.Join(first, "plan.md"), "plan body")
	writeFile(t, filepath.Join(second, "plan.md"), "shadowed")
	writeFile(t, filepath.Join(second, "docs.md"), "docs body")

	l := NewLoader(first, "", second)
	assert.Equal(t, []string{first, second}, l.Dirs())

	f, err := l.Load("review")
	require.NoError(t, err)
	assert.Equal(t, "review body", f.Body)
	assert.Equal(t, "dir form", f.Meta.Description)
	assert.Equal(t, filepath.Join(first, "review", "SKILL.md"), f.Path)

	f, err = l.Load("plan")
	require.NoError(t, err)
	assert.Equal(t, "plan body", f.Body, "earlier directory wins")

	f, err = l.Load("docs")
	require.NoError(t, err)
	assert.Equal(t, "docs body", f.Body)
}

func TestLoader_NotFound(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(t.TempDir(), "secret.md"), "outside")
	l := NewLoader(dir)

	for _, id := range []string{"missing", "", "../secret", "a/b", ".hidden", "x\x00y"} {
		t.Run(id, func(t *testing.T) {
			_, err := l.Load(id)
			require.ErrorIs(t, err, runctl.ErrNotFound)
		})
	}
}

func TestLoader_LoadAllPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "A")
	writeFile(t, filepath.Join(dir, "b.md"), "B")

	got, err := NewLoader(dir).LoadAll([]string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	_, err = NewLoader(dir).LoadAll([]string{"a", "nope"})
	require.ErrorIs(t, err, runctl.ErrNotFound)
}

func TestLoader_List(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, filepath.Join(first, "zeta", "SKILL.md"), "---\ndescription: last\n---\nz")
	writeFile(t, filepath.Join(first, "alpha.md"), "a")
	writeFile(t, filepath.Join(first, "notes.txt"), "ignored")
	require.NoError(t, os.MkdirAll(filepath.Join(first, "empty"), 0o755))
	writeFile(t, filepath.Join(second, "alpha.md"), "shadowed")
	writeFile(t, filepath.Join(second, "beta.md"), "b")

	got, err := NewLoader(first, second, filepath.Join(t.TempDir(), "missing")).List()
	require.NoError(t, err)

	var ids []string
	for _, f := range got {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, ids)
	assert.Equal(t, "a", got[0].Body)
	assert.Equal(t, "last", got[2].Meta.Description)
}
