package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"
)

func TestFragmentDecodesScalarOrMapping(t *testing.T) {
	doc := `
- Plain line for {district1}.
- text: Tagged line.
  hooks: [coffee]
  tags: [calm, community]
`
	var got []Fragment
	require.NoError(t, yaml.Unmarshal([]byte(doc), &got))
	require.Len(t, got, 2)
	assert.Equal(t, Fragment{Text: "Plain line for {district1}."}, got[0])
	assert.Equal(t, Fragment{Text: "Tagged line.", Hooks: []string{"coffee"}, Tags: []string{"calm", "community"}}, got[1])

	var bad []Fragment
	assert.Error(t, yaml.Unmarshal([]byte("- [not, a, fragment]\n"), &bad))
}

func TestBuiltinPoolsComplete(t *testing.T) {
	p := builtinPools()
	assert.NotEmpty(t, p.Mastheads)
	for _, key := range []string{outcomeKeyWin, outcomeKeyCrimewave, outcomeKeyUnsolved} {
		assert.NotEmpty(t, p.Kickers[key], key)
		assert.NotEmpty(t, p.Headlines[key], key)
		assert.NotEmpty(t, p.Openings[key], key)
		assert.NotEmpty(t, p.Closings[key], key)
		assert.NotEmpty(t, p.Blotter[key], key)
	}
	for _, band := range []string{bandExcellent, bandStrong, bandMixed, bandStruggling, bandDire} {
		assert.NotEmpty(t, p.Subheads[band], band)
	}
	for _, c := range categoryOrder {
		assert.NotEmpty(t, p.Focus[c], c)
		assert.NotEmpty(t, p.Setbacks[c], c)
		assert.NotEmpty(t, p.Commendations[c], c)
	}
	for _, v := range voiceOrder {
		assert.NotEmpty(t, p.Asides[v], v)
	}
	assert.NotEmpty(t, p.Crises)
	assert.GreaterOrEqual(t, len(p.Classifieds), maxClassifieds)
	assert.Empty(t, lintPlaceholders(p), "built-in pools only use known placeholders")
}

func TestLoadContentPoolsMergesInFileOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"b.yaml":     {Data: []byte("headlines:\n  win:\n    - Second pack headline\n")},
		"a.yml":      {Data: []byte("headlines:\n  win:\n    - First pack headline\nads:\n  - id: one\n    name: One\n")},
		"notes.txt":  {Data: []byte("ignored")},
		"sub/c.yaml": {Data: []byte("mastheads: [Nested]")},
	}
	p, err := loadContentPools(context.Background(), fsys)
	require.NoError(t, err)
	require.Len(t, p.Headlines[outcomeKeyWin], 2)
	assert.Equal(t, "First pack headline", p.Headlines[outcomeKeyWin][0].Text)
	assert.Equal(t, "Second pack headline", p.Headlines[outcomeKeyWin][1].Text)
	assert.Len(t, p.Ads, 1)
	assert.Empty(t, p.Mastheads, "subdirectories are not read")
}

func TestLoadContentPoolsErrors(t *testing.T) {
	_, err := loadContentPools(context.Background(), fstest.MapFS{"readme.md": {Data: []byte("x")}})
	assert.ErrorIs(t, err, errNoContentFiles)

	_, err = loadContentPools(context.Background(), fstest.MapFS{"broken.yaml": {Data: []byte("headlines: [unterminated")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestLoadPoolsOrBuiltin(t *testing.T) {
	ctx := context.Background()
	assert.Same(t, builtinPools(), loadPoolsOrBuiltin(ctx, ""))
	assert.Same(t, builtinPools(), loadPoolsOrBuiltin(ctx, filepath.Join(t.TempDir(), "missing")))

	dir := t.TempDir()
	pack := "headlines:\n  win:\n    - Pack headline for {bogus}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pack.yaml"), []byte(pack), 0o644))
	p := loadPoolsOrBuiltin(ctx, dir)
	require.Len(t, p.Headlines[outcomeKeyWin], 1)
	assert.Equal(t, "Pack headline for {bogus}", p.Headlines[outcomeKeyWin][0].Text)
	assert.Equal(t, builtinPools().Kickers[outcomeKeyWin], p.Kickers[outcomeKeyWin], "missing sections come from the built-in pools")
	assert.Equal(t, builtinPools().Headlines[outcomeKeyCrimewave], p.Headlines[outcomeKeyCrimewave])
	assert.NotEmpty(t, p.Ads)

	assert.Equal(t, []string{"headlines: {bogus}"}, lintPlaceholders(p))
}

func TestContentWatcherReloads(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pack.yaml"), []byte("headlines:\n  win:\n    - Before\n"), 0o644))

	store := newQuietStore()
	store.setPools(loadPoolsOrBuiltin(context.Background(), dir))
	require.Equal(t, "Before", store.pools().Headlines[outcomeKeyWin][0].Text)

	w, err := newContentWatcher(store, dir)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pack.yaml"), []byte("headlines:\n  win:\n    - After\n"), 0o644))
	require.Eventually(t, func() bool {
		return store.pools().Headlines[outcomeKeyWin][0].Text == "After"
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, w.Reloads(), 1)
}

func TestContentWatcherStopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	w, err := newContentWatcher(newQuietStore(), t.TempDir())
	require.NoError(t, err)
	w.Stop()
}
