package pack

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string, order []string) {
	t.Helper()
	for _, name := range order {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(files[name]), 0644))
	}
}

func TestChecksum(t *testing.T) {
	files := map[string]string{
		"manifest.json":      `{"pack_id":"crm"}`,
		"assets/logo.svg":    "<svg/>",
		"assets/b/nested.js": "export {}",
	}

	dir := t.TempDir()
	writeFiles(t, dir, files, []string{"manifest.json", "assets/logo.svg", "assets/b/nested.js"})

	sum, size, err := Checksum(dir)
	require.NoError(t, err)
	assert.Len(t, sum, 64)
	assert.Equal(t, int64(len(`{"pack_id":"crm"}`)+len("<svg/>")+len("export {}")), size)

	again, _, err := Checksum(dir)
	require.NoError(t, err)
	assert.Equal(t, sum, again)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "logo.svg"), []byte("<svg />"), 0644))
	changed, _, err := Checksum(dir)
	require.NoError(t, err)
	assert.NotEqual(t, sum, changed)

	dirSize, err := DirSize(dir)
	require.NoError(t, err)
	assert.Equal(t, size+1, dirSize)
}

func TestChecksum_EmptyDirectory(t *testing.T) {
	sum, size, err := Checksum(t.TempDir())
	require.NoError(t, err)
	// SHA-256 of no input
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sum)
	assert.Zero(t, size)
}

func TestChecksum_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("checksum does not depend on file creation order", prop.ForAll(
		func(contents []string, seed int64) bool {
			files := make(map[string]string, len(contents))
			order := make([]string, 0, len(contents))
			for i, content := range contents {
				name := fmt.Sprintf("dir%d/file%02d.txt", i%3, i)
				files[name] = content
				order = append(order, name)
			}

			first := t.TempDir()
			writeFiles(t, first, files, order)

			shuffled := append([]string(nil), order...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			second := t.TempDir()
			writeFiles(t, second, files, shuffled)

			a, sizeA, errA := Checksum(first)
			b, sizeB, errB := Checksum(second)
			return errA == nil && errB == nil && a == b && sizeA == sizeB
		},
		gen.SliceOf(gen.AlphaString()),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
