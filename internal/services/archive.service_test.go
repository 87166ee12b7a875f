package services

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, content, 0o644))
	}
}

func TestZipFolder(t *testing.T) {
	src := filepath.Join(t.TempDir(), "project")
	writeTree(t, src, map[string][]byte{
		"main.txt":        []byte("hello"),
		"sub/nested.txt":  []byte("nested"),
		"sub/deep/x.json": []byte(`{"a":1}`),
	})
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty"), 0o755))

	cache := t.TempDir()
	svc := InitArchiveService(cache, 10*MB, nil)

	resp, err := svc.ZipFolder(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, 3, resp.Files)
	assert.Equal(t, cache, filepath.Dir(resp.ZipPath))
	assert.Regexp(t, regexp.MustCompile(`^project_[0-9a-f]{8}\.zip$`), filepath.Base(resp.ZipPath))

	zr, err := zip.OpenReader(resp.ZipPath)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		assert.Equal(t, zip.Deflate, f.Method)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"project/main.txt", "project/sub/deep/x.json", "project/sub/nested.txt"}, names)
}

func TestZipFolderPackageLevel(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string][]byte{"a.txt": []byte("a")})
	InitArchiveService(t.TempDir(), MB, nil)

	resp, err := ZipFolder(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Files)
}

func TestZipFolderNotFound(t *testing.T) {
	svc := InitArchiveService(t.TempDir(), MB, nil)

	_, err := svc.ZipFolder(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "Folder not found: ")

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = svc.ZipFolder(context.Background(), file)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestZipFolderPolicy(t *testing.T) {
	allowed := t.TempDir()
	inside := filepath.Join(allowed, "inside")
	writeTree(t, inside, map[string][]byte{"a.txt": []byte("a")})
	outside := t.TempDir()
	writeTree(t, outside, map[string][]byte{"b.txt": []byte("b")})

	svc := InitArchiveService(t.TempDir(), MB, []string{allowed})

	_, err := svc.ZipFolder(context.Background(), inside)
	assert.NoError(t, err)

	_, err = svc.ZipFolder(context.Background(), outside)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPathNotAllowed))
	assert.Equal(t, "Folder not allowed by SAFE_BASE_DIRS policy", err.Error())
}

func TestZipFolderTooLarge(t *testing.T) {
	src := t.TempDir()
	noise := make([]byte, 256*1024)
	_, err := rand.Read(noise)
	require.NoError(t, err)
	writeTree(t, src, map[string][]byte{"noise.bin": noise})

	cache := t.TempDir()
	svc := InitArchiveService(cache, 64*1024, nil)

	_, err = svc.ZipFolder(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooLarge))
	assert.Equal(t, "Zip too large (> 0 MB)", err.Error())

	entries, err := os.ReadDir(cache)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial zip must be removed")
}

func TestZipFolderSymlinkedRoot(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	writeTree(t, target, map[string][]byte{"a.txt": []byte("a")})
	link := filepath.Join(dir, "proj")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	svc := InitArchiveService(t.TempDir(), MB, nil)
	resp, err := svc.ZipFolder(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Files)
	assert.Regexp(t, regexp.MustCompile(`^proj_[0-9a-f]{8}\.zip$`), filepath.Base(resp.ZipPath))

	zr, err := zip.OpenReader(resp.ZipPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "proj/a.txt", zr.File[0].Name)
}

func TestZipFolderContainingCache(t *testing.T) {
	dataDir := t.TempDir()
	writeTree(t, dataDir, map[string][]byte{"data.bin": []byte("payload")})
	cache := filepath.Join(dataDir, "cache")
	require.NoError(t, os.MkdirAll(cache, 0o755))

	svc := InitArchiveService(cache, MB, nil)
	resp, err := svc.ZipFolder(context.Background(), dataDir)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Files)

	zr, err := zip.OpenReader(resp.ZipPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, filepath.Base(dataDir)+"/data.bin", zr.File[0].Name)
}

func TestZipFolderCancelled(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string][]byte{"a.txt": []byte("a"), "b.txt": []byte("b")})
	cache := t.TempDir()
	svc := InitArchiveService(cache, MB, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ZipFolder(ctx, src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 500, StatusFor(err))

	entries, err := os.ReadDir(cache)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial zip must be removed")
}

func TestIsPathAllowed(t *testing.T) {
	base := t.TempDir()
	child := filepath.Join(base, "a", "b")
	require.NoError(t, os.MkdirAll(child, 0o755))
	sibling := base + "-sibling"
	require.NoError(t, os.MkdirAll(sibling, 0o755))
	defer os.RemoveAll(sibling)

	assert.True(t, IsPathAllowed(child, nil))
	assert.True(t, IsPathAllowed(base, []string{base}))
	assert.True(t, IsPathAllowed(child, []string{base}))
	assert.True(t, IsPathAllowed(filepath.Join(child, ".."), []string{base}))
	assert.False(t, IsPathAllowed(sibling, []string{base}))
	assert.False(t, IsPathAllowed(filepath.Join(base, "missing"), []string{base}))
	assert.False(t, IsPathAllowed(child, []string{filepath.Join(base, "missing")}))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/docs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "docs"), got)

	got, err = ExpandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	_, err = ExpandHome("   ")
	assert.Error(t, err)
}

func TestSizeMB(t *testing.T) {
	assert.Equal(t, 1.0, SizeMB(MB))
	assert.Equal(t, 0.5, SizeMB(MB/2))
	assert.Equal(t, 0.0, SizeMB(1))
}
