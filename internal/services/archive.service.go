package services

import (
	"context"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cloudrams/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const MB = 1024 * 1024

// ArchiveService zips local folders into the agent cache
type ArchiveService struct {
	cacheDir     string
	maxZipBytes  int64
	safeBaseDirs []string
}

var archiveService *ArchiveService

var errSizeLimit = errors.New("size limit reached")

// InitArchiveService configures where archives go and which folders may be read
func InitArchiveService(cacheDir string, maxZipBytes int64, safeBaseDirs []string) *ArchiveService {
	archiveService = &ArchiveService{
		cacheDir:     cacheDir,
		maxZipBytes:  maxZipBytes,
		safeBaseDirs: safeBaseDirs,
	}
	return archiveService
}

// ZipFolder archives folderPath into <cache>/<name>_<8 hex>.zip
func ZipFolder(ctx context.Context, folderPath string) (*models.ZipFolderResponse, error) {
	if archiveService == nil {
		return nil, errors.New("archive service not initialized")
	}
	return archiveService.ZipFolder(ctx, folderPath)
}

// ZipFolder stops early and removes the partial archive once ctx is done.
// A symlinked or junction folder is followed; entries keep the name given.
func (a *ArchiveService) ZipFolder(ctx context.Context, folderPath string) (*models.ZipFolderResponse, error) {
	src, err := ExpandHome(folderPath)
	if err != nil {
		return nil, fail(ErrBadRequest, err, "Invalid folder path")
	}

	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return nil, fail(ErrNotFound, nil, "Folder not found: %s", src)
	}

	if !IsPathAllowed(src, a.safeBaseDirs) {
		return nil, fail(ErrPathNotAllowed, nil, "Folder not allowed by SAFE_BASE_DIRS policy")
	}

	root, err := filepath.EvalSymlinks(src)
	if err != nil {
		return nil, fail(ErrNotFound, err, "Folder not found: %s", src)
	}

	base := filepath.Base(filepath.Clean(src))
	zipPath := filepath.Join(a.cacheDir, base+"_"+shortID()+".zip")

	// Clean old file if exists
	if err := os.Remove(zipPath); err != nil && !os.IsNotExist(err) {
		return nil, fail(nil, err, "Zip failed")
	}

	files, err := a.writeZip(ctx, root, base, zipPath)
	if err != nil {
		os.Remove(zipPath)
		if errors.Is(err, errSizeLimit) {
			return nil, fail(ErrTooLarge, nil, "Zip too large (> %d MB)", a.maxZipBytes/MB)
		}
		if ctx.Err() != nil {
			return nil, fail(nil, ctx.Err(), "Zip cancelled")
		}
		return nil, fail(nil, err, "Zip failed")
	}

	stat, err := os.Stat(zipPath)
	if err != nil {
		return nil, fail(nil, err, "Zip failed")
	}

	logrus.Infof("Zipped %s (%d files) into %s, %s", src, files, zipPath, humanize.IBytes(uint64(stat.Size())))

	return &models.ZipFolderResponse{
		OK:      true,
		ZipPath: zipPath,
		ZipMB:   SizeMB(stat.Size()),
		Files:   files,
	}, nil
}

// writeZip stores every regular file under src as <base>/<relative path>,
// leaving out the archive being written
func (a *ArchiveService) writeZip(ctx context.Context, src, base, zipPath string) (int, error) {
	out, err := os.OpenFile(zipPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, errors.WithMessage(err, "create zip")
	}
	defer out.Close()

	self := zipPath
	if cacheDir, err := resolvePath(filepath.Dir(zipPath)); err == nil {
		self = filepath.Join(cacheDir, filepath.Base(zipPath))
	}

	counter := &limitedWriter{ctx: ctx, w: out, limit: a.maxZipBytes}
	zw := zip.NewWriter(counter)

	var (
		files int
		errs  error
	)
	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			errs = multierror.Append(errs, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || samePath(path, self) {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			errs = multierror.Append(errs, err)
			return nil
		}
		name := filepath.ToSlash(filepath.Join(base, rel))

		if err := addFile(zw, path, name); err != nil {
			if errors.Is(err, errSizeLimit) || ctx.Err() != nil {
				return err
			}
			errs = multierror.Append(errs, errors.WithMessagef(err, "add %s", path))
			return nil
		}
		files++
		return nil
	})
	if walkErr != nil {
		return files, walkErr
	}
	if errs != nil {
		return files, errs
	}

	if err := zw.Close(); err != nil {
		return files, errors.WithMessage(err, "finish zip")
	}
	return files, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// limitedWriter fails once more than limit bytes have been written or ctx is done
type limitedWriter struct {
	ctx     context.Context
	w       io.Writer
	written int64
	limit   int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if err := l.ctx.Err(); err != nil {
		return 0, err
	}
	if l.limit > 0 && l.written+int64(len(p)) > l.limit {
		return 0, errSizeLimit
	}
	n, err := l.w.Write(p)
	l.written += int64(n)
	return n, err
}

// IsPathAllowed reports whether p lies inside one of the safe base dirs.
// An empty list allows every path.
func IsPathAllowed(p string, safeBaseDirs []string) bool {
	if len(safeBaseDirs) == 0 {
		return true
	}

	resolved, err := resolvePath(p)
	if err != nil {
		return false
	}

	for _, base := range safeBaseDirs {
		resolvedBase, err := resolvePath(base)
		if err != nil {
			continue
		}
		if isWithin(resolved, resolvedBase) {
			return true
		}
	}
	return false
}

func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func isWithin(p, base string) bool {
	if runtime.GOOS == "windows" {
		p, base = strings.ToLower(p), strings.ToLower(base)
	}
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func samePath(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("empty path")
	}
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.WithMessage(err, "resolve home directory")
	}
	return filepath.Join(home, p[1:]), nil
}

// SizeMB converts bytes to megabytes rounded to two decimals
func SizeMB(size int64) float64 {
	return math.Round(float64(size)/MB*100) / 100
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
