package services

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloudrams/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultContentType    = "application/zip"
	downloadChunkSize     = 256 * 1024
	upstreamSnippetLength = 500
	progressInterval      = 250 * time.Millisecond
)

// ProgressSink receives transfer progress; the websocket hub implements it
type ProgressSink interface {
	PublishProgress(models.TransferProgress)
}

// TransferConfig holds the limits and retry policy for uploads and downloads
type TransferConfig struct {
	DownloadsDir     string
	MaxDownloadBytes int64
	Timeout          time.Duration
	Retries          int
	RetryWaitMin     time.Duration
	RetryWaitMax     time.Duration
}

// TransferService moves files between the local disk and presigned URLs
type TransferService struct {
	cfg    TransferConfig
	client *retryablehttp.Client
	sink   ProgressSink
	now    func() time.Time
}

var transferService *TransferService

// InitTransferService builds the shared transfer client. sink may be nil.
func InitTransferService(cfg TransferConfig, sink ProgressSink) *TransferService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Retries
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	// Keep the final upstream response so its status reaches the caller
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = retryLogger{entry: logrus.WithField("component", "transfer")}

	transferService = &TransferService{
		cfg:    cfg,
		client: client,
		sink:   sink,
		now:    time.Now,
	}
	return transferService
}

// Upload streams a local file to a presigned PUT URL
func Upload(ctx context.Context, req models.UploadToURLRequest) (*models.UploadToURLResponse, error) {
	if transferService == nil {
		return nil, errors.New("transfer service not initialized")
	}
	return transferService.Upload(ctx, req)
}

// Download saves a remote file into the downloads directory
func Download(ctx context.Context, req models.DownloadFromURLRequest) (*models.DownloadFromURLResponse, error) {
	if transferService == nil {
		return nil, errors.New("transfer service not initialized")
	}
	return transferService.Download(ctx, req)
}

func (t *TransferService) Upload(ctx context.Context, req models.UploadToURLRequest) (*models.UploadToURLResponse, error) {
	path, err := ExpandHome(req.FilePath)
	if err != nil {
		return nil, fail(ErrBadRequest, err, "Invalid file path")
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fail(ErrNotFound, nil, "File not found: %s", path)
	}
	if err := CheckPresignedURL(req.PutURL, t.now()); err != nil {
		return nil, err
	}

	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	size := info.Size()
	progress := t.newProgress("upload", path, size)

	// S3 presigned PUTs reject chunked bodies, so the length is always explicit
	var body interface{}
	if size > 0 {
		body = retryablehttp.ReaderFunc(func() (io.Reader, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			progress.reset()
			return &progressReader{file: f, size: size, progress: progress}, nil
		})
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, req.PutURL, body)
	if err != nil {
		return nil, fail(nil, err, "Upload failed")
	}
	httpReq.ContentLength = size
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		progress.finish(err)
		return nil, fail(nil, err, "Upload failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, upstreamSnippetLength))
		err := fail(ErrUpstreamStatus, nil, "Upload failed: %d %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		progress.finish(err)
		return nil, err
	}

	progress.finish(nil)
	logrus.Infof("Uploaded %s (%s) with status %d", path, humanize.IBytes(uint64(size)), resp.StatusCode)

	return &models.UploadToURLResponse{
		OK:         true,
		StatusCode: resp.StatusCode,
		Bytes:      size,
	}, nil
}

func (t *TransferService) Download(ctx context.Context, req models.DownloadFromURLRequest) (*models.DownloadFromURLResponse, error) {
	if err := CheckPresignedURL(req.URL, t.now()); err != nil {
		return nil, err
	}

	name := SafeFilename(req.Filename)
	if name == "" {
		name = "download_" + shortID()
	}
	outPath := filepath.Join(t.cfg.DownloadsDir, name)

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fail(nil, err, "Download error")
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fail(nil, err, "Download error")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fail(ErrUpstreamStatus, nil, "Download failed: %d", resp.StatusCode)
	}

	limit := t.cfg.MaxDownloadBytes
	tooLarge := fail(ErrTooLarge, nil, "Download too large (> %d MB)", limit/MB)
	if limit > 0 && resp.ContentLength > limit {
		return nil, tooLarge
	}

	progress := t.newProgress("download", outPath, resp.ContentLength)
	written, err := t.saveBody(resp.Body, outPath, progress)
	if err != nil {
		if errors.Is(err, errSizeLimit) {
			err = tooLarge
		} else {
			err = fail(nil, err, "Download error")
		}
		progress.finish(err)
		return nil, err
	}

	progress.finish(nil)
	logrus.Infof("Downloaded %s (%s)", outPath, humanize.IBytes(uint64(written)))

	return &models.DownloadFromURLResponse{
		OK:      true,
		SavedTo: outPath,
		SizeMB:  SizeMB(written),
	}, nil
}

// saveBody writes into a .part file and renames it once complete. The
// partial file is removed on any failure.
func (t *TransferService) saveBody(body io.Reader, outPath string, progress *transferProgress) (int64, error) {
	partPath := outPath + ".part"
	f, err := os.Create(partPath)
	if err != nil {
		return 0, errors.WithMessage(err, "create download file")
	}

	dst := &limitedWriter{w: f, limit: t.cfg.MaxDownloadBytes}
	buf := make([]byte, downloadChunkSize)
	var written int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				f.Close()
				os.Remove(partPath)
				return written, err
			}
			written += int64(n)
			progress.add(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			os.Remove(partPath)
			return written, readErr
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return written, err
	}
	if err := os.Rename(partPath, outPath); err != nil {
		os.Remove(partPath)
		return written, errors.WithMessage(err, "finalize download file")
	}
	return written, nil
}

// SafeFilename strips any directory components, accepting both separators.
// Trailing separators are dropped first, so "reports/" names "reports".
func SafeFilename(name string) string {
	name = strings.TrimRight(strings.TrimSpace(name), `/\`)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// transferProgress throttles progress events for a single transfer
type transferProgress struct {
	mu       sync.Mutex
	sink     ProgressSink
	state    models.TransferProgress
	lastSent time.Time
}

func (t *TransferService) newProgress(direction, path string, total int64) *transferProgress {
	if total <= 0 && direction == "download" {
		total = -1
	}
	return &transferProgress{
		sink: t.sink,
		state: models.TransferProgress{
			ID:        shortID(),
			Direction: direction,
			Path:      path,
			Total:     total,
		},
	}
}

func (p *transferProgress) reset() {
	p.mu.Lock()
	p.state.Bytes = 0
	p.mu.Unlock()
}

func (p *transferProgress) add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Bytes += n
	if p.sink == nil || time.Since(p.lastSent) < progressInterval {
		return
	}
	p.lastSent = time.Now()
	p.sink.PublishProgress(p.state)
}

func (p *transferProgress) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Done = true
	if err != nil {
		p.state.Error = err.Error()
	}
	if p.sink != nil {
		p.sink.PublishProgress(p.state)
	}
}

// progressReader is an upload body that reports bytes read
type progressReader struct {
	file     *os.File
	size     int64
	read     int64
	progress *transferProgress
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.file.Read(p)
	r.read += int64(n)
	r.progress.add(int64(n))
	return n, err
}

// Len lets retryablehttp learn the body length
func (r *progressReader) Len() int {
	return int(r.size - r.read)
}

func (r *progressReader) Close() error {
	return r.file.Close()
}

// retryLogger adapts logrus to retryablehttp.LeveledLogger
type retryLogger struct {
	entry *logrus.Entry
}

func (l retryLogger) with(keysAndValues []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return l.entry.WithFields(fields)
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Error(msg)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}
