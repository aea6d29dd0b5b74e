package recording

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oszuidwest/zwfm-audiorouter/internal/config"
	"github.com/oszuidwest/zwfm-audiorouter/internal/util"
)

// MaxUploadRetryAge is the maximum age for retrying failed uploads.
const MaxUploadRetryAge = 24 * time.Hour

// uploadQueueSize bounds the number of recordings waiting for upload.
const uploadQueueSize = 32

// uploadRequest represents a finished recording to be uploaded.
type uploadRequest struct {
	streamID  string
	localPath string
	fileSize  int64
}

// pendingUpload tracks a failed upload for retry.
type pendingUpload struct {
	request      uploadRequest
	firstAttempt time.Time
	retryCount   int
	lastError    string
}

// Uploader ships finished recordings to S3-compatible storage in the
// background. Failed uploads are retried with exponential backoff for
// up to MaxUploadRetryAge.
type Uploader struct {
	cfg     *config.Config
	queue   chan uploadRequest
	stopCh  chan struct{}
	wg      sync.WaitGroup
	backoff *util.Backoff

	mu    sync.Mutex
	retry []pendingUpload
}

// NewUploader creates an Uploader reading its settings from cfg.
func NewUploader(cfg *config.Config) *Uploader {
	return &Uploader{
		cfg:     cfg,
		queue:   make(chan uploadRequest, uploadQueueSize),
		stopCh:  make(chan struct{}),
		backoff: util.NewBackoff(30*time.Second, 15*time.Minute),
	}
}

// Start launches the upload worker.
func (u *Uploader) Start() {
	u.wg.Add(1)
	go u.run()
}

// Stop drains the queue and stops the worker.
func (u *Uploader) Stop() {
	close(u.stopCh)
	u.wg.Wait()
}

// Enqueue queues a finished recording for upload. Recordings are
// skipped when uploads are not configured, and dropped with a warning
// when the queue is full.
func (u *Uploader) Enqueue(streamID, localPath string) {
	snapshot := u.cfg.Snapshot()
	if !snapshot.HasUpload() {
		return
	}

	info, err := os.Stat(localPath)
	if err != nil {
		slog.Warn("failed to stat recording file", "stream_id", streamID, "path", localPath, "error", err)
		return
	}

	select {
	case u.queue <- uploadRequest{streamID: streamID, localPath: localPath, fileSize: info.Size()}:
		slog.Info("queued recording for upload", "stream_id", streamID, "file", filepath.Base(localPath))
	default:
		slog.Warn("upload queue full, dropping recording", "stream_id", streamID, "file", filepath.Base(localPath))
	}
}

// run processes the queue and retries failed uploads, draining
// remaining items on shutdown.
func (u *Uploader) run() {
	defer u.wg.Done()

	for {
		select {
		case <-u.stopCh:
			for {
				select {
				case req := <-u.queue:
					u.upload(req)
				default:
					return
				}
			}
		case req := <-u.queue:
			if u.upload(req) {
				u.backoff.Reset()
			}
		case <-time.After(u.backoff.Current()):
			u.processRetries()
		}
	}
}

// upload performs a single upload attempt and reports success.
func (u *Uploader) upload(req uploadRequest) bool {
	snapshot := u.cfg.Snapshot()
	if !snapshot.HasUpload() {
		slog.Warn("upload no longer configured, dropping recording", "file", filepath.Base(req.localPath))
		return true
	}

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		5*time.Minute,
		errors.New("s3 upload timeout"),
	)
	defer cancel()

	file, err := os.Open(req.localPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("recording no longer exists", "path", req.localPath)
			return true
		}
		u.addToRetryQueue(req, err.Error())
		return false
	}
	defer util.SafeCloseFunc(file, "recording file")()

	client := createS3Client(snapshot.Upload)
	key := objectKey(snapshot.Upload.Prefix, req.localPath)

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(snapshot.Upload.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(req.fileSize),
		ContentType:   aws.String("audio/wav"),
	})
	if err != nil {
		slog.Error("upload failed", "stream_id", req.streamID, "key", key, "error", err)
		u.addToRetryQueue(req, err.Error())
		return false
	}

	slog.Info("upload completed", "stream_id", req.streamID, "key", key)
	return true
}

// addToRetryQueue records a failed upload for a later attempt.
func (u *Uploader) addToRetryQueue(req uploadRequest, errMsg string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for i := range u.retry {
		if u.retry[i].request.localPath == req.localPath {
			u.retry[i].retryCount++
			u.retry[i].lastError = errMsg
			return
		}
	}

	u.retry = append(u.retry, pendingUpload{
		request:      req,
		firstAttempt: time.Now(),
		lastError:    errMsg,
	})

	slog.Info("upload queued for retry", "file", filepath.Base(req.localPath))
}

// processRetries attempts all pending uploads, abandoning those older
// than MaxUploadRetryAge.
func (u *Uploader) processRetries() {
	u.mu.Lock()
	if len(u.retry) == 0 {
		u.mu.Unlock()
		return
	}
	pending := u.retry
	u.retry = nil
	u.mu.Unlock()

	now := time.Now()
	allOK := true

	for i := range pending {
		p := &pending[i]

		if now.Sub(p.firstAttempt) > MaxUploadRetryAge {
			slog.Warn("upload abandoned",
				"file", filepath.Base(p.request.localPath),
				"attempts", p.retryCount+1,
				"last_error", p.lastError)
			continue
		}

		p.retryCount++
		slog.Info("retrying upload", "file", filepath.Base(p.request.localPath), "attempt", p.retryCount)
		if !u.upload(p.request) {
			allOK = false
		}
	}

	if allOK {
		u.backoff.Reset()
	} else {
		u.backoff.Next()
	}
}

// objectKey builds the S3 key for a recording: prefix/YYYY-MM-DD/filename.
func objectKey(prefix, localPath string) string {
	date := time.Now().Format(time.DateOnly)
	name := filepath.Base(localPath)
	if prefix == "" {
		return date + "/" + name
	}
	return prefix + "/" + date + "/" + name
}
