// Package hashfetch implements single-file HTTP download with resume,
// SHA-1 verification, retry/backoff, and cancellation, per spec §4.2.
package hashfetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/outpost-dev/launchcore/src/layout"
)

// Kind classifies what a task's bytes are, for reporting and planning.
type Kind string

const (
	KindClient      Kind = "client"
	KindLibrary     Kind = "library"
	KindNative      Kind = "native"
	KindAssetIndex  Kind = "asset_index"
	KindAssetObject Kind = "asset_object"
)

// ErrorKind names the taxonomy from spec §7.
type ErrorKind string

const (
	ErrTransport     ErrorKind = "transport"
	ErrHTTPStatus    ErrorKind = "http_status"
	ErrSizeMismatch  ErrorKind = "size_mismatch"
	ErrHashMismatch  ErrorKind = "hash_mismatch"
	ErrCancelled     ErrorKind = "cancelled"
	ErrDiskFull      ErrorKind = "disk_full"
	ErrUnauthorized  ErrorKind = "unauthorized"
)

// FetchError carries the (kind, target, message) triple spec §7 requires
// every failure to surface.
type FetchError struct {
	Kind       ErrorKind
	Target     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("hashfetch: %s: %s (status %d)", e.Kind, e.Target, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("hashfetch: %s: %s: %v", e.Kind, e.Target, e.Err)
	}
	return fmt.Sprintf("hashfetch: %s: %s", e.Kind, e.Target)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsCancelled reports whether err is (or wraps) a Cancelled FetchError.
func IsCancelled(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == ErrCancelled
}

// ProgressSink receives byte-level progress for one task. Implementations
// must be safe for concurrent callers, since many fetches run in parallel
// (spec §5).
type ProgressSink interface {
	OnBytes(taskID string, delta int64)
	OnComplete(taskID string, err error)
}

// NopSink discards all progress.
type NopSink struct{}

func (NopSink) OnBytes(string, int64)    {}
func (NopSink) OnComplete(string, error) {}

// Config tunes retry/backoff and timeout behavior (spec §4.2, §5).
type Config struct {
	MaxRetries     int
	BaseDelay      time.Duration
	BackoffFactor  float64
	MaxDelay       time.Duration
	JitterFraction float64

	ConnectTimeout   time.Duration
	ReadInactivity   time.Duration
	TotalRequestTime time.Duration
}

// DefaultConfig matches the numbers named in spec §4.2 and §5.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       5,
		BaseDelay:        500 * time.Millisecond,
		BackoffFactor:    2,
		MaxDelay:         30 * time.Second,
		JitterFraction:   0.25,
		ConnectTimeout:   60 * time.Second,
		ReadInactivity:   60 * time.Second,
		TotalRequestTime: 120 * time.Second,
	}
}

// Fetcher downloads a single file at a time, resumably and with content
// verification. One Fetcher may be shared by many concurrent callers
// provided each operates on a distinct dest_path (enforced by the caller,
// per spec §4.2 "Concurrency").
type Fetcher struct {
	client *http.Client
	cfg    Config
	log    *zap.Logger
}

// New builds a Fetcher. client should already apply whatever
// proxy/transport settings the process wants; New clones client's
// *http.Transport (or http.DefaultTransport, whose Proxy is
// http.ProxyFromEnvironment, when client has no *http.Transport) to layer
// cfg's connect and read-inactivity timeouts on top. A cloned transport
// keeps its own Proxy setting, so one with Proxy unset uses no proxy.
func New(client *http.Client, cfg Config, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{client: withTimeouts(client, cfg), cfg: cfg, log: log}
}

// withTimeouts clones client's transport and applies cfg's connect and
// read-inactivity timeouts at the transport level. The overall per-attempt
// deadline is enforced separately in attempt() via context.WithTimeout using
// cfg.TotalRequestTime, so the returned client's own Timeout stays unset —
// a non-zero http.Client.Timeout would otherwise hard-cap every request,
// including large library/asset downloads that legitimately run past it.
func withTimeouts(client *http.Client, cfg Config) *http.Client {
	base, ok := client.Transport.(*http.Transport)
	if !ok || base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}
	transport := base.Clone()
	if cfg.ConnectTimeout > 0 {
		dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
		transport.DialContext = dialer.DialContext
	}
	if cfg.ReadInactivity > 0 {
		transport.ResponseHeaderTimeout = cfg.ReadInactivity
	}

	out := *client
	out.Transport = transport
	out.Timeout = 0
	return &out
}

// Fetch downloads sourceURL to destPath, verifying expectedSHA1/expectedSize
// when given, per the six steps of spec §4.2.
func (f *Fetcher) Fetch(ctx context.Context, taskID, sourceURL, destPath string, expectedSHA1 string, expectedSize int64, sink ProgressSink) error {
	if sink == nil {
		sink = NopSink{}
	}

	// Step 1: short-circuit if the destination already verifies.
	if expectedSHA1 != "" {
		if ok, _ := verifyFile(destPath, expectedSHA1); ok {
			sink.OnComplete(taskID, nil)
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		err = &FetchError{Kind: ErrDiskFull, Target: destPath, Err: err}
		sink.OnComplete(taskID, err)
		return err
	}

	partPath := layout.PartPath(destPath)

	var lastErr error
	attempt := 0
	hashRestarted := false

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = f.cfg.BaseDelay
	boff.Multiplier = f.cfg.BackoffFactor
	boff.MaxInterval = f.cfg.MaxDelay
	boff.RandomizationFactor = f.cfg.JitterFraction
	boff.MaxElapsedTime = 0 // bounded by MaxRetries instead

	for {
		if err := ctx.Err(); err != nil {
			cancelErr := &FetchError{Kind: ErrCancelled, Target: destPath, Err: err}
			sink.OnComplete(taskID, cancelErr)
			return cancelErr
		}

		err := f.attempt(ctx, taskID, sourceURL, destPath, partPath, expectedSHA1, expectedSize, sink)
		if err == nil {
			sink.OnComplete(taskID, nil)
			return nil
		}

		var fe *FetchError
		if errors.As(err, &fe) {
			switch fe.Kind {
			case ErrCancelled:
				sink.OnComplete(taskID, err)
				return err
			case ErrHashMismatch:
				// Step 5: hash mismatch gets exactly one clean restart.
				if !hashRestarted {
					hashRestarted = true
					os.Remove(partPath)
					lastErr = err
					continue
				}
				sink.OnComplete(taskID, err)
				return err
			case ErrSizeMismatch:
				sink.OnComplete(taskID, err)
				return err
			case ErrHTTPStatus:
				if fe.StatusCode < 500 && fe.StatusCode != http.StatusRequestTimeout && fe.StatusCode != http.StatusTooManyRequests {
					sink.OnComplete(taskID, err)
					return err
				}
			case ErrUnauthorized, ErrDiskFull:
				sink.OnComplete(taskID, err)
				return err
			}
		}

		lastErr = err
		attempt++
		if attempt > f.cfg.MaxRetries {
			sink.OnComplete(taskID, lastErr)
			return lastErr
		}

		delay := boff.NextBackOff()
		f.log.Debug("retrying fetch", zap.String("url", sourceURL), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			cancelErr := &FetchError{Kind: ErrCancelled, Target: destPath, Err: ctx.Err()}
			sink.OnComplete(taskID, cancelErr)
			return cancelErr
		}
	}
}

// attempt performs one GET-and-stream pass, honoring an existing .part file
// by issuing a ranged request.
func (f *Fetcher) attempt(ctx context.Context, taskID, sourceURL, destPath, partPath, expectedSHA1 string, expectedSize int64, sink ProgressSink) error {
	var resumeFrom int64
	if info, err := os.Stat(partPath); err == nil {
		resumeFrom = info.Size()
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.TotalRequestTime)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return &FetchError{Kind: ErrTransport, Target: sourceURL, Err: err}
	}
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &FetchError{Kind: ErrTransport, Target: sourceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &FetchError{Kind: ErrUnauthorized, Target: sourceURL, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return &FetchError{Kind: ErrHTTPStatus, Target: sourceURL, StatusCode: resp.StatusCode}
	}

	flags := os.O_CREATE | os.O_WRONLY
	honoredRange := resumeFrom > 0 && resp.StatusCode == http.StatusPartialContent
	if honoredRange {
		flags |= os.O_APPEND
	} else {
		// Server ignored Range (or there was nothing to resume): start clean.
		flags |= os.O_TRUNC
		resumeFrom = 0
	}

	out, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return &FetchError{Kind: ErrDiskFull, Target: partPath, Err: err}
	}
	defer out.Close()

	digest := sha1.New()
	if honoredRange {
		if err := rehashExisting(partPath, digest, resumeFrom); err != nil {
			out.Close()
			os.Remove(partPath)
			return &FetchError{Kind: ErrTransport, Target: partPath, Err: err}
		}
	}

	written, err := copyWithProgress(ctx, out, digest, resp.Body, taskID, sink)
	total := resumeFrom + written
	if err != nil {
		if ctx.Err() != nil {
			return &FetchError{Kind: ErrCancelled, Target: destPath, Err: ctx.Err()}
		}
		return &FetchError{Kind: ErrTransport, Target: sourceURL, Err: err}
	}

	if expectedSize > 0 && total != expectedSize {
		return &FetchError{Kind: ErrSizeMismatch, Target: destPath, Err: fmt.Errorf("got %d bytes, expected %d", total, expectedSize)}
	}

	if expectedSHA1 != "" {
		sum := hex.EncodeToString(digest.Sum(nil))
		if sum != expectedSHA1 {
			return &FetchError{Kind: ErrHashMismatch, Target: destPath, Err: fmt.Errorf("got sha1 %s, expected %s", sum, expectedSHA1)}
		}
	}

	out.Close()
	if err := os.Rename(partPath, destPath); err != nil {
		return &FetchError{Kind: ErrDiskFull, Target: destPath, Err: err}
	}
	return nil
}

func copyWithProgress(ctx context.Context, out io.Writer, digest io.Writer, body io.Reader, taskID string, sink ProgressSink) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return total, werr
			}
			digest.Write(buf[:n])
			total += int64(n)
			sink.OnBytes(taskID, int64(n))
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}

// rehashExisting feeds the bytes already on disk back into digest so a
// resumed download's final hash covers the whole file, not just the
// resumed tail.
func rehashExisting(path string, digest io.Writer, n int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.CopyN(digest, f, n)
	if err == io.EOF {
		err = nil
	}
	return err
}

func verifyFile(path, expectedSHA1 string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	digest := sha1.New()
	if _, err := io.Copy(digest, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(digest.Sum(nil)) == expectedSHA1, nil
}

// VerifyPath reports whether the file at path matches expectedSHA1. A
// missing file verifies as false with no error.
func VerifyPath(path, expectedSHA1 string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return verifyFile(path, expectedSHA1)
}
