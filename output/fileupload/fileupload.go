package fileupload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/telemetry"
)

const (
	payloadExt = ".ndjson.gz"
	metaExt    = ".json"
)

// Config holds file upload settings
type Config struct {
	Directory string
	Prefix    string
}

// DefaultConfig returns the spool defaults
func DefaultConfig() Config {
	return Config{
		Directory: "/var/lib/vitalstream/spool",
		Prefix:    "batch",
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Directory == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: directory is required", errors.ErrMissingConfig),
			"fileupload.Config", "Validate", "directory check")
	}
	if c.Prefix == "" || strings.ContainsAny(c.Prefix, `/\`) {
		return errors.WrapInvalid(fmt.Errorf("%w: prefix must be a plain file name", errors.ErrInvalidConfig),
			"fileupload.Config", "Validate", "prefix check")
	}
	return nil
}

// Uploader writes batches into a directory
type Uploader struct {
	config Config
	logger *slog.Logger

	written atomic.Int64
}

// New creates the directory if needed and returns an uploader
func New(cfg Config, logger *slog.Logger) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default().With("component", "file-uploader")
	}
	if err := os.MkdirAll(cfg.Directory, 0o750); err != nil {
		return nil, errors.WrapFatal(err, "file-uploader", "New", "create directory")
	}
	return &Uploader{config: cfg, logger: logger}, nil
}

// Path returns the payload path for a batch id
func (u *Uploader) Path(id string) string {
	return filepath.Join(u.config.Directory, u.config.Prefix+"-"+id+payloadExt)
}

func (u *Uploader) metaPath(id string) string {
	return filepath.Join(u.config.Directory, u.config.Prefix+"-"+id+metaExt)
}

// Upload writes b atomically. Existing files for the same id are replaced.
func (u *Uploader) Upload(ctx context.Context, b telemetry.Batch) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "file-uploader", "Upload", "context check")
	}
	if !validID(b.ID) {
		return errors.WrapInvalid(fmt.Errorf("%w: batch id %q", errors.ErrInvalidData, b.ID),
			"file-uploader", "Upload", "id check")
	}

	meta, err := json.Marshal(b)
	if err != nil {
		return errors.WrapInvalid(err, "file-uploader", "Upload", "marshal metadata")
	}

	// Payload first: a metadata file always has its payload
	if err := u.writeAtomic(u.Path(b.ID), b.Payload); err != nil {
		return err
	}
	if err := u.writeAtomic(u.metaPath(b.ID), meta); err != nil {
		return err
	}

	u.written.Add(1)
	u.logger.Debug("Batch written", "batch_id", b.ID, "path", u.Path(b.ID), "bytes", b.Size())
	return nil
}

func (u *Uploader) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(u.config.Directory, "."+u.config.Prefix+"-*.tmp")
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrUploadFailed, err), "file-uploader", "Upload", "create temp file")
	}
	tmpName := tmp.Name()

	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrUploadFailed, err), "file-uploader", "Upload", "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrUploadFailed, err), "file-uploader", "Upload", "sync temp file")
	}
	if err := tmp.Chmod(0o640); err != nil {
		return errors.WrapTransient(err, "file-uploader", "Upload", "chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrUploadFailed, err), "file-uploader", "Upload", "close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrUploadFailed, err), "file-uploader", "Upload", "rename")
	}
	ok = true
	return nil
}

// Written returns the number of batches written
func (u *Uploader) Written() int64 {
	return u.written.Load()
}

// Pending returns the ids of spooled batches, oldest name first
func (u *Uploader) Pending() ([]string, error) {
	entries, err := os.ReadDir(u.config.Directory)
	if err != nil {
		return nil, errors.WrapTransient(err, "file-uploader", "Pending", "read directory")
	}

	prefix := u.config.Prefix + "-"
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, metaExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, prefix), metaExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reads a spooled batch back and verifies the payload decompresses
func (u *Uploader) Load(id string) (telemetry.Batch, error) {
	if !validID(id) {
		return telemetry.Batch{}, errors.WrapInvalid(fmt.Errorf("%w: batch id %q", errors.ErrInvalidData, id),
			"file-uploader", "Load", "id check")
	}

	meta, err := os.ReadFile(u.metaPath(id))
	if err != nil {
		return telemetry.Batch{}, errors.WrapTransient(err, "file-uploader", "Load", "read metadata")
	}
	var b telemetry.Batch
	if err := json.Unmarshal(meta, &b); err != nil {
		return telemetry.Batch{}, errors.WrapInvalid(err, "file-uploader", "Load", "parse metadata")
	}

	b.Payload, err = os.ReadFile(u.Path(id))
	if err != nil {
		return telemetry.Batch{}, errors.WrapTransient(err, "file-uploader", "Load", "read payload")
	}
	if b.Encoding == telemetry.EncodingGzip {
		if err := verifyGzip(b.Payload); err != nil {
			return telemetry.Batch{}, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrDataCorrupted, err),
				"file-uploader", "Load", "verify payload")
		}
	}
	return b, nil
}

// Remove deletes a spooled batch, typically after a successful replay
func (u *Uploader) Remove(id string) error {
	if !validID(id) {
		return errors.WrapInvalid(fmt.Errorf("%w: batch id %q", errors.ErrInvalidData, id),
			"file-uploader", "Remove", "id check")
	}
	for _, p := range []string{u.metaPath(id), u.Path(id)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.WrapTransient(err, "file-uploader", "Remove", "remove file")
		}
	}
	return nil
}

func verifyGzip(payload []byte) error {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer zr.Close()
	_, err = io.Copy(io.Discard, zr)
	return err
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
