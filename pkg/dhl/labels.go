package dhl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LabelPersister decodes base64 label payloads and writes them to disk.
type LabelPersister struct {
	dir  string
	opts Options
}

// NewLabelPersister creates a persister writing to dir by default. An empty
// dir means the system temp directory.
func NewLabelPersister(dir string, opts Options) *LabelPersister {
	return &LabelPersister{dir: dir, opts: opts.withDefaults()}
}

// Save decodes payload and writes it as filename inside directory (or the
// persister default when directory is empty). Only the base name of filename
// is used. It returns the absolute path written.
func (p *LabelPersister) Save(ctx context.Context, payload, filename, directory string) (string, error) {
	path, size, err := p.save(payload, filename, directory)
	if err != nil {
		p.opts.Logger.Ctx(ctx).Error("Failed to save DHL shipping label",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return "", err
	}

	p.opts.Logger.Ctx(ctx).Info("DHL shipping label saved",
		zap.String("file_path", path),
		zap.Int("size_bytes", size),
	)
	return path, nil
}

// SaveDecoded writes already decoded label bytes the same way Save does.
func (p *LabelPersister) SaveDecoded(ctx context.Context, content []byte, filename, directory string) (string, error) {
	path, err := p.write(content, filename, directory)
	if err != nil {
		p.opts.Logger.Ctx(ctx).Error("Failed to save DHL shipping label",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return "", err
	}

	p.opts.Logger.Ctx(ctx).Info("DHL shipping label saved",
		zap.String("file_path", path),
		zap.Int("size_bytes", len(content)),
	)
	return path, nil
}

func (p *LabelPersister) save(payload, filename, directory string) (string, int, error) {
	decoded, err := decodeLabel(payload)
	if err != nil {
		return "", 0, err
	}
	path, err := p.write(decoded, filename, directory)
	if err != nil {
		return "", 0, err
	}
	return path, len(decoded), nil
}

func (p *LabelPersister) write(content []byte, filename, directory string) (string, error) {
	dir := directory
	if dir == "" {
		dir = p.dir
	}
	if dir == "" {
		dir = os.TempDir()
	}

	if err := ensureDir(dir); err != nil {
		return "", err
	}

	name, err := sanitizeFilename(filename)
	if err != nil {
		return "", err
	}

	path, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return "", NewDownloadLabelError("failed to resolve label path").WithCause(err)
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", NewDownloadLabelError(fmt.Sprintf("failed to write label to file: %s", path)).WithCause(err)
	}
	return path, nil
}

// decodeLabel base64-decodes a carrier label payload.
func decodeLabel(payload string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, NewDownloadLabelError("failed to decode the shipping label, invalid base64 content").WithCause(err)
	}
	return decoded, nil
}

// ensureDir creates dir. A failed create is only an error if the directory
// still does not exist afterwards, since another writer may have created it.
func ensureDir(dir string) error {
	err := os.MkdirAll(dir, 0o755)
	if err == nil {
		return nil
	}
	if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
		return nil
	}
	return NewDownloadLabelError(fmt.Sprintf("failed to create directory: %s", dir)).WithCause(err)
}

// sanitizeFilename strips every directory component from name.
func sanitizeFilename(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	switch base {
	case "", ".", "..", "/":
		return "", NewDownloadLabelError(fmt.Sprintf("invalid label filename: %q", name)).WithCause(fs.ErrInvalid)
	}
	return base, nil
}

// ContentTypeForFormat maps a label format to its MIME type.
func ContentTypeForFormat(format string) string {
	switch strings.ToUpper(format) {
	case FormatPDF:
		return "application/pdf"
	case FormatPNG:
		return "image/png"
	case FormatZPL:
		return "application/zpl"
	default:
		return "application/octet-stream"
	}
}

// LabelFile is a persisted label opened for reading. Close removes the file,
// so it is single use.
type LabelFile struct {
	file        *os.File
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

func openLabelFile(path, filename, contentType string) (*LabelFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &LabelFile{
		file:        f,
		Path:        path,
		Filename:    filename,
		ContentType: contentType,
		Size:        info.Size(),
	}, nil
}

// Read reads label bytes.
func (l *LabelFile) Read(b []byte) (int, error) {
	return l.file.Read(b)
}

// ContentDisposition returns the inline disposition header value.
func (l *LabelFile) ContentDisposition() string {
	return fmt.Sprintf("inline; filename=%q", l.Filename)
}

// Close closes and deletes the label file.
func (l *LabelFile) Close() error {
	closeErr := l.file.Close()
	removeErr := os.Remove(l.Path)
	if errors.Is(removeErr, fs.ErrNotExist) {
		removeErr = nil
	}
	return errors.Join(closeErr, removeErr)
}
