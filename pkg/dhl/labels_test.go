package dhl_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/dhlparcel/pkg/dhl"
)

func TestLabelPersister_Save(t *testing.T) {
	dir := t.TempDir()
	persister := dhl.NewLabelPersister(dir, dhl.Options{})
	content := []byte("%PDF-1.4 label")

	path, err := persister.Save(context.Background(), base64.StdEncoding.EncodeToString(content), "SHIP1.pdf", "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "SHIP1.pdf"), path)
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, written)
}

func TestLabelPersister_SaveStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	persister := dhl.NewLabelPersister("", dhl.Options{})
	payload := base64.StdEncoding.EncodeToString([]byte("x"))

	tests := []struct {
		filename string
		want     string
	}{
		{"../../etc/passwd", "passwd"},
		{"/abs/path/label.png", "label.png"},
		{`..\..\windows\label.zpl`, "label.zpl"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			path, err := persister.Save(context.Background(), payload, tt.filename, dir)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.want), path)
			assert.FileExists(t, path)
		})
	}
}

func TestLabelPersister_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "labels")
	persister := dhl.NewLabelPersister(dir, dhl.Options{})

	path, err := persister.Save(context.Background(), base64.StdEncoding.EncodeToString([]byte("x")), "a.pdf", "")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(dir, "a.pdf"), path)
}

func TestLabelPersister_Errors(t *testing.T) {
	dir := t.TempDir()
	persister := dhl.NewLabelPersister(dir, dhl.Options{})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := persister.Save(context.Background(), "not base64!!", "a.pdf", "")
		assert.ErrorIs(t, err, dhl.ErrDownloadLabel)
		assert.Contains(t, err.Error(), "invalid base64 content")
	})

	t.Run("filename without base", func(t *testing.T) {
		_, err := persister.Save(context.Background(), base64.StdEncoding.EncodeToString([]byte("x")), "..", "")
		assert.ErrorIs(t, err, dhl.ErrDownloadLabel)
	})

	t.Run("directory is a file", func(t *testing.T) {
		file := filepath.Join(dir, "occupied")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		_, err := persister.Save(context.Background(), base64.StdEncoding.EncodeToString([]byte("x")), "a.pdf", file)
		assert.ErrorIs(t, err, dhl.ErrDownloadLabel)
		assert.Contains(t, err.Error(), "failed to create directory")
	})
}

func TestContentTypeForFormat(t *testing.T) {
	assert.Equal(t, "application/pdf", dhl.ContentTypeForFormat("PDF"))
	assert.Equal(t, "application/pdf", dhl.ContentTypeForFormat("pdf"))
	assert.Equal(t, "image/png", dhl.ContentTypeForFormat("PNG"))
	assert.Equal(t, "application/zpl", dhl.ContentTypeForFormat("ZPL"))
	assert.Equal(t, "application/octet-stream", dhl.ContentTypeForFormat("EPL"))
}

func TestLabelPersister_SaveDecoded(t *testing.T) {
	dir := t.TempDir()
	persister := dhl.NewLabelPersister(dir, dhl.Options{})

	path, err := persister.SaveDecoded(context.Background(), []byte("^XA^XZ"), "../SHIP1.zpl", "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "SHIP1.zpl"), path)
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("^XA^XZ"), written)
}
