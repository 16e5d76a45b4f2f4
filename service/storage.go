package service

import (
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/airbusgeo/geocube/interface/storage"
	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/mholt/archiver"
)

// Extension of a file
type Extension string

// Some supported extensions
const (
	NoExtension  Extension = ""
	ExtensionNC  Extension = "nc"
	ExtensionZIP Extension = "zip"
)

// ErrFileNotFound is an error returned by Fetch
type ErrFileNotFound struct {
	File string
}

func (e ErrFileNotFound) Error() string {
	return fmt.Sprintf("File not found: %s", e.File)
}

func isErrNotFound(err error) bool {
	var epath *os.PathError
	return errors.Is(err, gstorage.ErrObjectNotExist) ||
		(errors.As(err, &epath) && os.IsNotExist(epath))
}

// Archive is a service to mirror the fetched files into a storage
type Archive interface {
	// Save persists the local file under the relative path into the archive and returns its uri
	Save(ctx context.Context, localFile, relPath string) (string, error)
	// Fetch copies the file from the archive to localFile
	// Raise ErrFileNotFound
	Fetch(ctx context.Context, relPath, localFile string) error
}

// NewArchive creates the archive of the uri (currently supported: local, gs, s3)
func NewArchive(ctx context.Context, archiveURI string) (Archive, error) {
	if strings.HasPrefix(archiveURI, "s3://") {
		return NewS3Archive(ctx, archiveURI)
	}
	return NewStorageStrategy(ctx, archiveURI)
}

// StorageStrategy implements Archive using geocube.Strategy
type StorageStrategy struct {
	storage storage.Strategy
	uri     uri.DefaultUri
}

// NewStorageStrategy creates a new StorageStrategy
func NewStorageStrategy(ctx context.Context, storageURI string) (*StorageStrategy, error) {
	uri, err := uri.ParseUri(storageURI)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy.ParseURI: %w", err)
	}

	storageClient, err := uri.NewStorageStrategy(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy: %w", err)
	}

	return &StorageStrategy{storage: storageClient, uri: uri}, nil
}

// Save implements Archive
func (ss *StorageStrategy) Save(ctx context.Context, localFile, relPath string) (string, error) {
	f, err := os.Open(localFile)
	if err != nil {
		return "", fmt.Errorf("Save.Open: %w", err)
	}
	defer f.Close()

	dst := ss.getPath(relPath)
	if err := ss.storage.UploadFile(ctx, dst, f); err != nil {
		return "", fmt.Errorf("Save.UploadFile to %s: %w", dst, err)
	}
	return dst, nil
}

// Fetch implements Archive
func (ss *StorageStrategy) Fetch(ctx context.Context, relPath, localFile string) error {
	src := ss.getPath(relPath)
	if err := os.MkdirAll(filepath.Dir(localFile), 0755); err != nil {
		return fmt.Errorf("Fetch.MkdirAll: %w", err)
	}
	if err := ss.storage.DownloadToFile(ctx, src, localFile); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{src}
		}
		return fmt.Errorf("Fetch.DownloadToFile from %s: %w", src, err)
	}
	return nil
}

// getPath returns the uri of the relative path in the archive
func (ss *StorageStrategy) getPath(relPath string) string {
	uri := ss.uri.String()
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	return uri + path.Clean(filepath.ToSlash(relPath))
}

// SaveAsZip archives the files (relative to root) in one zip saved as zipName
func SaveAsZip(ctx context.Context, archive Archive, root string, files []string, zipName string) (string, error) {
	if len(files) == 0 {
		return "", nil
	}
	tmpDir, err := os.MkdirTemp("", "archive")
	if err != nil {
		return "", fmt.Errorf("SaveAsZip.MkdirTemp: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	sources := make([]string, len(files))
	for i, f := range files {
		sources[i] = filepath.Join(root, f)
	}
	dst := filepath.Join(tmpDir, WithExt(filepath.Base(zipName), ExtensionZIP))
	zipper := archiver.NewZip()
	zipper.CompressionLevel = flate.BestSpeed
	if err := zipper.Archive(sources, dst); err != nil {
		return "", fmt.Errorf("SaveAsZip.Archive: %w", err)
	}

	uri, err := archive.Save(ctx, dst, WithExt(zipName, ExtensionZIP))
	if err != nil {
		return "", fmt.Errorf("SaveAsZip.%w", err)
	}
	return uri, nil
}

// WithExt replaces the extension of the file
func WithExt(filePath string, ext Extension) string {
	filePath = strings.TrimSuffix(filePath, filepath.Ext(filePath))
	if ext != "" {
		return fmt.Sprintf("%s.%s", filePath, string(ext))
	}
	return filePath
}

// GetExt returns the extension of the file (without the dot)
func GetExt(filePath string) Extension {
	return Extension(strings.TrimPrefix(path.Ext(filePath), "."))
}
