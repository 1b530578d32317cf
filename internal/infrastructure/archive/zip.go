// Package archive unpacks batch submissions.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/screenware/reportflow/internal/core/domain"
)

// ZipExpander turns a zip upload into candidate files. Directories, hidden
// files and OS artifacts are filtered out and counted as rejected; a corrupt
// archive is an error for the whole batch.
type ZipExpander struct {
	allowedExtensions map[string]string
	maxEntryBytes     int64
}

func NewZipExpander(allowedExtensions map[string]string, maxEntryBytes int64) *ZipExpander {
	if maxEntryBytes <= 0 {
		maxEntryBytes = 10 << 20
	}
	return &ZipExpander{
		allowedExtensions: allowedExtensions,
		maxEntryBytes:     maxEntryBytes,
	}
}

func (z *ZipExpander) Expand(archive []byte) ([]domain.ArchiveEntry, int, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, 0, fmt.Errorf("open zip archive: %w", err)
	}

	var entries []domain.ArchiveEntry
	rejected := 0
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		name := path.Base(file.Name)
		contentType, ok := z.eligible(file.Name, name)
		if !ok {
			rejected++
			continue
		}

		data, err := readEntry(file, z.maxEntryBytes)
		if err != nil {
			return nil, 0, fmt.Errorf("read archive entry %s: %w", file.Name, err)
		}
		if int64(len(data)) > z.maxEntryBytes {
			rejected++
			continue
		}

		entries = append(entries, domain.ArchiveEntry{
			Filename:    name,
			ContentType: contentType,
			Data:        data,
		})
	}
	return entries, rejected, nil
}

func (z *ZipExpander) eligible(fullName, baseName string) (string, bool) {
	if strings.HasPrefix(fullName, "__MACOSX/") || strings.Contains(fullName, "/__MACOSX/") {
		return "", false
	}
	if strings.HasPrefix(baseName, ".") || baseName == "Thumbs.db" {
		return "", false
	}
	ext := strings.ToLower(path.Ext(baseName))
	contentType, ok := z.allowedExtensions[ext]
	if !ok {
		return "", false
	}
	return contentType, true
}

func readEntry(file *zip.File, limit int64) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, limit+1))
}
