package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/screenware/reportflow/internal/core/domain"
	"github.com/screenware/reportflow/internal/core/ports"
)

// ExtractionClient sends the stored raw file to the extraction service. It is
// the remote alternative to the bundled extractor and is selected by
// configuration.
type ExtractionClient struct {
	client  *Client
	storage ports.ObjectStorage
}

func NewExtractionClient(client *Client, storage ports.ObjectStorage) *ExtractionClient {
	return &ExtractionClient{client: client, storage: storage}
}

func (e *ExtractionClient) Extract(ctx context.Context, doc *domain.Document) (domain.ExtractedText, error) {
	file, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("open stored file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("read stored file: %w", err)
	}

	request := map[string]any{
		"filename":     doc.OriginalFilename,
		"content_type": doc.ContentType,
		"content":      base64.StdEncoding.EncodeToString(raw),
	}
	var response struct {
		Text      string `json:"text"`
		PageCount int    `json:"page_count"`
	}
	if err := e.client.postJSON(ctx, "/api/v1/extract", request, &response, "extract"); err != nil {
		return domain.ExtractedText{}, err
	}
	return domain.ExtractedText{
		Text:      response.Text,
		PageCount: response.PageCount,
		Engine:    "remote",
	}, nil
}
