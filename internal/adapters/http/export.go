package httpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/screenware/reportflow/internal/core/domain"
)

const exportPageSize = 100

var exportHeaders = []string{
	"Document ID", "Filename", "Status", "Clinic", "Patient ID", "Submitter",
	"Submitted At", "BIRADS", "Confidence", "Risk Level", "Model Version",
	"Review Status", "Coordinator Notes",
}

// exportDocuments streams the filtered document list as an XLSX workbook, one
// row per document with the current prediction joined in.
func (rt *Router) exportDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := r.URL.Query()
	filter := domain.ListFilter{
		Status:      domain.DocumentStatus(query.Get("status")),
		SubmitterID: query.Get("submitter_id"),
		Page:        1,
		Limit:       exportPageSize,
	}

	docs, err := rt.collectDocuments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	book, err := rt.buildWorkbook(r.Context(), docs)
	if err != nil {
		writeError(w, err)
		return
	}
	defer book.Close()

	filename := "reports-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if _, err := book.WriteTo(w); err != nil {
		slog.Error("write export workbook", "error", err, "request_id", requestIDFromContext(r.Context()))
	}
}

func (rt *Router) collectDocuments(ctx context.Context, filter domain.ListFilter) ([]domain.Document, error) {
	var docs []domain.Document
	for {
		page, err := rt.reader.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		docs = append(docs, page.Documents...)
		if len(page.Documents) < filter.Limit || len(docs) >= page.Total {
			return docs, nil
		}
		filter.Page++
	}
}

func (rt *Router) buildWorkbook(ctx context.Context, docs []domain.Document) (*excelize.File, error) {
	book := excelize.NewFile()
	const sheet = "Reports"
	index, err := book.NewSheet(sheet)
	if err != nil {
		book.Close()
		return nil, err
	}
	book.SetActiveSheet(index)
	_ = book.DeleteSheet("Sheet1")

	if err := writeRow(book, sheet, 1, toCells(exportHeaders)); err != nil {
		book.Close()
		return nil, err
	}

	for i, doc := range docs {
		row := []any{
			doc.ID, doc.OriginalFilename, string(doc.Status), doc.ClinicName,
			doc.PatientID, doc.SubmitterID, doc.CreatedAt.UTC().Format(time.RFC3339),
			"", "", "", "", "", "",
		}
		if view, err := rt.reader.Get(ctx, doc.ID); err == nil && view.Prediction != nil {
			pred := view.Prediction
			row[7] = pred.Label
			row[8] = strconv.FormatFloat(pred.Confidence, 'f', 4, 64)
			row[9] = pred.RiskLevel
			row[10] = pred.ModelVersion
			row[11] = string(pred.ReviewStatus)
			row[12] = pred.CoordinatorNotes
		}
		if err := writeRow(book, sheet, i+2, row); err != nil {
			book.Close()
			return nil, err
		}
	}
	return book, nil
}

func writeRow(book *excelize.File, sheet string, row int, values []any) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("cell coordinates: %w", err)
		}
		if err := book.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}
	return nil
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
