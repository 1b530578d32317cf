package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/screenware/reportflow/internal/core/domain"
)

func TestStructureFillsUnknownFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/structure" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"birads":"2","conclusion":"benign findings"}`))
	}))
	defer server.Close()

	client := NewStructuringClient(NewClient(server.URL, 0, nil))
	fields, err := client.Structure(context.Background(), "report text")
	if err != nil {
		t.Fatalf("Structure() error = %v", err)
	}
	if fields.BIRADS != "2" || fields.Conclusion != "benign findings" {
		t.Fatalf("returned fields lost: %+v", fields)
	}
	if fields.Age != "unknown" || fields.FamilyHistory != "unknown" {
		t.Fatalf("absent fields not normalized: %+v", fields)
	}
}

func TestStructureIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewStructuringClient(NewClient(server.URL, 0, nil))
	_, err := client.Structure(context.Background(), "report text")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("bad gateway should be temporary, got %v", err)
	}
}

func TestPredictMapsResponseFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/predict" {
			http.NotFound(w, r)
			return
		}
		var fields domain.StructuredFields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"predicted_birads": "4",
			"confidence_score": 0.82,
			"probabilities": {"4": 0.82, "2": 0.18},
			"model_version": "v3",
			"processing_time_seconds": 1.4
		}`))
	}))
	defer server.Close()

	client := NewPredictionClient(NewClient(server.URL, 0, nil))
	out, err := client.Predict(context.Background(), domain.StructuredFields{BIRADS: "unknown"})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if out.Label != "4" || out.Confidence != 0.82 || out.ModelVersion != "v3" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if out.Probabilities["2"] != 0.18 {
		t.Fatalf("probabilities lost: %+v", out.Probabilities)
	}
}

func TestReadyReportsModelState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/model/status" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"model_loaded": false}`))
	}))
	defer server.Close()

	client := NewPredictionClient(NewClient(server.URL, 0, nil))
	ready, err := client.Ready(context.Background())
	if err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
	if ready {
		t.Fatalf("expected model not loaded")
	}
}

func TestClientRejectsNonRetryableStatusWithoutTemporaryWrap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewPredictionClient(NewClient(server.URL, 0, nil))
	_, err := client.Predict(context.Background(), domain.StructuredFields{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("422 must not be temporary, got %v", err)
	}
}
