package engine

import (
	"context"

	"github.com/screenware/reportflow/internal/core/domain"
)

// PredictionClient calls the risk model service. The first Predict after a
// model-service restart can block for the whole model load, which is why the
// pipeline runs it from the background worker only.
type PredictionClient struct {
	client *Client
}

func NewPredictionClient(client *Client) *PredictionClient {
	return &PredictionClient{client: client}
}

func (p *PredictionClient) Predict(ctx context.Context, fields domain.StructuredFields) (domain.PredictionOutput, error) {
	var response struct {
		PredictedBIRADS   string             `json:"predicted_birads"`
		ConfidenceScore   float64            `json:"confidence_score"`
		Probabilities     map[string]float64 `json:"probabilities"`
		ModelVersion      string             `json:"model_version"`
		ProcessingSeconds float64            `json:"processing_time_seconds"`
	}
	if err := p.client.postJSON(ctx, "/api/v1/predict", fields, &response, "predict"); err != nil {
		return domain.PredictionOutput{}, err
	}
	return domain.PredictionOutput{
		Label:          response.PredictedBIRADS,
		Confidence:     response.ConfidenceScore,
		Probabilities:  response.Probabilities,
		ModelVersion:   response.ModelVersion,
		ProcessingSecs: response.ProcessingSeconds,
	}, nil
}

func (p *PredictionClient) Ready(ctx context.Context) (bool, error) {
	var response struct {
		ModelLoaded bool `json:"model_loaded"`
	}
	if err := p.client.getJSON(ctx, "/api/v1/model/status", &response, "model.status"); err != nil {
		return false, err
	}
	return response.ModelLoaded, nil
}
