package engine

import (
	"context"

	"github.com/screenware/reportflow/internal/core/domain"
)

// StructuringClient calls the language-model structuring service that turns
// free-text mammography reports into the fixed field set.
type StructuringClient struct {
	client *Client
}

func NewStructuringClient(client *Client) *StructuringClient {
	return &StructuringClient{client: client}
}

func (s *StructuringClient) Structure(ctx context.Context, text string) (domain.StructuredFields, error) {
	request := map[string]any{"text": text}

	var fields domain.StructuredFields
	if err := s.client.postJSON(ctx, "/api/v1/structure", request, &fields, "structure"); err != nil {
		return domain.StructuredFields{}, err
	}
	fillUnknownFields(&fields)
	return fields, nil
}

// fillUnknownFields normalizes absent values so downstream consumers can rely
// on the literal "unknown" instead of mixing empty strings and sentinels.
func fillUnknownFields(f *domain.StructuredFields) {
	for _, field := range []*string{
		&f.MedicalUnit, &f.FullReport, &f.LMP, &f.HormonalTherapy, &f.FamilyHistory,
		&f.Reason, &f.Observations, &f.Conclusion, &f.Recommendations,
		&f.BIRADS, &f.Age, &f.Children,
	} {
		if *field == "" {
			*field = "unknown"
		}
	}
}
