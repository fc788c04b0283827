package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"notebook/internal/domain"
)

type fingerprintInput struct {
	Text             string            `json:"text"`
	OutputType       string            `json:"output_type"`
	Resources        []domain.Resource `json:"resources"`
	Customization    map[string]any    `json:"customization"`
	IncludeCitations bool              `json:"include_citations"`
}

// Fingerprint identifies a request by content so identical requests can be
// served from a previously completed job. Map keys are encoded in sorted
// order, so the result is stable.
func Fingerprint(req domain.GenerationRequest) (string, error) {
	in := fingerprintInput{
		Text:             strings.TrimSpace(req.Text),
		OutputType:       string(req.OutputType),
		Resources:        make([]domain.Resource, 0, len(req.Resources)),
		Customization:    req.Customization,
		IncludeCitations: req.IncludeCitations,
	}
	if len(in.Customization) == 0 {
		in.Customization = nil
	}
	for _, res := range req.Resources {
		in.Resources = append(in.Resources, domain.Resource{Content: strings.TrimSpace(res.Content), Type: res.Type})
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("generation: fingerprint: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(raw)), nil
}
