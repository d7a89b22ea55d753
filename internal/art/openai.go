package art

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/framehub/artframe/internal/art/adapters"
)

// ErrAIDisabled is returned when no OpenAI key is configured.
var ErrAIDisabled = errors.New("ai generation not configured")

const openAIImageURL = "https://api.openai.com/v1/images/generations"

// AIGenerator turns a text prompt into source image bytes through the
// OpenAI images API. The API is just another unreliable external HTTP
// source; failures surface as upstream errors.
type AIGenerator struct {
	client *http.Client
	apiKey string
}

func NewAIGenerator(client *http.Client, apiKey string) *AIGenerator {
	return &AIGenerator{client: client, apiKey: apiKey}
}

func (g *AIGenerator) Enabled() bool { return g.apiKey != "" }

type imageGenRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageGenResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate produces one image for the prompt. The portrait panel wants tall
// output, so we ask for the closest supported size.
func (g *AIGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if !g.Enabled() {
		return nil, ErrAIDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	body, err := json.Marshal(imageGenRequest{
		Model:          "dall-e-3",
		Prompt:         prompt,
		N:              1,
		Size:           "1024x1792",
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIImageURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", adapters.ErrUpstream, err)
	}
	defer resp.Body.Close()

	var gen imageGenResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", adapters.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if gen.Error != nil {
			msg = gen.Error.Message
		}
		return nil, fmt.Errorf("%w: %s", adapters.ErrUpstream, msg)
	}
	if len(gen.Data) == 0 {
		return nil, fmt.Errorf("%w: empty generation response", adapters.ErrUpstream)
	}
	raw, err := base64.StdEncoding.DecodeString(gen.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: image payload: %v", adapters.ErrUpstream, err)
	}
	return raw, nil
}
