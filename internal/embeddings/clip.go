package embeddings

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// modelDimensions maps known CLIP-family models to their embedding
// dimensions. The collection must be sized to this value.
var modelDimensions = map[string]int{
	"openai/clip-vit-base-patch32":  512,
	"openai/clip-vit-base-patch16":  512,
	"openai/clip-vit-large-patch14": 768,
}

// Config holds configuration for the CLIP inference service client.
type Config struct {
	// BaseURL is the base URL of the inference server.
	BaseURL string

	// Model is the encoder model name.
	// Default: openai/clip-vit-base-patch32 (512 dimensions).
	Model string

	// APIKey authenticates against hosted endpoints. Optional.
	APIKey string

	// Timeout bounds a single embedding request. Default: 60s. The first
	// request may trigger a model load on the server side, which is why
	// the default is generous.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model != "" {
		if _, ok := modelDimensions[c.Model]; !ok {
			return fmt.Errorf("%w: unsupported model %q (supported: openai/clip-vit-base-patch32, openai/clip-vit-base-patch16, openai/clip-vit-large-patch14)", ErrInvalidConfig, c.Model)
		}
	}
	return nil
}

// Service is an Embedder backed by a CLIP inference server.
//
// The server exposes two endpoints: POST {base}/embed takes a JSON text
// input, POST {base}/embed/images takes a list of base64-encoded images.
// Both return a JSON array of float32 vectors. Whether inference runs on an
// accelerator is the server's concern and does not change output values
// beyond floating-point rounding.
type Service struct {
	config    Config
	dimension int
	client    *http.Client
	metrics   *Metrics
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if config.Model == "" {
		config.Model = "openai/clip-vit-base-patch32"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Service{
		config:    config,
		dimension: modelDimensions[config.Model],
		client:    &http.Client{Timeout: config.Timeout},
		metrics:   NewMetrics(),
	}, nil
}

// textRequest is the request body for the text embed endpoint.
type textRequest struct {
	Inputs string `json:"inputs"`
	Model  string `json:"model,omitempty"`
}

// imagesRequest is the request body for the image embed endpoint. Images
// travel base64-encoded since the wire format is JSON.
type imagesRequest struct {
	Images []string `json:"images"`
	Model  string   `json:"model,omitempty"`
}

// EmbedImages generates one vector per input image, order preserved.
func (s *Service) EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_images", time.Since(start), len(images), genErr)
	}()

	if len(images) == 0 {
		genErr = fmt.Errorf("%w: images cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	encoded := make([]string, len(images))
	for i, img := range images {
		if len(img) == 0 {
			genErr = fmt.Errorf("%w: image at index %d is empty", ErrEmptyInput, i)
			return nil, genErr
		}
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}

	vectors, err := s.post(ctx, "/embed/images", imagesRequest{Images: encoded, Model: s.config.Model})
	if err != nil {
		genErr = err
		return nil, genErr
	}

	if len(vectors) != len(images) {
		genErr = fmt.Errorf("%w: got %d vectors for %d images", ErrModelUnavailable, len(vectors), len(images))
		return nil, genErr
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			genErr = fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrModelUnavailable, i, len(v), s.dimension)
			return nil, genErr
		}
	}

	return vectors, nil
}

// EmbedText generates a single vector for a free-text query.
func (s *Service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_text", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := s.post(ctx, "/embed", textRequest{Inputs: text, Model: s.config.Model})
	if err != nil {
		genErr = err
		return nil, genErr
	}

	if len(vectors) == 0 {
		genErr = fmt.Errorf("%w: empty response", ErrModelUnavailable)
		return nil, genErr
	}
	if len(vectors[0]) != s.dimension {
		genErr = fmt.Errorf("%w: vector has dimension %d, want %d", ErrModelUnavailable, len(vectors[0]), s.dimension)
		return nil, genErr
	}

	return vectors[0], nil
}

// post sends a JSON request to the inference server and decodes the vector
// response.
func (s *Service) post(ctx context.Context, path string, payload any) ([][]float32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrModelUnavailable, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return vectors, nil
}

// Dimension returns the embedding dimension for the configured model.
func (s *Service) Dimension() int {
	return s.dimension
}

// Close is a no-op; the service holds no connection state beyond the
// standard HTTP client's pools.
func (s *Service) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Ensure Service implements Embedder.
var _ Embedder = (*Service)(nil)
