package elmo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidConfig indicates invalid client configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrModelLoad indicates the hosted model could not be reached or is not
	// servable.
	ErrModelLoad = errors.New("model load failed")

	// ErrInputShape indicates a malformed or empty token sequence.
	ErrInputShape = errors.New("invalid input shape")

	// ErrPredictFailed indicates a predict call failed.
	ErrPredictFailed = errors.New("predict failed")

	// ErrResource indicates the model server returned outputs that violate
	// the "tokens" signature contract.
	ErrResource = errors.New("model output violates signature contract")
)

// TokenOutputs holds the three named outputs of the "tokens" signature for a
// single-sequence batch. Shapes follow the serving contract: word_emb is
// [1, T, 512], the two layer outputs are [1, T, 1024].
type TokenOutputs struct {
	WordEmb      [][][]float32
	LSTMOutputs1 [][][]float32
	LSTMOutputs2 [][][]float32
}

// Client calls a hosted ELMo model over the TensorFlow Serving REST API.
type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a model client with the given configuration.
// Logger may be nil.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = DefaultBurst
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// modelStatusResponse is the GET /v1/models/{model} response body.
type modelStatusResponse struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

// Load verifies the model artifact is servable. It must succeed before any
// predict call; failure surfaces as ErrModelLoad.
func (c *Client) Load(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/models/%s", c.config.BaseURL, c.config.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: creating request: %v", ErrModelLoad, err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrModelLoad, resp.StatusCode, string(body))
	}

	var status modelStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("%w: decoding status: %v", ErrModelLoad, err)
	}

	for _, vs := range status.ModelVersionStatus {
		if vs.State == "AVAILABLE" {
			c.logger.Debug("model available",
				zap.String("model", c.config.Model),
				zap.String("version", vs.Version),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		}
	}
	return fmt.Errorf("%w: model %q has no AVAILABLE version", ErrModelLoad, c.config.Model)
}

// predictRequest is the :predict request body for the "tokens" signature.
type predictRequest struct {
	SignatureName string        `json:"signature_name"`
	Inputs        predictInputs `json:"inputs"`
}

type predictInputs struct {
	Tokens      [][]string `json:"tokens"`
	SequenceLen []int      `json:"sequence_len"`
}

// predictResponse is the :predict response body.
type predictResponse struct {
	Outputs struct {
		WordEmb      [][][]float32 `json:"word_emb"`
		LSTMOutputs1 [][][]float32 `json:"lstm_outputs1"`
		LSTMOutputs2 [][][]float32 `json:"lstm_outputs2"`
	} `json:"outputs"`
	Error string `json:"error"`
}

// PredictTokens submits one token sequence as a batch of size 1 and returns
// the three signature outputs. Empty sequences are rejected with
// ErrInputShape before any network traffic.
func (c *Client) PredictTokens(ctx context.Context, tokens []string) (*TokenOutputs, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: token sequence is empty", ErrInputShape)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	reqBody := predictRequest{
		SignatureName: "tokens",
		Inputs: predictInputs{
			Tokens:      [][]string{tokens},
			SequenceLen: []int{len(tokens)},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s:predict", c.config.BaseURL, c.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPredictFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrPredictFailed, resp.StatusCode, string(respBody))
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if pr.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrPredictFailed, pr.Error)
	}

	out := &TokenOutputs{
		WordEmb:      pr.Outputs.WordEmb,
		LSTMOutputs1: pr.Outputs.LSTMOutputs1,
		LSTMOutputs2: pr.Outputs.LSTMOutputs2,
	}
	if err := validateOutputs(out, len(tokens)); err != nil {
		return nil, err
	}
	return out, nil
}

// validateOutputs checks the three outputs against the signature contract for
// a batch of one sequence of length seqLen.
func validateOutputs(out *TokenOutputs, seqLen int) error {
	checks := []struct {
		name   string
		tensor [][][]float32
		dim    int
	}{
		{"word_emb", out.WordEmb, WordEmbDim},
		{"lstm_outputs1", out.LSTMOutputs1, LayerDim},
		{"lstm_outputs2", out.LSTMOutputs2, LayerDim},
	}
	for _, c := range checks {
		if len(c.tensor) != 1 {
			return fmt.Errorf("%w: %s batch size %d, want 1", ErrResource, c.name, len(c.tensor))
		}
		if len(c.tensor[0]) != seqLen {
			return fmt.Errorf("%w: %s time dimension %d, want %d", ErrResource, c.name, len(c.tensor[0]), seqLen)
		}
		for t, row := range c.tensor[0] {
			if len(row) != c.dim {
				return fmt.Errorf("%w: %s channel width %d at step %d, want %d", ErrResource, c.name, len(row), t, c.dim)
			}
		}
	}
	return nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
