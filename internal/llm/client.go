package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"google.golang.org/api/option"
	unifiedgenai "google.golang.org/genai"

	"github.com/snappy-loop/snippets/internal/config"
)

// maxGeminiResponseLogBytes is the max length of a Gemini response body to log in full (to avoid huge logs).
const maxGeminiResponseLogBytes = 8192

// httpClientForEndpoint returns an http.Client that rewrites request URLs to the given base endpoint (e.g. http://host.docker.internal:31300/gemini).
func httpClientForEndpoint(baseEndpoint string) *http.Client {
	base, err := url.Parse(baseEndpoint)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", baseEndpoint).Msg("Invalid GEMINI_API_ENDPOINT, using default")
		return nil
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &http.Client{
		Transport: &endpointRoundTripper{base: base, next: http.DefaultTransport},
	}
}

// endpointRoundTripper rewrites request URLs to a custom base (scheme, host, path prefix).
type endpointRoundTripper struct {
	base *url.URL
	next http.RoundTripper
}

func (e *endpointRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = e.base.Scheme
	req2.URL.Host = e.base.Host
	req2.URL.Path = path.Join(e.base.Path, strings.TrimPrefix(req.URL.Path, "/"))
	if req.URL.RawQuery != "" {
		req2.URL.RawQuery = req.URL.RawQuery
	}
	return e.next.RoundTrip(req2)
}

// logGeminiResponse logs Gemini response text, truncating if over maxGeminiResponseLogBytes.
func logGeminiResponse(caller, raw string) {
	if len(raw) <= maxGeminiResponseLogBytes {
		log.Debug().Str("caller", caller).Str("gemini_response", raw).Msg("Gemini response")
		return
	}
	log.Debug().
		Str("caller", caller).
		Str("gemini_response", raw[:maxGeminiResponseLogBytes]+"... [truncated]").
		Int("gemini_response_len", len(raw)).
		Msg("Gemini response")
}

// Client wraps the Gemini APIs used by the pipeline: chat generation and embeddings through
// langchaingo, document extraction through generative-ai-go and speech through the unified SDK.
type Client struct {
	model          string
	embeddingModel string
	modelExtract   string
	modelTTS       string
	temperature    float64
	maxTokens      int
	callTimeout    time.Duration

	llm           llms.Model
	embedder      *googleai.GoogleAI
	genaiClient   *genai.Client        // document extraction
	unifiedClient *unifiedgenai.Client // TTS
}

// NewClient creates a new LLM client from configuration.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	opts := []googleai.Option{
		googleai.WithAPIKey(cfg.GeminiAPIKey),
		googleai.WithDefaultModel(cfg.GeminiModel),
		googleai.WithDefaultEmbeddingModel(cfg.GeminiEmbeddingModel),
	}
	if cfg.GeminiAPIEndpoint != "" {
		if hc := httpClientForEndpoint(cfg.GeminiAPIEndpoint); hc != nil {
			opts = append(opts, googleai.WithHTTPClient(hc))
		}
	}
	gai, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init googleai: %w", err)
	}

	genaiOpts := []option.ClientOption{option.WithAPIKey(cfg.GeminiAPIKey)}
	if cfg.GeminiAPIEndpoint != "" {
		genaiOpts = append(genaiOpts, option.WithEndpoint(cfg.GeminiAPIEndpoint))
	}
	genaiClient, err := genai.NewClient(ctx, genaiOpts...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize genai client, scanned PDF extraction disabled")
	}

	unifiedCfg := &unifiedgenai.ClientConfig{APIKey: cfg.GeminiAPIKey}
	if cfg.GeminiAPIEndpoint != "" {
		unifiedCfg.HTTPOptions = unifiedgenai.HTTPOptions{BaseURL: cfg.GeminiAPIEndpoint}
	}
	unifiedClient, err := unifiedgenai.NewClient(ctx, unifiedCfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize unified genai client, Gemini TTS disabled")
	}

	log.Info().
		Str("model", cfg.GeminiModel).
		Str("embedding_model", cfg.GeminiEmbeddingModel).
		Str("model_extract", cfg.GeminiModelExtract).
		Str("model_tts", cfg.GeminiModelTTS).
		Float64("temperature", cfg.LLMTemperature).
		Str("api_endpoint", cfg.GeminiAPIEndpoint).
		Bool("genai_client", genaiClient != nil).
		Bool("unified_tts", unifiedClient != nil).
		Msg("LLM client initialized")

	return &Client{
		model:          cfg.GeminiModel,
		embeddingModel: cfg.GeminiEmbeddingModel,
		modelExtract:   cfg.GeminiModelExtract,
		modelTTS:       cfg.GeminiModelTTS,
		temperature:    cfg.LLMTemperature,
		maxTokens:      cfg.LLMMaxTokens,
		callTimeout:    cfg.LLMCallTimeout,
		llm:            gai,
		embedder:       gai,
		genaiClient:    genaiClient,
		unifiedClient:  unifiedClient,
	}, nil
}

// EmbeddingModel returns the model used by CreateEmbedding.
func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}

// Close releases the genai client.
func (c *Client) Close() error {
	if c.genaiClient != nil {
		return c.genaiClient.Close()
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}
