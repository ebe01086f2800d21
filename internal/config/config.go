package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	// Server
	HTTPAddr string
	LogLevel string
	Timezone string

	// Database (optional; in-memory run store when empty)
	DatabaseURL string

	// Kafka (optional; runs execute in-process when no brokers are set)
	KafkaBrokers       []string
	KafkaConsumerGroup string
	KafkaTopicRuns     string
	KafkaTopicEvents   string

	// A running run whose claim is older than this is redelivered to a worker; 0 disables.
	RunClaimTimeout time.Duration

	// Artifact storage
	StorageBackend   string // local | s3
	OutputDir        string
	TempDir          string
	LegacyFixedPaths bool

	// S3
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3PublicURL string

	// Gemini API
	GeminiAPIKey         string
	GeminiAPIEndpoint    string // if set, overrides default Gemini API base URL
	GeminiModel          string
	GeminiEmbeddingModel string
	GeminiModelExtract   string // used for scanned PDFs without a text layer
	GeminiModelTTS       string
	GeminiTTSHostVoice   string
	GeminiTTSExpertVoice string
	LLMTemperature       float64
	LLMMaxTokens         int
	LLMCallTimeout       time.Duration

	// ElevenLabs
	ElevenLabsAPIKey          string
	ElevenLabsBaseURL         string
	ElevenLabsModel           string
	ElevenLabsOutputFormat    string
	ElevenLabsHostVoice       string
	ElevenLabsExpertVoice     string
	ElevenLabsStability       float64
	ElevenLabsSimilarityBoost float64
	ElevenLabsStyle           float64
	ElevenLabsSpeakerBoost    bool

	// TTS
	TTSProvider       string // elevenlabs | gemini
	TTSConcurrency    int
	TTSMaxAttempts    int
	TTSCallTimeout    time.Duration
	TTSRetryBaseDelay time.Duration
	TTSStripMarkdown  bool

	// Audio
	PodcastFormat string // mp3 | wav

	// Knowledge
	KnowledgeCatalogFile string
	KnowledgeDir         string
	KnowledgeChunkSize   int
	KnowledgeOverlap     int
	KnowledgeTopK        int

	// Webhook
	WebhookMaxRetries     int
	WebhookRetryBaseDelay time.Duration
	WebhookRetryMaxDelay  time.Duration
	WebhookTimeout        time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Timezone: getEnv("TZ", "UTC"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		KafkaBrokers:       getEnvList("KAFKA_BROKERS"),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "snippets-worker-main"),
		KafkaTopicRuns:     getEnv("KAFKA_TOPIC_RUNS", "snippets.runs.v1"),
		KafkaTopicEvents:   getEnv("KAFKA_TOPIC_EVENTS", "snippets.events.v1"),

		RunClaimTimeout: getEnvDuration("RUN_CLAIM_TIMEOUT", 30*time.Minute),

		StorageBackend:   getEnv("STORAGE_BACKEND", "local"),
		OutputDir:        getEnv("OUTPUT_DIR", "data"),
		TempDir:          getEnv("TEMP_DIR", os.TempDir()),
		LegacyFixedPaths: getEnvBool("LEGACY_FIXED_PATHS", false),

		S3Endpoint:  getEnv("S3_ENDPOINT", "http://localhost:9000"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    getEnv("S3_BUCKET", "snippets-assets"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3UseSSL:    getEnvBool("S3_USE_SSL", false),
		S3PublicURL: getEnv("S3_PUBLIC_URL", ""),

		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiAPIEndpoint:    getEnv("GEMINI_API_ENDPOINT", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiEmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		GeminiModelExtract:   getEnv("GEMINI_MODEL_EXTRACT", "gemini-2.0-flash"),
		GeminiModelTTS:       getEnv("GEMINI_MODEL_TTS", "gemini-2.5-flash-preview-tts"),
		GeminiTTSHostVoice:   getEnv("GEMINI_TTS_HOST_VOICE", "Puck"),
		GeminiTTSExpertVoice: getEnv("GEMINI_TTS_EXPERT_VOICE", "Aoede"),
		LLMTemperature:       getEnvFloat("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:         getEnvInt("LLM_MAX_TOKENS", 8192),
		LLMCallTimeout:       getEnvDuration("LLM_CALL_TIMEOUT", 3*time.Minute),

		ElevenLabsAPIKey:          getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsBaseURL:         getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
		ElevenLabsModel:           getEnv("ELEVENLABS_MODEL", "eleven_turbo_v2_5"),
		ElevenLabsOutputFormat:    getEnv("ELEVENLABS_OUTPUT_FORMAT", "mp3_22050_32"),
		ElevenLabsHostVoice:       getEnv("ELEVENLABS_HOST_VOICE", "pNInz6obpgDQGcFmaJgB"),
		ElevenLabsExpertVoice:     getEnv("ELEVENLABS_EXPERT_VOICE", "EXAVITQu4vr4xnSDxMaL"),
		ElevenLabsStability:       getEnvFloat("ELEVENLABS_STABILITY", 0.3),
		ElevenLabsSimilarityBoost: getEnvFloat("ELEVENLABS_SIMILARITY_BOOST", 1.0),
		ElevenLabsStyle:           getEnvFloat("ELEVENLABS_STYLE", 0.0),
		ElevenLabsSpeakerBoost:    getEnvBool("ELEVENLABS_SPEAKER_BOOST", true),

		TTSProvider:       strings.ToLower(getEnv("TTS_PROVIDER", "elevenlabs")),
		TTSConcurrency:    clampMin(getEnvInt("TTS_CONCURRENCY", 4), 1),
		TTSMaxAttempts:    clampMin(getEnvInt("TTS_MAX_ATTEMPTS", 3), 1),
		TTSCallTimeout:    getEnvDuration("TTS_CALL_TIMEOUT", 60*time.Second),
		TTSRetryBaseDelay: getEnvDuration("TTS_RETRY_BASE_DELAY", 500*time.Millisecond),
		TTSStripMarkdown:  getEnvBool("TTS_STRIP_MARKDOWN", true),

		PodcastFormat: strings.ToLower(getEnv("PODCAST_FORMAT", "mp3")),

		KnowledgeCatalogFile: getEnv("KNOWLEDGE_CATALOG_FILE", ""),
		KnowledgeDir:         getEnv("KNOWLEDGE_DIR", "books"),
		KnowledgeChunkSize:   clampMin(getEnvInt("KNOWLEDGE_CHUNK_SIZE", 1000), 100),
		KnowledgeOverlap:     getEnvInt("KNOWLEDGE_CHUNK_OVERLAP", 200),
		KnowledgeTopK:        clampMin(getEnvInt("KNOWLEDGE_TOP_K", 6), 1),

		WebhookMaxRetries:     getEnvInt("WEBHOOK_MAX_RETRIES", 5),
		WebhookRetryBaseDelay: getEnvDuration("WEBHOOK_RETRY_BASE_DELAY", 2*time.Second),
		WebhookRetryMaxDelay:  getEnvDuration("WEBHOOK_RETRY_MAX_DELAY", 5*time.Minute),
		WebhookTimeout:        getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
	}
}

// Validate reports configuration that cannot produce a working pipeline.
func (c *Config) Validate() error {
	var errs []error
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	switch c.TTSProvider {
	case "elevenlabs":
		if c.ElevenLabsAPIKey == "" {
			errs = append(errs, errors.New("ELEVENLABS_API_KEY is required when TTS_PROVIDER=elevenlabs"))
		}
	case "gemini":
		if c.PodcastFormat != "wav" {
			errs = append(errs, errors.New("TTS_PROVIDER=gemini produces PCM clips and requires PODCAST_FORMAT=wav"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider))
	}
	if c.PodcastFormat != "mp3" && c.PodcastFormat != "wav" {
		errs = append(errs, fmt.Errorf("unknown PODCAST_FORMAT %q", c.PodcastFormat))
	}
	switch c.StorageBackend {
	case "local":
		if c.OutputDir == "" {
			errs = append(errs, errors.New("OUTPUT_DIR is required for local storage"))
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if c.KafkaEnabled() && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required when KAFKA_BROKERS is set"))
	}
	if c.KnowledgeOverlap < 0 || c.KnowledgeOverlap >= c.KnowledgeChunkSize {
		errs = append(errs, errors.New("KNOWLEDGE_CHUNK_OVERLAP must be in [0, KNOWLEDGE_CHUNK_SIZE)"))
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		errs = append(errs, errors.New("LLM_TEMPERATURE must be in [0, 2]"))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether runs go through the queue instead of executing in-process.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// clampMin returns v if v >= min, otherwise min. Used to ensure config values are in valid range.
func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
