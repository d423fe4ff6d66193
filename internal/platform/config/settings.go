package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the full runtime configuration of the digest service.
// Values come from, in increasing priority: built-in defaults, the optional
// YAML file named by CONFIG_FILE, and environment variables.
type Settings struct {
	Server     ServerSettings     `yaml:"server"`
	Generation GenerationSettings `yaml:"generation"`
	Pipeline   PipelineSettings   `yaml:"pipeline"`
	Cache      CacheSettings      `yaml:"cache"`
	Captions   CaptionSettings    `yaml:"captions"`
}

type ServerSettings struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	Environment string `yaml:"environment"`
}

type GenerationSettings struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"-"`
	MinWords int    `yaml:"min_words"`
	MaxWords int    `yaml:"max_words"`
	Prompt   string `yaml:"prompt"`
}

type PipelineSettings struct {
	Concurrency         int           `yaml:"concurrency"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryBaseDelay      time.Duration `yaml:"retry_base_delay"`
	AttemptTimeout      time.Duration `yaml:"attempt_timeout"`
	Timeout             time.Duration `yaml:"timeout"`
	MetadataTimeout     time.Duration `yaml:"metadata_timeout"`
	TargetChunkDuration time.Duration `yaml:"target_chunk_duration"`
	MinChunks           int           `yaml:"min_chunks"`
	MaxChunks           int           `yaml:"max_chunks"`
	MaxTranscriptLength int           `yaml:"max_transcript_length"`
	FallbackSentences   int           `yaml:"fallback_sentences"`
	KeyPoints           int           `yaml:"key_points"`
	KeyPointScorer      string        `yaml:"key_point_scorer"`
}

type CacheSettings struct {
	Backend     string        `yaml:"backend"`
	DatabaseURL string        `yaml:"-"`
	ResultTTL   time.Duration `yaml:"result_ttl"`
	UsageTTL    time.Duration `yaml:"usage_ttl"`
}

type CaptionSettings struct {
	YtDlpPath    string        `yaml:"yt_dlp_path"`
	Languages    []string      `yaml:"languages"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	MaxBytes     int64         `yaml:"max_bytes"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		Server: ServerSettings{
			Port:        "8080",
			LogLevel:    "info",
			LogFormat:   "json",
			Environment: "development",
		},
		Generation: GenerationSettings{
			Provider: "gemini",
			MinWords: 30,
			MaxWords: 150,
		},
		Pipeline: PipelineSettings{
			Concurrency:         3,
			MaxRetries:          3,
			RetryBaseDelay:      time.Second,
			AttemptTimeout:      55 * time.Second,
			Timeout:             120 * time.Second,
			MetadataTimeout:     15 * time.Second,
			TargetChunkDuration: 5 * time.Minute,
			MinChunks:           3,
			MaxChunks:           10,
			MaxTranscriptLength: 100_000,
			FallbackSentences:   3,
			KeyPoints:           5,
			KeyPointScorer:      "tf",
		},
		Cache: CacheSettings{
			Backend:   "memory",
			ResultTTL: time.Hour,
			UsageTTL:  24 * time.Hour,
		},
		Captions: CaptionSettings{
			YtDlpPath:    "yt-dlp",
			Languages:    []string{"en"},
			FetchTimeout: 15 * time.Second,
			ProbeTimeout: 60 * time.Second,
			MaxBytes:     10_000_000,
		},
	}
}

// LoadSettings builds Settings from defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func LoadSettings(path string) (*Settings, error) {
	s := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	s.applyEnv()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) applyEnv() {
	s.Server.Port = GetEnv("PORT", s.Server.Port)
	s.Server.LogLevel = GetEnv("LOG_LEVEL", s.Server.LogLevel)
	s.Server.LogFormat = GetEnv("LOG_FORMAT", s.Server.LogFormat)
	s.Server.Environment = GetEnv("APP_ENV", s.Server.Environment)

	s.Generation.Provider = GetEnv("LLM_PROVIDER", s.Generation.Provider)
	s.Generation.Model = GetEnv("LLM_MODEL", s.Generation.Model)
	s.Generation.APIKey = GetEnv("LLM_API_KEY", s.Generation.APIKey)
	s.Generation.MinWords = GetEnvInt("SUMMARY_MIN_WORDS", s.Generation.MinWords)
	s.Generation.MaxWords = GetEnvInt("SUMMARY_MAX_WORDS", s.Generation.MaxWords)
	s.Generation.Prompt = GetEnv("SUMMARY_PROMPT", s.Generation.Prompt)

	p := &s.Pipeline
	p.Concurrency = GetEnvInt("CONCURRENCY", p.Concurrency)
	p.MaxRetries = GetEnvInt("MAX_RETRIES", p.MaxRetries)
	p.RetryBaseDelay = GetEnvDuration("RETRY_BASE_DELAY", p.RetryBaseDelay)
	p.AttemptTimeout = GetEnvDuration("ATTEMPT_TIMEOUT", p.AttemptTimeout)
	p.Timeout = GetEnvDuration("PIPELINE_TIMEOUT", p.Timeout)
	p.MetadataTimeout = GetEnvDuration("METADATA_TIMEOUT", p.MetadataTimeout)
	p.TargetChunkDuration = GetEnvDuration("TARGET_CHUNK_DURATION", p.TargetChunkDuration)
	p.MinChunks = GetEnvInt("MIN_CHUNKS", p.MinChunks)
	p.MaxChunks = GetEnvInt("MAX_CHUNKS", p.MaxChunks)
	p.MaxTranscriptLength = GetEnvInt("MAX_TRANSCRIPT_LENGTH", p.MaxTranscriptLength)
	p.FallbackSentences = GetEnvInt("FALLBACK_SENTENCES", p.FallbackSentences)
	p.KeyPoints = GetEnvInt("KEY_POINTS", p.KeyPoints)
	p.KeyPointScorer = GetEnv("KEY_POINT_SCORER", p.KeyPointScorer)

	s.Cache.Backend = GetEnv("CACHE_BACKEND", s.Cache.Backend)
	s.Cache.DatabaseURL = GetEnv("DATABASE_URL", s.Cache.DatabaseURL)
	s.Cache.ResultTTL = GetEnvDuration("RESULT_CACHE_TTL", s.Cache.ResultTTL)
	s.Cache.UsageTTL = GetEnvDuration("USAGE_CACHE_TTL", s.Cache.UsageTTL)

	s.Captions.YtDlpPath = GetEnv("YTDLP_PATH", s.Captions.YtDlpPath)
	s.Captions.Languages = GetEnvList("CAPTION_LANGUAGES", s.Captions.Languages)
	s.Captions.FetchTimeout = GetEnvDuration("CAPTION_FETCH_TIMEOUT", s.Captions.FetchTimeout)
	s.Captions.ProbeTimeout = GetEnvDuration("YTDLP_TIMEOUT", s.Captions.ProbeTimeout)
}

// Validate rejects impossible combinations and fills zero values with defaults.
func (s *Settings) Validate() error {
	d := Defaults()
	p := &s.Pipeline

	if p.Concurrency <= 0 {
		p.Concurrency = d.Pipeline.Concurrency
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.Pipeline.MaxRetries
	}
	if p.RetryBaseDelay < 0 {
		return fmt.Errorf("pipeline.retry_base_delay must not be negative")
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.Pipeline.AttemptTimeout
	}
	if p.Timeout <= 0 {
		p.Timeout = d.Pipeline.Timeout
	}
	if p.MetadataTimeout <= 0 {
		p.MetadataTimeout = d.Pipeline.MetadataTimeout
	}
	if p.TargetChunkDuration <= 0 {
		p.TargetChunkDuration = d.Pipeline.TargetChunkDuration
	}
	if p.MinChunks <= 0 {
		p.MinChunks = d.Pipeline.MinChunks
	}
	if p.MaxChunks <= 0 {
		p.MaxChunks = d.Pipeline.MaxChunks
	}
	if p.MinChunks > p.MaxChunks {
		return fmt.Errorf("pipeline.min_chunks (%d) exceeds pipeline.max_chunks (%d)", p.MinChunks, p.MaxChunks)
	}
	if p.MaxTranscriptLength <= 0 {
		p.MaxTranscriptLength = d.Pipeline.MaxTranscriptLength
	}
	if p.FallbackSentences <= 0 {
		p.FallbackSentences = d.Pipeline.FallbackSentences
	}
	if p.KeyPoints < 0 {
		return fmt.Errorf("pipeline.key_points must not be negative")
	}
	switch strings.ToLower(p.KeyPointScorer) {
	case "", "tf":
		p.KeyPointScorer = "tf"
	case "tfidf":
		p.KeyPointScorer = "tfidf"
	default:
		return fmt.Errorf("pipeline.key_point_scorer %q is not one of tf, tfidf", p.KeyPointScorer)
	}

	if s.Generation.MinWords > 0 && s.Generation.MaxWords > 0 && s.Generation.MinWords > s.Generation.MaxWords {
		return fmt.Errorf("generation.min_words exceeds generation.max_words")
	}
	if s.Generation.Provider == "" {
		s.Generation.Provider = d.Generation.Provider
	}

	switch s.Cache.Backend {
	case "", "memory":
		s.Cache.Backend = "memory"
	case "postgres":
		if s.Cache.DatabaseURL == "" {
			return fmt.Errorf("cache.backend postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of memory, postgres", s.Cache.Backend)
	}
	if s.Cache.ResultTTL <= 0 {
		s.Cache.ResultTTL = d.Cache.ResultTTL
	}
	if s.Cache.UsageTTL <= 0 {
		s.Cache.UsageTTL = d.Cache.UsageTTL
	}

	if s.Captions.YtDlpPath == "" {
		s.Captions.YtDlpPath = d.Captions.YtDlpPath
	}
	if len(s.Captions.Languages) == 0 {
		s.Captions.Languages = d.Captions.Languages
	}
	if s.Captions.FetchTimeout <= 0 {
		s.Captions.FetchTimeout = d.Captions.FetchTimeout
	}
	if s.Captions.ProbeTimeout <= 0 {
		s.Captions.ProbeTimeout = d.Captions.ProbeTimeout
	}
	if s.Captions.MaxBytes <= 0 {
		s.Captions.MaxBytes = d.Captions.MaxBytes
	}
	return nil
}

// Production reports whether the service runs in the production environment,
// where internal diagnostics are withheld from error responses.
func (s *Settings) Production() bool {
	return strings.EqualFold(s.Server.Environment, "production")
}
