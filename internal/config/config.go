package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RedisURL   string `yaml:"redis_url"`
	ListenAddr string `yaml:"listen_addr"`

	EmailProvider            string `yaml:"email_provider"`
	ResendAPIKey             string `yaml:"resend_api_key"`
	ResendWebhookSecret      string `yaml:"resend_webhook_secret"`
	SendGridAPIKey           string `yaml:"sendgrid_api_key"`
	SendGridWebhookPublicKey string `yaml:"sendgrid_webhook_public_key"`
	FromAddress              string `yaml:"from_address"`

	ArtifactBaseURL string `yaml:"artifact_base_url"`
	WorkflowURL     string `yaml:"workflow_url"`
	WorkflowToken   string `yaml:"workflow_token"`
	// SummarizeWorkflow, when set with WorkflowURL, summarizes /extract pages.
	SummarizeWorkflow string `yaml:"summarize_workflow"`

	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
	SendTimeout        time.Duration `yaml:"send_timeout"`
	SignatureTolerance time.Duration `yaml:"signature_tolerance"`
	MaxFetchBytes      int           `yaml:"max_fetch_bytes"`
	MaxWebhookBytes    int           `yaml:"max_webhook_bytes"`

	AllowedSenders         []string `yaml:"allowed_senders"`
	RateLimitInboundPerMin int      `yaml:"rate_limit_inbound_per_min"`
	DedupeTTLSeconds       int      `yaml:"dedupe_ttl_seconds"`

	IMAPHost      string `yaml:"imap_host"`
	IMAPPort      int    `yaml:"imap_port"`
	IMAPUser      string `yaml:"imap_user"`
	IMAPPass      string `yaml:"imap_pass"`
	PollSeconds   int    `yaml:"poll_seconds"`
	MaxEmailBytes int    `yaml:"max_email_bytes"`

	LogLevel      string `yaml:"log_level"`
	AdminPassword string `yaml:"admin_password"`
	JWTSecret     string `yaml:"jwt_secret"`
}

func Defaults() *Config {
	return &Config{
		RedisURL:               "redis://localhost:6379/0",
		ListenAddr:             ":8080",
		EmailProvider:          "resend",
		FromAddress:            "Clawderous <onboarding@resend.dev>",
		ArtifactBaseURL:        "https://tawkie.dev",
		FetchTimeout:           8 * time.Second,
		SendTimeout:            8 * time.Second,
		SignatureTolerance:     5 * time.Minute,
		MaxFetchBytes:          2 << 20,
		MaxWebhookBytes:        10 << 20,
		RateLimitInboundPerMin: 30,
		DedupeTTLSeconds:       7 * 86400,
		IMAPPort:               993,
		PollSeconds:            20,
		MaxEmailBytes:          5242880, // 5MB
		LogLevel:               "info",
	}
}

// Load builds the config from defaults, the optional CONFIG_FILE YAML
// document, and then environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.EmailProvider = strings.ToLower(getEnv("EMAIL_PROVIDER", c.EmailProvider))
	c.ResendAPIKey = getEnv("RESEND_API_KEY", c.ResendAPIKey)
	c.ResendWebhookSecret = getEnv("RESEND_WEBHOOK_SECRET", c.ResendWebhookSecret)
	c.SendGridAPIKey = getEnv("SENDGRID_API_KEY", c.SendGridAPIKey)
	c.SendGridWebhookPublicKey = getEnv("SENDGRID_WEBHOOK_PUBLIC_KEY", c.SendGridWebhookPublicKey)
	c.FromAddress = getEnv("FROM_ADDRESS", c.FromAddress)
	c.ArtifactBaseURL = strings.TrimRight(getEnv("ARTIFACT_BASE_URL", c.ArtifactBaseURL), "/")
	c.WorkflowURL = getEnv("WORKFLOW_URL", c.WorkflowURL)
	c.WorkflowToken = getEnv("WORKFLOW_TOKEN", c.WorkflowToken)
	c.SummarizeWorkflow = getEnv("SUMMARIZE_WORKFLOW", c.SummarizeWorkflow)
	c.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", c.FetchTimeout)
	c.SendTimeout = getEnvDuration("SEND_TIMEOUT", c.SendTimeout)
	c.SignatureTolerance = getEnvDuration("SIGNATURE_TOLERANCE", c.SignatureTolerance)
	c.MaxFetchBytes = getEnvInt("MAX_FETCH_BYTES", c.MaxFetchBytes)
	c.MaxWebhookBytes = getEnvInt("MAX_WEBHOOK_BYTES", c.MaxWebhookBytes)
	c.AllowedSenders = getEnvList("ALLOWED_SENDERS", c.AllowedSenders)
	c.RateLimitInboundPerMin = getEnvInt("RATE_LIMIT_INBOUND_PER_MIN", c.RateLimitInboundPerMin)
	c.DedupeTTLSeconds = getEnvInt("DEDUPE_TTL_SECONDS", c.DedupeTTLSeconds)
	c.IMAPHost = getEnv("IMAP_HOST", c.IMAPHost)
	c.IMAPPort = getEnvInt("IMAP_PORT", c.IMAPPort)
	c.IMAPUser = getEnv("IMAP_USER", c.IMAPUser)
	c.IMAPPass = getEnv("IMAP_PASS", c.IMAPPass)
	c.PollSeconds = getEnvInt("POLL_SECONDS", c.PollSeconds)
	c.MaxEmailBytes = getEnvInt("MAX_EMAIL_BYTES", c.MaxEmailBytes)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.AdminPassword = getEnv("ADMIN_PASSWORD", c.AdminPassword)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
