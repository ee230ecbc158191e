package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	appdefaults "github.com/hungnci/elevate-fitness/config"

	"github.com/hungnci/elevate-fitness/internal/logger"
	"github.com/spf13/viper"
)

// SystemConfig holds the listen address parts.
type SystemConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// GeminiConfig holds the upstream Gemini Live connection settings.
type GeminiConfig struct {
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	Model             string `mapstructure:"model"`
	Modality          string `mapstructure:"modality"`
	VoiceName         string `mapstructure:"voice_name"`
	SystemInstruction string `mapstructure:"system_instruction"`
}

// Config represents the full server configuration.
type Config struct {
	RootDir          string        `mapstructure:"-"`
	HTTPAddr         string        `mapstructure:"http_addr"`
	DatabaseURL      string        `mapstructure:"database_url"`
	SessionsSeedPath string        `mapstructure:"sessions_seed_path"`
	TranscriptsDir   string        `mapstructure:"transcripts_dir"`
	TLSCertPath      string        `mapstructure:"tls_cert_path"`
	TLSKeyPath       string        `mapstructure:"tls_key_path"`
	TLSRequired      bool          `mapstructure:"tls_required"`
	TLSDisable       bool          `mapstructure:"tls_disable"`
	SystemConfig     SystemConfig  `mapstructure:"system_config"`
	Gemini           GeminiConfig  `mapstructure:"gemini"`
	Log              logger.Config `mapstructure:"log"`
}

// defaultSystemInstruction is used when no instruction is configured. The
// controller appends the current date and time on each connect.
const defaultSystemInstruction = `You are a helpful fitness assistant for Elevate Fitness.
You can help users check class schedules, book classes, and view their bookings.
You should be friendly and encouraging.

CRITICAL RULES:
1. TIME GROUNDING: When the user says "today", "tomorrow", "this weekend", etc., ALWAYS calculate the specific date based on the "Current date and time" provided below. Do NOT guess.
2. NO AUTO-BOOKING: If the 'get_sessions' tool returns an empty list, DO NOT automatically try to book another class. Instead, inform the user about the empty schedule and the next available date suggestion provided by the tool, then WAIT for the user to confirm if they want to see that schedule.
3. VERIFY BOOKING: Never call 'book_session' unless you have successfully found a specific session slot (with a session_id) that the user has explicitly agreed to book.
4. CANCELLATION: When a user asks to cancel a booking, you must first ask them to confirm the class name, date, and time. Only proceed with the cancellation tool once they have confirmed these details.
5. DISPLAY MESSAGES: Whenever you speak to the user, you MUST call the 'display_message' tool with the text transcript of your speech. Do NOT rely on the standard text output channel.
6. CONCISE CLASS LISTING: When listing classes, DO NOT read out every single time slot. Instead, group them by class name and mention that multiple time slots are shown on the screen. Keep your spoken response brief.`

// Load reads the embedded defaults, then merges an optional conf.yaml found
// at the root dir, then applies EF_* environment overrides.
func Load() (Config, error) {
	rootDir, err := resolveRootDir()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigName("conf")
	v.SetConfigType("yaml")
	v.AddConfigPath(rootDir)

	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return Config{}, fmt.Errorf("load embedded config: %w", err)
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	return finalize(v, rootDir)
}

// LoadConfig loads from an explicit config file path, falling back to the
// default search when the path is empty.
func LoadConfig(configPath string) (Config, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		return Load()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, err
	}

	rootDir := strings.TrimSpace(os.Getenv("EF_ROOT_DIR"))
	if rootDir == "" {
		rootDir = filepath.Dir(absPath)
		if filepath.Base(rootDir) == "config" {
			rootDir = filepath.Dir(rootDir)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return Config{}, fmt.Errorf("load embedded config: %w", err)
	}

	setDefaults(v)
	bindEnv(v)

	v.SetConfigFile(absPath)
	if err := v.MergeInConfig(); err != nil {
		return Config{}, err
	}

	return finalize(v, rootDir)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", "")
	v.SetDefault("database_url", "")
	v.SetDefault("sessions_seed_path", "")
	v.SetDefault("transcripts_dir", "./data/transcripts")
	v.SetDefault("tls_required", false)
	v.SetDefault("tls_disable", false)
	v.SetDefault("tls_cert_path", "")
	v.SetDefault("tls_key_path", "")
	v.SetDefault("gemini.base_url", "wss://generativelanguage.googleapis.com/ws")
	v.SetDefault("gemini.model", "gemini-2.0-flash-exp")
	v.SetDefault("gemini.modality", "audio")
	v.SetDefault("gemini.voice_name", "Puck")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.file.enabled", true)
	v.SetDefault("log.file.path", "./data/logs")
	v.SetDefault("log.file.name", "elevate-fitness.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("ef")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func finalize(v *viper.Viper, rootDir string) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.RootDir = rootDir
	deriveHTTPAddr(&cfg)
	derivePaths(&cfg)
	if cfg.Gemini.SystemInstruction == "" {
		cfg.Gemini.SystemInstruction = defaultSystemInstruction
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch strings.ToLower(cfg.Gemini.Modality) {
	case "audio", "text":
	default:
		return fmt.Errorf("gemini.modality must be audio or text, got %q", cfg.Gemini.Modality)
	}
	if strings.TrimSpace(cfg.Gemini.Model) == "" {
		return fmt.Errorf("gemini.model must not be empty")
	}
	if strings.TrimSpace(cfg.Gemini.BaseURL) == "" {
		return fmt.Errorf("gemini.base_url must not be empty")
	}
	return nil
}

func deriveHTTPAddr(cfg *Config) {
	if cfg.HTTPAddr != "" {
		return
	}
	host := cfg.SystemConfig.Host
	port := cfg.SystemConfig.Port
	if port == 0 {
		port = 8090
	}
	if host == "" {
		cfg.HTTPAddr = fmt.Sprintf(":%d", port)
		return
	}
	cfg.HTTPAddr = net.JoinHostPort(host, strconv.Itoa(port))
}

func resolveRootDir() (string, error) {
	if root := strings.TrimSpace(os.Getenv("EF_ROOT_DIR")); root != "" {
		return filepath.Abs(root)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for i := 0; i < 6; i++ {
		if fileExists(filepath.Join(dir, "conf.yaml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return wd, nil
}

func derivePaths(cfg *Config) {
	cfg.TLSCertPath = resolvePath(cfg.RootDir, cfg.TLSCertPath, filepath.Join("certs", "server.crt"))
	cfg.TLSKeyPath = resolvePath(cfg.RootDir, cfg.TLSKeyPath, filepath.Join("certs", "server.key"))
	if cfg.SessionsSeedPath != "" {
		cfg.SessionsSeedPath = resolvePath(cfg.RootDir, cfg.SessionsSeedPath, "")
	}
	cfg.TranscriptsDir = resolvePath(cfg.RootDir, cfg.TranscriptsDir, filepath.Join("data", "transcripts"))
}

func resolvePath(rootDir string, configured string, fallback string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = fallback
	}
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootDir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
