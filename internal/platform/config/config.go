package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + 回答生成）
	OpenAI OpenAIConfig

	// チャンク分割設定
	Chunker ChunkerConfig

	// 証拠選定設定
	Retrieval RetrievalConfig

	// プロンプト構築設定
	Prompt PromptConfig

	// ベクトルインデックスのバックエンド（"postgres" または "memory"）
	VectorBackend string

	// HTTPサーバ設定
	ServerPort int
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// IndexTimeout はベクトルインデックス操作1回あたりのタイムアウト
	IndexTimeout time.Duration
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingTimeout   time.Duration
	GenerationModel    string
	GenerationTimeout  time.Duration
	Temperature        float64
	MaxTokens          int
}

// ChunkerConfig はチャンク分割設定
type ChunkerConfig struct {
	MaxChunkChars int
	OverlapChars  int
}

// RetrievalConfig は証拠選定設定
type RetrievalConfig struct {
	TopK             int
	MinSimilarity    float64
	MaxEvidenceChars int
}

// PromptConfig はプロンプト構築設定
type PromptConfig struct {
	MaxEvidenceTokens int
	HistoryTurns      int
}

// Load は環境変数または.envファイルから設定を読み込む
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "hondana"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "hondana"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			IndexTimeout: getEnvAsDuration("DB_INDEX_TIMEOUT", 10*time.Second),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			EmbeddingTimeout:   getEnvAsDuration("OPENAI_EMBEDDING_TIMEOUT", 30*time.Second),
			GenerationModel:    getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
			GenerationTimeout:  getEnvAsDuration("OPENAI_LLM_TIMEOUT", 60*time.Second),
			Temperature:        getEnvAsFloat("OPENAI_LLM_TEMPERATURE", 0.2),
			MaxTokens:          getEnvAsInt("OPENAI_LLM_MAX_TOKENS", 1000),
		},
		Chunker: ChunkerConfig{
			MaxChunkChars: getEnvAsInt("CHUNK_MAX_CHARS", 1000),
			OverlapChars:  getEnvAsInt("CHUNK_OVERLAP_CHARS", 150),
		},
		Retrieval: RetrievalConfig{
			TopK:             getEnvAsInt("RETRIEVAL_TOP_K", 5),
			MinSimilarity:    getEnvAsFloat("RETRIEVAL_MIN_SIMILARITY", 0.35),
			MaxEvidenceChars: getEnvAsInt("RETRIEVAL_MAX_EVIDENCE_CHARS", 6000),
		},
		Prompt: PromptConfig{
			MaxEvidenceTokens: getEnvAsInt("PROMPT_MAX_EVIDENCE_TOKENS", 4000),
			HistoryTurns:      getEnvAsInt("PROMPT_HISTORY_TURNS", 3),
		},
		VectorBackend: getEnv("VECTOR_BACKEND", "postgres"),
		ServerPort:    getEnvAsInt("SERVER_PORT", 8080),
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返す
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得する
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得する
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数をtime.Durationとして取得する
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
