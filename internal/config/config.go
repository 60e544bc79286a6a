package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Env                string `mapstructure:"env"`
	LocalStackEndpoint string `mapstructure:"localstack_endpoint"`
	Node               NodeConfig
	Signer             SignerConfig
	Redis              RedisConfig
}

// NodeConfig holds gateway-node settings.
type NodeConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	ProgramID   string `mapstructure:"program_id"`
	LocalDomain uint32 `mapstructure:"local_domain"`
	Version     uint32 `mapstructure:"version"`
}

// SignerConfig holds attester-signer settings.
type SignerConfig struct {
	SocketPath    string `mapstructure:"socket_path"`
	SessionTTLSec int    `mapstructure:"session_ttl_sec"`
	KMSKeyID      string `mapstructure:"kms_key_id"`
	AWSRegion     string `mapstructure:"aws_region"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration from environment variables prefixed with GATEWAY_.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("env", "development")

	// Node defaults
	v.SetDefault("node.listen_addr", "localhost:8780")
	v.SetDefault("node.program_id", "")
	v.SetDefault("node.local_domain", 5)
	v.SetDefault("node.version", 1)

	// Signer defaults
	v.SetDefault("signer.socket_path", "/var/run/gateway/attester.sock")
	v.SetDefault("signer.session_ttl_sec", 3600)
	v.SetDefault("signer.aws_region", "us-east-1")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	cfg := &Config{}

	cfg.Env = v.GetString("env")
	cfg.LocalStackEndpoint = v.GetString("localstack_endpoint")

	cfg.Node = NodeConfig{
		ListenAddr:  v.GetString("node.listen_addr"),
		ProgramID:   v.GetString("node.program_id"),
		LocalDomain: v.GetUint32("node.local_domain"),
		Version:     v.GetUint32("node.version"),
	}

	cfg.Signer = SignerConfig{
		SocketPath:    v.GetString("signer.socket_path"),
		SessionTTLSec: v.GetInt("signer.session_ttl_sec"),
		KMSKeyID:      v.GetString("signer.kms_key_id"),
		AWSRegion:     v.GetString("signer.aws_region"),
	}

	cfg.Redis = RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}

	return cfg, nil
}
