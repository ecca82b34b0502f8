// Package config resolves runtime configuration for the sync engine from
// (in increasing priority) defaults, the collection's config.yaml, and
// ANKIOPS_-prefixed environment variables, with command-line flags binding
// on top via viper's flag binding. This mirrors the teacher's viper
// singleton in internal/config: a package-level instance, an Initialize()
// that sets defaults once, and typed Get* accessors.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Keys are the recognized configuration keys, documented here the same way
// the teacher documents its YamlOnlyKeys map.
const (
	KeyJSON             = "json"
	KeyDebug            = "debug"
	KeyActor            = "actor"
	KeyCollectionDir    = "collection-dir"
	KeySidecarPath      = "sidecar-db"
	KeyDryRun           = "dry-run"
	KeyOperationTimeout = "operation-timeout"
	KeyAITimeout        = "ai-timeout"
	KeyAIConcurrency    = "ai-concurrency"
	KeyAIMaxRetries     = "ai-max-retries"
	KeyAnthropicAPIKey  = "anthropic-api-key"
	KeyMediaDir         = "media-dir"
	KeyNoteTypesDir     = "note-types-dir"
	KeyStoreURL         = "store-url"
	KeyStoreToken       = "store-token"
	KeyAITasksDir       = "ai-tasks-dir"
)

// Initialize sets up the viper singleton with defaults, an optional
// config.yaml in the collection directory, and ANKIOPS_ environment
// variable overrides. It is safe to call more than once; each call resets
// the singleton, which test code relies on for isolation.
func Initialize(collectionDir string) error {
	v = viper.New()

	v.SetDefault(KeyJSON, false)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyActor, "")
	v.SetDefault(KeyCollectionDir, collectionDir)
	v.SetDefault(KeySidecarPath, ".ankiops/sidecar.db")
	v.SetDefault(KeyDryRun, false)
	v.SetDefault(KeyOperationTimeout, 10*time.Second)
	v.SetDefault(KeyAITimeout, 60*time.Second)
	v.SetDefault(KeyAIConcurrency, 4)
	v.SetDefault(KeyAIMaxRetries, 3)
	v.SetDefault(KeyAnthropicAPIKey, "")
	v.SetDefault(KeyMediaDir, "media")
	v.SetDefault(KeyNoteTypesDir, "note-types")
	v.SetDefault(KeyStoreURL, "")
	v.SetDefault(KeyStoreToken, "")
	v.SetDefault(KeyAITasksDir, "ai-tasks")

	v.SetEnvPrefix("ANKIOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if collectionDir != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(collectionDir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("read config.yaml: %w", err)
			}
		}
	}

	return nil
}

func instance() *viper.Viper {
	if v == nil {
		_ = Initialize("")
	}
	return v
}

// V returns the underlying viper instance so callers (e.g. cmd/ankiops) can
// call BindPFlag directly for flag precedence.
func V() *viper.Viper { return instance() }

func GetString(key string) string           { return instance().GetString(key) }
func GetBool(key string) bool                { return instance().GetBool(key) }
func GetInt(key string) int                  { return instance().GetInt(key) }
func GetDuration(key string) time.Duration   { return instance().GetDuration(key) }
func Set(key string, val interface{})        { instance().Set(key, val) }
