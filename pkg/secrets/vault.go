// Package secrets copies pipeline credentials from a Vault KV path into the
// process environment before configuration is loaded.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/zatekoja/medisync/pkg/errors"
	"github.com/zatekoja/medisync/pkg/retry"
)

// Keys are the environment variables a Vault path may provide. Anything else
// stored at the path is ignored.
var Keys = []string{
	"DB_PASSWORD",
	"REDIS_PASSWORD",
	"TYPESENSE_API_KEY",
	"OPENAI_API_KEY",
	"GOOGLE_PLACES_API_KEY",
	"GOOGLE_APPLICATION_CREDENTIALS",
}

// VaultConfig locates the secret and controls how it is applied
type VaultConfig struct {
	Enabled   bool
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
	// Overwrite replaces variables that are already set
	Overwrite bool
}

// Result summarizes one load
type Result struct {
	Enabled bool
	Path    string
	Loaded  []string
	Skipped []string
}

// ConfigFromEnv reads VAULT_* variables.
func ConfigFromEnv() VaultConfig {
	cfg := VaultConfig{
		Enabled:   strings.EqualFold(os.Getenv("VAULT_ENABLED"), "true"),
		Addr:      os.Getenv("VAULT_ADDR"),
		Token:     os.Getenv("VAULT_TOKEN"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Mount:     os.Getenv("VAULT_MOUNT"),
		Path:      os.Getenv("VAULT_PATH"),
		KVVersion: 2,
		Timeout:   5 * time.Second,
		Overwrite: strings.EqualFold(os.Getenv("VAULT_OVERWRITE"), "true"),
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Path == "" {
		cfg.Path = "medisync/pipelines"
	}
	if v, err := strconv.Atoi(os.Getenv("VAULT_KV_VERSION")); err == nil {
		cfg.KVVersion = v
	}
	if ms, err := strconv.Atoi(os.Getenv("VAULT_TIMEOUT_MS")); err == nil && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}

// Apply fetches the secret and exports the known keys.
func Apply(ctx context.Context, cfg VaultConfig) (Result, error) {
	result := Result{Enabled: cfg.Enabled, Path: cfg.Path}
	if !cfg.Enabled {
		return result, nil
	}
	if cfg.Addr == "" || cfg.Token == "" {
		return result, apperrors.NewValidationError("VAULT_ADDR and VAULT_TOKEN are required when VAULT_ENABLED=true")
	}

	url, err := secretURL(cfg)
	if err != nil {
		return result, err
	}

	var data map[string]interface{}
	err = retry.Do(ctx, retry.QuickConfig(), func() error {
		var fetchErr error
		data, fetchErr = fetch(ctx, cfg, url)
		return fetchErr
	})
	if err != nil {
		return result, err
	}

	for _, key := range Keys {
		value, ok := data[key]
		if !ok {
			continue
		}
		if !cfg.Overwrite && os.Getenv(key) != "" {
			result.Skipped = append(result.Skipped, key)
			continue
		}
		if err := os.Setenv(key, stringify(value)); err != nil {
			return result, apperrors.NewInternalError("failed to export "+key, err)
		}
		result.Loaded = append(result.Loaded, key)
	}
	return result, nil
}

func fetch(ctx context.Context, cfg VaultConfig, url string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("X-Vault-Token", cfg.Token)
	if cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", cfg.Namespace)
	}

	resp, err := (&http.Client{Timeout: cfg.Timeout}).Do(req)
	if err != nil {
		return nil, apperrors.NewExternalError("vault request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewExternalError("vault response unreadable", err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, retry.Permanent(apperrors.NewUnauthorizedError("vault rejected the token"))
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(apperrors.NewNotFoundError("vault secret not found at " + cfg.Path))
	case resp.StatusCode >= 300:
		return nil, apperrors.NewExternalError(fmt.Sprintf("vault returned %s", resp.Status), fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	var payload struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, retry.Permanent(apperrors.NewExternalError("vault response is not JSON", err))
	}
	data := payload.Data
	if cfg.KVVersion != 1 {
		inner, ok := data["data"].(map[string]interface{})
		if !ok {
			return nil, retry.Permanent(apperrors.NewExternalError("vault KV v2 response has no data", nil))
		}
		data = inner
	}
	if data == nil {
		return nil, retry.Permanent(apperrors.NewExternalError("vault response has no data", nil))
	}
	return data, nil
}

func secretURL(cfg VaultConfig) (string, error) {
	addr := strings.TrimRight(cfg.Addr, "/")
	mount := strings.Trim(cfg.Mount, "/")
	path := strings.Trim(cfg.Path, "/")
	if mount == "" || path == "" {
		return "", apperrors.NewValidationError("vault mount and path must be set")
	}
	if cfg.KVVersion == 1 {
		return fmt.Sprintf("%s/v1/%s/%s", addr, mount, path), nil
	}
	return fmt.Sprintf("%s/v1/%s/data/%s", addr, mount, path), nil
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
