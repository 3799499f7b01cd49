// Package credentials resolves the Gemini API key.
//
// Priority for resolving the key:
//  1. OS keyring (encrypted by the OS, requires a user session)
//  2. secret_key.json in the document store
//  3. GEMINI_API_KEY environment variable (including values loaded from .env)
package credentials

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/vango-go/nova-live/pkg/core"
	"github.com/vango-go/nova-live/pkg/store"
)

const (
	// KeyringService is the service name used in the OS keyring.
	KeyringService = "nova"
	// KeyringAPIKey is the entry holding the Gemini API key.
	KeyringAPIKey = "gemini_api_key"
	// EnvAPIKey is the environment fallback.
	EnvAPIKey = "GEMINI_API_KEY"
)

// Source names where a key was found.
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
)

// Provider resolves and stores the API key.
type Provider struct {
	Store *store.Store

	// DisableKeyring skips the OS keyring, for headless hosts.
	DisableKeyring bool

	Getenv func(string) string
	Logger *slog.Logger
}

func (p *Provider) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Provider) getenv(key string) string {
	if p.Getenv != nil {
		return p.Getenv(key)
	}
	return os.Getenv(key)
}

// Resolve returns the first configured key. A missing key is an authentication error.
func (p *Provider) Resolve(ctx context.Context) (string, Source, error) {
	if !p.DisableKeyring {
		val, err := keyring.Get(KeyringService, KeyringAPIKey)
		switch {
		case err == nil && strings.TrimSpace(val) != "":
			p.logger().Debug("API key loaded from OS keyring")
			return strings.TrimSpace(val), SourceKeyring, nil
		case err != nil && !errors.Is(err, keyring.ErrNotFound):
			p.logger().Debug("OS keyring unavailable", "error", err)
		}
	}

	if p.Store != nil {
		sk, found, err := p.Store.SecretKey(ctx)
		if err != nil {
			p.logger().Warn("failed to read stored API key", "error", err)
		} else if found {
			p.logger().Debug("API key loaded from secret_key.json")
			return strings.TrimSpace(sk.APIKey), SourceFile, nil
		}
	}

	if val := strings.TrimSpace(p.getenv(EnvAPIKey)); val != "" {
		p.logger().Debug("API key loaded from environment")
		return val, SourceEnv, nil
	}

	return "", "", core.NewAuthenticationError("no Gemini API key found; set one with `nova key set` or export " + EnvAPIKey)
}

// Set stores the key in the OS keyring, falling back to secret_key.json
// when no keyring is reachable.
func (p *Provider) Set(ctx context.Context, apiKey string) (Source, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", core.NewValidationError("API key must be non-empty", "api_key")
	}
	if !p.DisableKeyring {
		err := keyring.Set(KeyringService, KeyringAPIKey, apiKey)
		if err == nil {
			p.logger().Info("API key stored in OS keyring", "service", KeyringService)
			return SourceKeyring, nil
		}
		p.logger().Warn("OS keyring unavailable, storing key on disk", "error", err)
	}
	if p.Store == nil {
		return "", errors.New("no credential store configured")
	}
	if err := p.Store.SaveSecretKey(ctx, apiKey); err != nil {
		return "", err
	}
	return SourceFile, nil
}

// Clear removes the key from the keyring and the document store.
func (p *Provider) Clear(ctx context.Context) error {
	var errs []error
	if !p.DisableKeyring {
		if err := keyring.Delete(KeyringService, KeyringAPIKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if p.Store != nil {
		if err := p.Store.DeleteSecretKey(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Mask hides all but the last four characters of a key.
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
