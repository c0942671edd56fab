package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
)

var ErrSecretNotFound = errors.New("secret not found")

// VaultProvider reads key/value secrets from a Vault KV v2 mount.
type VaultProvider struct {
	client *vaultapi.Client
	mount  string
}

// NewVaultProvider builds a provider bound to the given address and token.
func NewVaultProvider(addr, token, mount string) (*VaultProvider, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = strings.TrimSpace(addr)

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(strings.TrimSpace(token))

	if strings.TrimSpace(mount) == "" {
		mount = "secret"
	}
	return &VaultProvider{client: client, mount: mount}, nil
}

// GetSecrets returns the requested keys found at path. Missing keys are omitted.
func (p *VaultProvider) GetSecrets(ctx context.Context, path string, keys []string) (map[string]string, error) {
	secret, err := p.client.KVv2(p.mount).Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", p.mount, path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrSecretNotFound, p.mount, path)
	}
	return pickSecrets(secret.Data, keys), nil
}

func pickSecrets(data map[string]interface{}, keys []string) map[string]string {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		raw, ok := data[key]
		if !ok {
			continue
		}
		if value, ok := raw.(string); ok {
			result[key] = value
		}
	}
	return result
}
