package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-engine/internal/adapters/secrets"
	"github.com/kevin07696/payment-engine/internal/config"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
)

// initSecretManager initializes the secret manager selected by SECRET_BACKEND
// Supports:
//   - aws: AWS Secrets Manager (AWS_REGION, optional AWS_PROFILE / AWS_SECRETS_ENDPOINT)
//   - vault: HashiCorp Vault KV v2 (VAULT_ADDR with VAULT_TOKEN or VAULT_ROLE_ID/VAULT_SECRET_ID)
//   - local: files under SECRETS_LOCAL_PATH (development only)
func initSecretManager(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretManager, error) {
	switch cfg.Backend {
	case config.SecretBackendAWS:
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Profile = cfg.AWSProfile
		awsCfg.Endpoint = cfg.AWSEndpoint
		awsCfg.CacheTTL = cfg.CacheTTL

		sm, err := secrets.NewAWSSecretsManager(ctx, awsCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AWS Secrets Manager: %w", err)
		}
		return sm, nil

	case config.SecretBackendVault:
		vaultCfg := secrets.DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.MountPath = cfg.VaultMountPath
		vaultCfg.CacheTTL = cfg.CacheTTL
		if cfg.VaultToken != "" {
			vaultCfg.Token = cfg.VaultToken
		} else {
			vaultCfg.AuthMethod = "approle"
			vaultCfg.RoleID = cfg.VaultRoleID
			vaultCfg.SecretID = cfg.VaultSecretID
		}

		sm, err := secrets.NewVaultSecretManager(ctx, vaultCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Vault: %w", err)
		}
		return sm, nil

	case config.SecretBackendLocal:
		logger.Warn("Using LOCAL secret manager - NOT for production use!",
			zap.String("path", cfg.LocalPath),
		)
		return secrets.NewLocalSecretManager(cfg.LocalPath, logger), nil

	default:
		return nil, fmt.Errorf("unsupported secret backend %q", cfg.Backend)
	}
}
