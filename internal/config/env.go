package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// secretGetter is the slice of the Secrets Manager client we use.
type secretGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadEnv overlays an AWS Secrets Manager secret onto the environment, when
// one is configured, and then loads a .env file. Variables already present in
// the process environment win unless AWS_SECRETS_MANAGER_OVERWRITE=true.
func LoadEnv(ctx context.Context, logger zerolog.Logger, defaultEnvPath string) {
	if secretID := secretIDFromEnv(); secretID != "" {
		client, err := newSecretsClient(ctx, os.Getenv("AWS_SECRETS_MANAGER_REGION"))
		if err == nil {
			err = loadSecret(ctx, client, secretID, logger)
		}
		if err != nil {
			logger.Warn().Err(err).Str("secret_id", secretID).Msg("skipping AWS Secrets Manager overlay")
		}
	}
	loadDotEnv(logger, defaultEnvPath)
}

func secretIDFromEnv() string {
	if id := os.Getenv("AWS_SECRETS_MANAGER_SECRET_ID"); id != "" {
		return id
	}
	return os.Getenv("AWS_SECRET_ID")
}

func loadDotEnv(logger zerolog.Logger, defaultEnvPath string) {
	envFile := os.Getenv("ENV_FILE_PATH")
	if envFile == "" {
		envFile = defaultEnvPath
	}
	if err := godotenv.Load(envFile); err == nil {
		logger.Debug().Str("path", envFile).Msg("loaded env file")
		return
	}
	if err := godotenv.Load(); err != nil && os.Getenv("KUBERNETES_SERVICE_HOST") == "" {
		logger.Debug().Str("path", envFile).Msg("no .env file found, using process environment")
	}
}

func newSecretsClient(ctx context.Context, region string) (*secretsmanager.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

func loadSecret(ctx context.Context, client secretGetter, secretID string, logger zerolog.Logger) error {
	stage := os.Getenv("AWS_SECRETS_MANAGER_VERSION_STAGE")
	if stage == "" {
		stage = "AWSCURRENT"
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(stage),
	})
	if err != nil {
		return fmt.Errorf("fetching secret %s: %w", secretID, err)
	}

	var payload string
	switch {
	case out.SecretString != nil:
		payload = *out.SecretString
	case len(out.SecretBinary) > 0:
		payload = string(out.SecretBinary)
	default:
		return fmt.Errorf("secret %s has no payload", secretID)
	}

	overwrite := strings.EqualFold(os.Getenv("AWS_SECRETS_MANAGER_OVERWRITE"), "true")
	applied, err := applySecretPayload(payload, overwrite)
	if err != nil {
		return fmt.Errorf("secret %s: %w", secretID, err)
	}
	logger.Info().Str("secret_id", secretID).Int("applied", applied).Bool("overwrite", overwrite).
		Msg("loaded env vars from AWS Secrets Manager")
	return nil
}

// applySecretPayload sets every key of a flat JSON object as an env var.
func applySecretPayload(payload string, overwrite bool) (int, error) {
	var kv map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &kv); err != nil {
		return 0, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	applied := 0
	for key, val := range kv {
		if !overwrite && os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return applied, fmt.Errorf("setting %s: %w", key, err)
		}
		applied++
	}
	return applied, nil
}
