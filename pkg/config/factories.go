package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/langmirror/internal/logger"
	"github.com/marmos91/langmirror/pkg/directory"
	"github.com/marmos91/langmirror/pkg/mediaserver/rest"
	"github.com/marmos91/langmirror/pkg/state"
	stateBadger "github.com/marmos91/langmirror/pkg/state/badger"
	stateFile "github.com/marmos91/langmirror/pkg/state/file"
	stateMemory "github.com/marmos91/langmirror/pkg/state/memory"
	stateS3 "github.com/marmos91/langmirror/pkg/state/s3"
)

// CreateStatePersistence creates a state persistence backend based on
// configuration.
//
// This factory function uses the Type field to determine which backend
// to create, then decodes the backend-specific configuration from the
// corresponding map and passes it to the backend's constructor.
//
// Supported types:
//   - "file": single JSON document on local disk
//   - "badger": embedded BadgerDB
//   - "s3": Amazon S3 or compatible object storage
//   - "memory": ephemeral, for tests and dry runs
func CreateStatePersistence(ctx context.Context, cfg *StateConfig) (state.Persistence, error) {
	switch cfg.Type {
	case "file":
		return createFilePersistence(cfg.File)
	case "badger":
		return createBadgerPersistence(ctx, cfg.Badger)
	case "s3":
		return createS3Persistence(ctx, cfg.S3)
	case "memory":
		return stateMemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown state backend type: %q", cfg.Type)
	}
}

// createFilePersistence creates the local-file backend.
func createFilePersistence(options map[string]any) (state.Persistence, error) {
	type FileBackendConfig struct {
		Path string `mapstructure:"path"`
	}

	var backendCfg FileBackendConfig
	if err := mapstructure.Decode(options, &backendCfg); err != nil {
		return nil, fmt.Errorf("failed to decode file state backend config: %w", err)
	}

	if backendCfg.Path == "" {
		return nil, fmt.Errorf("file state backend: path is required")
	}

	return stateFile.New(backendCfg.Path)
}

// createBadgerPersistence creates the embedded BadgerDB backend.
func createBadgerPersistence(ctx context.Context, options map[string]any) (state.Persistence, error) {
	type BadgerBackendConfig struct {
		Path string `mapstructure:"path"`
	}

	var backendCfg BadgerBackendConfig
	if err := mapstructure.Decode(options, &backendCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger state backend config: %w", err)
	}

	if backendCfg.Path == "" {
		return nil, fmt.Errorf("badger state backend: path is required")
	}

	return stateBadger.New(ctx, stateBadger.Config{Path: backendCfg.Path})
}

// createS3Persistence creates the S3 backend.
func createS3Persistence(ctx context.Context, options map[string]any) (state.Persistence, error) {
	type S3BackendConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var backendCfg S3BackendConfig
	if err := mapstructure.Decode(options, &backendCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 state backend config: %w", err)
	}

	if backendCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 state backend: bucket is required")
	}
	if backendCfg.Region == "" {
		return nil, fmt.Errorf("S3 state backend: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(backendCfg.Region))

	// Custom endpoint support for MinIO, Localstack, etc.
	if backendCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               backendCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static credentials if provided, otherwise the default chain
	if backendCfg.AccessKeyID != "" && backendCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			backendCfg.AccessKeyID,
			backendCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := backendCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for MinIO/Localstack compatibility
		if backendCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return stateS3.New(ctx, stateS3.Config{
		Client:    client,
		Bucket:    backendCfg.Bucket,
		KeyPrefix: backendCfg.KeyPrefix,
	})
}

// CreateDirectoryService creates the group-membership source from
// configuration. A disabled LDAP section yields the Disabled service, so
// callers never branch on the flag themselves.
func CreateDirectoryService(cfg *LDAPConfig) (directory.Service, error) {
	if !cfg.Enabled {
		return directory.Disabled{}, nil
	}

	svc, err := directory.LoadStatic(cfg.MembershipFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load LDAP membership file: %w", err)
	}

	logger.Info("LDAP membership source loaded", "file", cfg.MembershipFile)
	return svc, nil
}

// CreateMediaServerClient creates the REST client for the configured
// media server, probing its version unless pinned.
func CreateMediaServerClient(ctx context.Context, cfg *MediaServerConfig) (*rest.Client, error) {
	return rest.New(ctx, rest.Config{
		URL:          cfg.URL,
		APIKey:       cfg.APIKey,
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		RateBurst:    cfg.RateBurst,
		ForceVersion: cfg.ForceVersion,
	})
}
