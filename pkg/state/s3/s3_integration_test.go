//go:build integration
// +build integration

package s3

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/langmirror/pkg/state"
	"github.com/marmos91/langmirror/pkg/state/statetest"
)

// TestS3Persistence_Integration runs the persistence contract suite
// against a real S3-compatible service (Localstack).
//
// Prerequisites:
//   - Localstack running on localhost:4566
//   - Run with: go test -tags=integration ./pkg/state/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestS3Persistence_Integration(t *testing.T) {
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			"test", "test", "",
		)),
	)
	require.NoError(t, err)

	client := awsS3.NewFromConfig(cfg, func(o *awsS3.Options) {
		o.UsePathStyle = true
	})

	suite := &statetest.Suite{
		NewPersistence: func(t *testing.T) state.Persistence {
			bucket := fmt.Sprintf("langmirror-test-%d", time.Now().UnixNano())
			_, err := client.CreateBucket(ctx, &awsS3.CreateBucketInput{
				Bucket: aws.String(bucket),
			})
			require.NoError(t, err)

			persistence, err := New(ctx, Config{
				Client:    client,
				Bucket:    bucket,
				KeyPrefix: "state-test",
			})
			require.NoError(t, err)
			return persistence
		},
	}

	suite.Run(t)
}
