// Package cloudtest provides helpers for cloud integration tests using moto.
//
// These helpers run provisioning against a local moto server (S3, IAM and
// Lambda) without real AWS credentials. Tests using this package should be
// tagged with //go:build cloudintegration.
//
// Usage:
//
//	func TestDeploy(t *testing.T) {
//	    cloudtest.SkipIfUnavailable(t)
//	    cloudtest.ResetT(t, ctx)
//	    clients := cloudtest.ClientsT(t)
//	    // ... apply a stack with awsapply.New(clients) ...
//	}
package cloudtest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/3leaps/renderstack/pkg/provision/awsapply"
)

const (
	// DefaultEndpoint is the default moto server endpoint.
	// Port 5555 avoids conflict with macOS AirTunes on 5000.
	DefaultEndpoint = "http://localhost:5555"

	// DefaultRegion is the default AWS region for tests.
	DefaultRegion = "us-east-1"

	// TestAccessKeyID is the access key used for moto (accepts any).
	TestAccessKeyID = "testing"

	// TestSecretAccessKey is the secret key used for moto (accepts any).
	TestSecretAccessKey = "testing"
)

var (
	// Endpoint is the moto server endpoint, configurable via MOTO_ENDPOINT env var.
	Endpoint = getEnvOrDefault("MOTO_ENDPOINT", DefaultEndpoint)

	// Region is the AWS region for tests, configurable via MOTO_REGION env var.
	Region = getEnvOrDefault("MOTO_REGION", DefaultRegion)

	awsCfg     aws.Config
	awsCfgOnce sync.Once
	awsCfgErr  error
)

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Available checks if the moto server is reachable.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// SkipIfUnavailable skips the test if moto server is not available.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skipf("moto server not available at %s (start with: moto_server -p 5555)", Endpoint)
	}
}

// Reset clears all moto state. Call this between tests for isolation.
func Reset(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, Endpoint+"/moto-api/reset", nil)
	if err != nil {
		return fmt.Errorf("create reset request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reset request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reset returned status %d", resp.StatusCode)
	}

	return nil
}

// ResetT resets moto state, failing the test on error.
func ResetT(t *testing.T, ctx context.Context) {
	t.Helper()
	if err := Reset(ctx); err != nil {
		t.Fatalf("failed to reset moto: %v", err)
	}
}

// Config returns a shared aws.Config with static moto credentials.
func Config() (aws.Config, error) {
	awsCfgOnce.Do(func() {
		awsCfg, awsCfgErr = config.LoadDefaultConfig(context.Background(),
			config.WithRegion(Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				TestAccessKeyID,
				TestSecretAccessKey,
				"",
			)),
		)
		if awsCfgErr != nil {
			awsCfgErr = fmt.Errorf("load config: %w", awsCfgErr)
		}
	})
	return awsCfg, awsCfgErr
}

// ClientsT returns provisioning clients bound to moto, failing the test on
// error.
func ClientsT(t *testing.T) awsapply.Clients {
	t.Helper()
	cfg, err := Config()
	if err != nil {
		t.Fatalf("failed to load moto config: %v", err)
	}
	return awsapply.NewClients(cfg, Endpoint, true)
}

// S3ClientT returns an S3 client bound to moto for assertions.
func S3ClientT(t *testing.T) *s3.Client {
	t.Helper()
	cfg, err := Config()
	if err != nil {
		t.Fatalf("failed to load moto config: %v", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(Endpoint)
		o.UsePathStyle = true
	})
}

// ObjectKeys lists every key in bucket, sorted.
func ObjectKeys(t *testing.T, ctx context.Context, bucket string) []string {
	t.Helper()

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(S3ClientT(t), &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			t.Fatalf("failed to list objects in bucket %s: %v", bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys
}

// BucketExists reports whether bucket exists in moto.
func BucketExists(t *testing.T, ctx context.Context, bucket string) bool {
	t.Helper()
	_, err := S3ClientT(t).HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return err == nil
}

// ZipArchive returns a zip with a single handler file.
func ZipArchive(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("index.js")
	if err != nil {
		t.Fatalf("failed to create zip entry: %v", err)
	}
	if _, err := f.Write([]byte("exports.handler = async () => ({});\n")); err != nil {
		t.Fatalf("failed to write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

// PublishLayer publishes a placeholder layer and returns its version ARN.
// Stacks under test use it in place of the hosted layers, which do not
// exist in moto.
func PublishLayer(t *testing.T, ctx context.Context, name string) string {
	t.Helper()
	cfg, err := Config()
	if err != nil {
		t.Fatalf("failed to load moto config: %v", err)
	}

	c := lambda.NewFromConfig(cfg, func(o *lambda.Options) {
		o.BaseEndpoint = aws.String(Endpoint)
	})
	out, err := c.PublishLayerVersion(ctx, &lambda.PublishLayerVersionInput{
		LayerName:          aws.String(name),
		Content:            &types.LayerVersionContentInput{ZipFile: ZipArchive(t)},
		CompatibleRuntimes: []types.Runtime{types.RuntimeNodejs18x},
	})
	if err != nil {
		t.Fatalf("failed to publish layer %s: %v", name, err)
	}
	return aws.ToString(out.LayerVersionArn)
}
