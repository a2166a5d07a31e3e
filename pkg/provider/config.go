package provider

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// DefaultAWSRegion is the fallback region when nothing else resolves one.
const DefaultAWSRegion = "us-east-1"

// imdsTimeout bounds the instance metadata lookup so it never stalls a CLI
// run on a laptop.
const imdsTimeout = 750 * time.Millisecond

// Config selects credentials, region and endpoint for AWS clients.
//
// Authentication priority (AWS SDK v2 default chain):
//  1. Explicit AccessKeyID/SecretAccessKey (if provided)
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  3. Shared credentials/config files with Profile
//  4. EC2 instance metadata / ECS task role / EKS IRSA
//
// Region priority: explicit Region, SDK env/profile resolution, EC2 instance
// metadata (only when UseIMDSRegion is set), then DefaultAWSRegion. When
// Endpoint is set no default is applied, since S3-compatible stores usually
// ignore the region.
type Config struct {
	Region          string
	Endpoint        string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style S3 URLs. Needed for most S3-compatible
	// stores and local moto endpoints.
	ForcePathStyle bool

	// UseIMDSRegion allows a region lookup from EC2 instance metadata when
	// neither the config nor the environment names one.
	UseIMDSRegion bool
}

// Validate checks that credential fields are consistent.
func (c *Config) Validate() error {
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "aws config: " + e.Field + ": " + e.Message
}

// regionLookup fetches the region from instance metadata. Replaced in tests.
var regionLookup = func(ctx context.Context, awsCfg aws.Config) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
	defer cancel()

	out, err := imds.NewFromConfig(awsCfg).GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", err
	}
	return out.Region, nil
}

// LoadAWSConfig builds an aws.Config from cfg.
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	if err := cfg.Validate(); err != nil {
		return aws.Config{}, err
	}

	var opts []func(*config.LoadOptions) error

	// Only apply an explicit region; let the SDK resolve env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	imdsRegion := ""
	if awsCfg.Region == "" && cfg.Endpoint == "" && cfg.UseIMDSRegion {
		if r, lookupErr := regionLookup(ctx, awsCfg); lookupErr == nil {
			imdsRegion = r
		}
	}

	awsCfg.Region = ResolveRegion(awsCfg.Region, imdsRegion, cfg.Endpoint)
	return awsCfg, nil
}

// ResolveRegion applies the fallback chain after SDK loading.
//
// sdkRegion already incorporates an explicit region or env/profile
// resolution. imdsRegion is the instance-metadata region, if looked up.
func ResolveRegion(sdkRegion, imdsRegion, endpoint string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if imdsRegion != "" {
		return imdsRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
