package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	awsconfig "github.com/Tsahi-Elkayam/orbyte/pkg/config"
)

// SessionName identifies orbyte sessions in CloudTrail when a role is assumed
const SessionName = "orbyte-session"

// AWSAuthenticator resolves credentials for the AWS provider: static keys, a shared
// profile or the default chain, optionally followed by a role assumption
type AWSAuthenticator struct {
	config *awsconfig.AWSConfig
	awsCfg aws.Config
}

// NewAWSAuthenticator creates a new AWS authenticator
func NewAWSAuthenticator(cfg *awsconfig.AWSConfig) *AWSAuthenticator {
	return &AWSAuthenticator{
		config: cfg,
	}
}

// Authenticate authenticates with AWS and returns the AWS config
func (a *AWSAuthenticator) Authenticate(ctx context.Context) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	switch {
	case a.config.AccessKeyID != "" && a.config.SecretAccessKey != "":
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.config.AccessKeyID,
			a.config.SecretAccessKey,
			a.config.SessionToken,
		)))
	case a.config.Profile != "":
		opts = append(opts, config.WithSharedConfigProfile(a.config.Profile))
	}

	cfg, err := a.load(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to authenticate with AWS: %w", err)
	}

	// Handle role assumption if specified
	if a.config.RoleARN != "" {
		cfg, err = a.assumeRole(ctx, cfg)
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to assume role: %w", err)
		}
	}

	a.awsCfg = cfg
	return cfg, nil
}

// load resolves an AWS config in the configured region
func (a *AWSAuthenticator) load(ctx context.Context, opts ...func(*config.LoadOptions) error) (aws.Config, error) {
	opts = append([]func(*config.LoadOptions) error{config.WithRegion(a.config.Region)}, opts...)
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// assumeRole assumes an IAM role
func (a *AWSAuthenticator) assumeRole(ctx context.Context, cfg aws.Config) (aws.Config, error) {
	stsClient := sts.NewFromConfig(cfg)

	// Create role credentials provider
	roleProvider := stscreds.NewAssumeRoleProvider(stsClient, a.config.RoleARN, func(options *stscreds.AssumeRoleOptions) {
		if a.config.ExternalID != "" {
			options.ExternalID = aws.String(a.config.ExternalID)
		}
		if a.config.MFASerial != "" {
			options.SerialNumber = aws.String(a.config.MFASerial)
		}
		if a.config.DurationSeconds > 0 {
			// Convert int32 seconds to time.Duration
			duration := time.Duration(a.config.DurationSeconds) * time.Second
			options.Duration = duration
		}
		options.RoleSessionName = SessionName
	})

	newCfg, err := a.load(ctx, config.WithCredentialsProvider(aws.NewCredentialsCache(roleProvider)))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to assume role %s: %w", a.config.RoleARN, err)
	}

	return newCfg, nil
}

// ValidateCredentials validates the AWS credentials by making a test call
func (a *AWSAuthenticator) ValidateCredentials(ctx context.Context) (*sts.GetCallerIdentityOutput, error) {
	if a.awsCfg.Credentials == nil {
		return nil, fmt.Errorf("no AWS configuration available, call Authenticate first")
	}

	stsClient := sts.NewFromConfig(a.awsCfg)

	identity, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to validate AWS credentials: %w", err)
	}

	return identity, nil
}
