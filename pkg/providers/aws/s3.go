package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	shared "github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// S3API is the subset of the S3 client used for evidence and remediation
type S3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
	PutBucketEncryption(ctx context.Context, params *s3.PutBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error)
	DeleteBucketEncryption(ctx context.Context, params *s3.DeleteBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketEncryptionOutput, error)
	GetBucketLogging(ctx context.Context, params *s3.GetBucketLoggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketLoggingOutput, error)
	PutBucketLogging(ctx context.Context, params *s3.PutBucketLoggingInput, optFns ...func(*s3.Options)) (*s3.PutBucketLoggingOutput, error)
	GetPublicAccessBlock(ctx context.Context, params *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error)
}

// S3Service handles bucket evidence facts and bucket hardening actions
type S3Service struct {
	client        S3API
	defaultRegion string
	logger        *logrus.Logger
}

// NewS3Service creates a new S3 service
func NewS3Service(client S3API, defaultRegion string, logger *logrus.Logger) *S3Service {
	return &S3Service{
		client:        client,
		defaultRegion: defaultRegion,
		logger:        logger,
	}
}

// GetBuckets retrieves all S3 buckets with their evidence facts
func (s *S3Service) GetBuckets(ctx context.Context, filters shared.ResourceFilters) ([]models.Resource, error) {
	listResult, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 buckets: %w", err)
	}

	var buckets []models.Resource
	for _, bucket := range listResult.Buckets {
		resource := s.describeBucket(ctx, aws.ToString(bucket.Name))
		if bucket.CreationDate != nil {
			resource.CreatedAt = *bucket.CreationDate
		}
		if len(filters.Regions) > 0 && !contains(filters.Regions, resource.Region) {
			continue
		}
		buckets = append(buckets, *resource)
	}

	s.logger.Debugf("Retrieved %d S3 buckets", len(buckets))
	return buckets, nil
}

// GetBucket returns a single bucket with its evidence facts
func (s *S3Service) GetBucket(ctx context.Context, bucketName string) (*models.Resource, error) {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucketName)}); err != nil {
		return nil, fmt.Errorf("S3 bucket %s: %w (caused by: %v)", bucketName, shared.ErrResourceNotFound, err)
	}
	return s.describeBucket(ctx, bucketName), nil
}

// EnableEncryption applies AES256 default encryption to a bucket
func (s *S3Service) EnableEncryption(ctx context.Context, bucketName string) error {
	_, err := s.client.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
		Bucket: aws.String(bucketName),
		ServerSideEncryptionConfiguration: &types.ServerSideEncryptionConfiguration{
			Rules: []types.ServerSideEncryptionRule{
				{
					ApplyServerSideEncryptionByDefault: &types.ServerSideEncryptionByDefault{
						SSEAlgorithm: types.ServerSideEncryptionAes256,
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enable encryption on bucket %s: %w", bucketName, err)
	}
	s.logger.WithField("bucket", bucketName).Info("Default encryption enabled")
	return nil
}

// DisableEncryption removes the default encryption configuration
func (s *S3Service) DisableEncryption(ctx context.Context, bucketName string) error {
	if _, err := s.client.DeleteBucketEncryption(ctx, &s3.DeleteBucketEncryptionInput{Bucket: aws.String(bucketName)}); err != nil {
		return fmt.Errorf("failed to remove encryption from bucket %s: %w", bucketName, err)
	}
	s.logger.WithField("bucket", bucketName).Info("Default encryption removed")
	return nil
}

// EnableLogging delivers server access logs for a bucket to the target bucket
func (s *S3Service) EnableLogging(ctx context.Context, bucketName, targetBucket, prefix string) error {
	_, err := s.client.PutBucketLogging(ctx, &s3.PutBucketLoggingInput{
		Bucket: aws.String(bucketName),
		BucketLoggingStatus: &types.BucketLoggingStatus{
			LoggingEnabled: &types.LoggingEnabled{
				TargetBucket: aws.String(targetBucket),
				TargetPrefix: aws.String(prefix),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enable logging on bucket %s: %w", bucketName, err)
	}
	s.logger.WithFields(logrus.Fields{"bucket": bucketName, "target": targetBucket}).Info("Access logging enabled")
	return nil
}

// DisableLogging turns server access logging off
func (s *S3Service) DisableLogging(ctx context.Context, bucketName string) error {
	_, err := s.client.PutBucketLogging(ctx, &s3.PutBucketLoggingInput{
		Bucket:              aws.String(bucketName),
		BucketLoggingStatus: &types.BucketLoggingStatus{},
	})
	if err != nil {
		return fmt.Errorf("failed to disable logging on bucket %s: %w", bucketName, err)
	}
	s.logger.WithField("bucket", bucketName).Info("Access logging disabled")
	return nil
}

// describeBucket gathers what can be read about a bucket. Unreadable settings count
// as not configured, which is how they surface as compliance gaps.
func (s *S3Service) describeBucket(ctx context.Context, bucketName string) *models.Resource {
	resource := models.NewResource(bucketName, bucketName, string(models.ResourceTypeObjectStorage), "aws", s.defaultRegion)
	resource.UpdateStatus(string(models.StateRunning), string(models.HealthHealthy))

	if region, err := s.getBucketRegion(ctx, bucketName); err == nil {
		resource.Region = region
	} else {
		s.logger.WithError(err).WithField("bucket", bucketName).Debug("Failed to get bucket region")
	}

	if result, err := s.client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(bucketName)}); err == nil {
		for _, tag := range result.TagSet {
			resource.SetTag(aws.ToString(tag.Key), aws.ToString(tag.Value))
		}
	}

	encryption := s.getEncryptionAlgorithm(ctx, bucketName)
	resource.SetMetadata("encryption_enabled", encryption != "")
	if encryption != "" {
		resource.SetMetadata("encryption_algorithm", encryption)
	}

	logging, err := s.client.GetBucketLogging(ctx, &s3.GetBucketLoggingInput{Bucket: aws.String(bucketName)})
	resource.SetMetadata("logging_enabled", err == nil && logging.LoggingEnabled != nil)

	resource.SetMetadata("access_controls", s.publicAccessBlocked(ctx, bucketName))

	return resource
}

// getBucketRegion gets the region of an S3 bucket
func (s *S3Service) getBucketRegion(ctx context.Context, bucketName string) (string, error) {
	result, err := s.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		return "", err
	}

	// An empty location constraint means us-east-1
	if result.LocationConstraint == "" {
		return "us-east-1", nil
	}

	return string(result.LocationConstraint), nil
}

func (s *S3Service) getEncryptionAlgorithm(ctx context.Context, bucketName string) string {
	result, err := s.client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil || result.ServerSideEncryptionConfiguration == nil {
		return ""
	}

	for _, rule := range result.ServerSideEncryptionConfiguration.Rules {
		if rule.ApplyServerSideEncryptionByDefault != nil {
			return string(rule.ApplyServerSideEncryptionByDefault.SSEAlgorithm)
		}
	}
	return ""
}

// publicAccessBlocked reports whether all four public access block settings are on
func (s *S3Service) publicAccessBlocked(ctx context.Context, bucketName string) bool {
	result, err := s.client.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil || result.PublicAccessBlockConfiguration == nil {
		return false
	}

	cfg := result.PublicAccessBlockConfiguration
	return truthy(cfg.BlockPublicAcls) &&
		truthy(cfg.BlockPublicPolicy) &&
		truthy(cfg.IgnorePublicAcls) &&
		truthy(cfg.RestrictPublicBuckets)
}
