package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	shared "github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// IAMAPI is the subset of the IAM client used for evidence and key remediation
type IAMAPI interface {
	ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error)
	GetUser(ctx context.Context, params *iam.GetUserInput, optFns ...func(*iam.Options)) (*iam.GetUserOutput, error)
	ListMFADevices(ctx context.Context, params *iam.ListMFADevicesInput, optFns ...func(*iam.Options)) (*iam.ListMFADevicesOutput, error)
	ListAttachedUserPolicies(ctx context.Context, params *iam.ListAttachedUserPoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedUserPoliciesOutput, error)
	ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error)
	UpdateAccessKey(ctx context.Context, params *iam.UpdateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.UpdateAccessKeyOutput, error)
}

// broadPolicies are managed policies that make a user's access permissive
var broadPolicies = map[string]bool{
	"AdministratorAccess": true,
	"PowerUserAccess":     true,
	"IAMFullAccess":       true,
}

// IAMService handles IAM user evidence and access key actions
type IAMService struct {
	client IAMAPI
	logger *logrus.Logger
}

// NewIAMService creates a new IAM service
func NewIAMService(client IAMAPI, logger *logrus.Logger) *IAMService {
	return &IAMService{
		client: client,
		logger: logger,
	}
}

// GetUsers retrieves all IAM users with their evidence facts
func (s *IAMService) GetUsers(ctx context.Context, filters shared.ResourceFilters) ([]models.Resource, error) {
	var allUsers []models.Resource

	paginator := iam.NewListUsersPaginator(s.client, &iam.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list IAM users: %w", err)
		}

		for _, user := range page.Users {
			allUsers = append(allUsers, *s.describeUser(ctx, user))
		}
	}

	s.logger.Debugf("Retrieved %d IAM users", len(allUsers))
	return allUsers, nil
}

// GetUser returns a single user with its evidence facts
func (s *IAMService) GetUser(ctx context.Context, userName string) (*models.Resource, error) {
	result, err := s.client.GetUser(ctx, &iam.GetUserInput{UserName: aws.String(userName)})
	if err != nil {
		var notFound *types.NoSuchEntityException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("IAM user %s: %w", userName, shared.ErrResourceNotFound)
		}
		return nil, fmt.Errorf("failed to get IAM user %s: %w", userName, err)
	}
	if result.User == nil {
		return nil, fmt.Errorf("IAM user %s: %w", userName, shared.ErrResourceNotFound)
	}
	return s.describeUser(ctx, *result.User), nil
}

// SetAccessKeyActive activates or deactivates one of a user's access keys
func (s *IAMService) SetAccessKeyActive(ctx context.Context, userName, keyID string, active bool) error {
	status := types.StatusTypeInactive
	if active {
		status = types.StatusTypeActive
	}

	_, err := s.client.UpdateAccessKey(ctx, &iam.UpdateAccessKeyInput{
		UserName:    aws.String(userName),
		AccessKeyId: aws.String(keyID),
		Status:      status,
	})
	if err != nil {
		return fmt.Errorf("failed to set access key %s of %s to %s: %w", keyID, userName, status, err)
	}

	s.logger.WithFields(logrus.Fields{
		"user":          userName,
		"access_key_id": keyID,
		"status":        status,
	}).Info("Access key status updated")
	return nil
}

// describeUser converts an IAM user and records its MFA, policy and key facts
func (s *IAMService) describeUser(ctx context.Context, user types.User) *models.Resource {
	name := aws.ToString(user.UserName)
	resource := models.NewResource(name, name, string(models.ResourceTypeUser), "aws", "global")
	resource.UpdateStatus(string(models.StateRunning), string(models.HealthHealthy))

	if user.CreateDate != nil {
		resource.CreatedAt = *user.CreateDate
	}
	resource.SetMetadata("arn", aws.ToString(user.Arn))
	for _, tag := range user.Tags {
		resource.SetTag(aws.ToString(tag.Key), aws.ToString(tag.Value))
	}

	mfaEnabled := false
	if devices, err := s.client.ListMFADevices(ctx, &iam.ListMFADevicesInput{UserName: user.UserName}); err == nil {
		mfaEnabled = len(devices.MFADevices) > 0
	} else {
		s.logger.WithError(err).WithField("user", name).Debug("Failed to list MFA devices")
	}
	resource.SetMetadata("mfa_enabled", mfaEnabled)
	resource.SetMetadata("access_controls", mfaEnabled)

	policy := "restrictive"
	if attached, err := s.client.ListAttachedUserPolicies(ctx, &iam.ListAttachedUserPoliciesInput{UserName: user.UserName}); err == nil {
		var names []string
		for _, p := range attached.AttachedPolicies {
			names = append(names, aws.ToString(p.PolicyName))
			if broadPolicies[aws.ToString(p.PolicyName)] {
				policy = "permissive"
			}
		}
		resource.SetMetadata("attached_policies", names)
	} else {
		s.logger.WithError(err).WithField("user", name).Debug("Failed to list attached policies")
		policy = "unknown"
	}
	resource.SetMetadata("iam_policy", policy)

	if keys, err := s.client.ListAccessKeys(ctx, &iam.ListAccessKeysInput{UserName: user.UserName}); err == nil {
		active := 0
		var ids []string
		for _, key := range keys.AccessKeyMetadata {
			ids = append(ids, aws.ToString(key.AccessKeyId))
			if key.Status == types.StatusTypeActive {
				active++
			}
		}
		resource.SetMetadata("access_keys", ids)
		resource.SetMetadata("active_access_keys", active)
	}

	return resource
}
