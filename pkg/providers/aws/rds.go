package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	shared "github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// RDSAPI is the subset of the RDS client used for evidence and power actions
type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	StopDBInstance(ctx context.Context, params *rds.StopDBInstanceInput, optFns ...func(*rds.Options)) (*rds.StopDBInstanceOutput, error)
	StartDBInstance(ctx context.Context, params *rds.StartDBInstanceInput, optFns ...func(*rds.Options)) (*rds.StartDBInstanceOutput, error)
}

// RDSService handles RDS instance evidence and power actions
type RDSService struct {
	clients map[string]RDSAPI
	regions []string
	logger  *logrus.Logger
}

// NewRDSService creates a new RDS service with one client per region
func NewRDSService(clients map[string]RDSAPI, regions []string, logger *logrus.Logger) *RDSService {
	return &RDSService{
		clients: clients,
		regions: regions,
		logger:  logger,
	}
}

// GetDatabases retrieves all RDS database instances
func (s *RDSService) GetDatabases(ctx context.Context, filters shared.ResourceFilters) ([]models.Resource, error) {
	var allDatabases []models.Resource

	for _, region := range regionsToQuery(s.regions, filters.Regions) {
		client, ok := s.clients[region]
		if !ok {
			continue
		}

		paginator := rds.NewDescribeDBInstancesPaginator(client, &rds.DescribeDBInstancesInput{})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				s.logger.WithError(err).WithField("region", region).Warn("Failed to describe DB instances")
				break
			}
			for _, instance := range page.DBInstances {
				allDatabases = append(allDatabases, *convertDBInstanceToResource(instance, region))
			}
		}
	}

	s.logger.Debugf("Retrieved %d RDS databases", len(allDatabases))
	return allDatabases, nil
}

// GetDatabase finds a DB instance by identifier in any configured region
func (s *RDSService) GetDatabase(ctx context.Context, identifier string) (*models.Resource, error) {
	for _, region := range s.regions {
		client, ok := s.clients[region]
		if !ok {
			continue
		}

		result, err := client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
			DBInstanceIdentifier: aws.String(identifier),
		})
		if err != nil {
			var notFound *types.DBInstanceNotFoundFault
			if !errors.As(err, &notFound) {
				s.logger.WithError(err).WithField("region", region).Debug("DB instance lookup failed")
			}
			continue
		}
		if len(result.DBInstances) > 0 {
			return convertDBInstanceToResource(result.DBInstances[0], region), nil
		}
	}

	return nil, fmt.Errorf("RDS instance %s: %w", identifier, shared.ErrResourceNotFound)
}

// StopDatabase stops a DB instance
func (s *RDSService) StopDatabase(ctx context.Context, identifier string) error {
	resource, err := s.GetDatabase(ctx, identifier)
	if err != nil {
		return err
	}
	_, err = s.clients[resource.Region].StopDBInstance(ctx, &rds.StopDBInstanceInput{
		DBInstanceIdentifier: aws.String(identifier),
	})
	if err != nil {
		return fmt.Errorf("failed to stop DB instance %s: %w", identifier, err)
	}
	s.logger.WithField("db_instance", identifier).Info("Stop requested")
	return nil
}

// StartDatabase starts a stopped DB instance
func (s *RDSService) StartDatabase(ctx context.Context, identifier string) error {
	resource, err := s.GetDatabase(ctx, identifier)
	if err != nil {
		return err
	}
	_, err = s.clients[resource.Region].StartDBInstance(ctx, &rds.StartDBInstanceInput{
		DBInstanceIdentifier: aws.String(identifier),
	})
	if err != nil {
		return fmt.Errorf("failed to start DB instance %s: %w", identifier, err)
	}
	s.logger.WithField("db_instance", identifier).Info("Start requested")
	return nil
}

// convertDBInstanceToResource converts an RDS instance to a Resource model
func convertDBInstanceToResource(instance types.DBInstance, region string) *models.Resource {
	id := aws.ToString(instance.DBInstanceIdentifier)
	resource := models.NewResource(id, id, string(models.ResourceTypeDatabase), "aws", region)

	status := aws.ToString(instance.DBInstanceStatus)
	resource.UpdateStatus(string(models.GetStateFromString(status)), mapDBStatusToHealth(status))

	if instance.InstanceCreateTime != nil {
		resource.CreatedAt = *instance.InstanceCreateTime
	}
	for _, tag := range instance.TagList {
		resource.SetTag(aws.ToString(tag.Key), aws.ToString(tag.Value))
	}

	resource.SetMetadata("engine", aws.ToString(instance.Engine))
	resource.SetMetadata("db_instance_class", aws.ToString(instance.DBInstanceClass))
	resource.SetMetadata("encryption_enabled", truthy(instance.StorageEncrypted))
	resource.SetMetadata("logging_enabled", len(instance.EnabledCloudwatchLogsExports) > 0)

	return resource
}

// mapDBStatusToHealth maps an RDS status string to resource health
func mapDBStatusToHealth(status string) string {
	switch status {
	case "available":
		return string(models.HealthHealthy)
	case "stopped", "failed", "incompatible-parameters", "storage-full":
		return string(models.HealthUnhealthy)
	case "starting", "stopping", "modifying", "backing-up", "creating":
		return string(models.HealthWarning)
	default:
		return string(models.HealthUnknown)
	}
}
