package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	shared "github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// EC2API is the subset of the EC2 client used for inventory and remediation
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
}

// EC2Service handles EC2 inventory and instance power actions
type EC2Service struct {
	clients map[string]EC2API
	regions []string
	logger  *logrus.Logger
}

// NewEC2Service creates a new EC2 service with one client per region
func NewEC2Service(clients map[string]EC2API, regions []string, logger *logrus.Logger) *EC2Service {
	return &EC2Service{
		clients: clients,
		regions: regions,
		logger:  logger,
	}
}

// GetInstances retrieves all EC2 instances
func (s *EC2Service) GetInstances(ctx context.Context, filters shared.ResourceFilters) ([]models.Resource, error) {
	var allInstances []models.Resource

	for _, region := range regionsToQuery(s.regions, filters.Regions) {
		instances, err := s.getInstancesInRegion(ctx, region, filters)
		if err != nil {
			s.logger.WithError(err).WithField("region", region).Warn("Failed to list EC2 instances")
			continue
		}
		allInstances = append(allInstances, instances...)
	}

	s.logger.Debugf("Retrieved %d EC2 instances", len(allInstances))
	return allInstances, nil
}

// GetInstance finds an instance by id in any configured region
func (s *EC2Service) GetInstance(ctx context.Context, instanceID string) (*models.Resource, error) {
	for _, region := range s.regions {
		client, ok := s.clients[region]
		if !ok {
			continue
		}

		result, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		})
		if err != nil {
			s.logger.WithError(err).WithField("region", region).Debug("Instance lookup failed")
			continue
		}

		for _, reservation := range result.Reservations {
			for _, instance := range reservation.Instances {
				if aws.ToString(instance.InstanceId) == instanceID {
					return s.convertInstanceToResource(instance, region), nil
				}
			}
		}
	}

	return nil, fmt.Errorf("EC2 instance %s: %w", instanceID, shared.ErrResourceNotFound)
}

// StopInstance stops a running instance
func (s *EC2Service) StopInstance(ctx context.Context, instanceID string) error {
	client, err := s.clientForInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if _, err := client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{instanceID}}); err != nil {
		return fmt.Errorf("failed to stop instance %s: %w", instanceID, err)
	}
	s.logger.WithField("instance_id", instanceID).Info("Stop requested")
	return nil
}

// StartInstance starts a stopped instance
func (s *EC2Service) StartInstance(ctx context.Context, instanceID string) error {
	client, err := s.clientForInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if _, err := client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{instanceID}}); err != nil {
		return fmt.Errorf("failed to start instance %s: %w", instanceID, err)
	}
	s.logger.WithField("instance_id", instanceID).Info("Start requested")
	return nil
}

func (s *EC2Service) clientForInstance(ctx context.Context, instanceID string) (EC2API, error) {
	resource, err := s.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return s.clients[resource.Region], nil
}

// getInstancesInRegion retrieves instances from a specific region
func (s *EC2Service) getInstancesInRegion(ctx context.Context, region string, filters shared.ResourceFilters) ([]models.Resource, error) {
	client, ok := s.clients[region]
	if !ok {
		return nil, fmt.Errorf("no EC2 client for region %s", region)
	}

	input := &ec2.DescribeInstancesInput{
		Filters: buildEC2Filters(filters),
	}

	var instances []models.Resource
	paginator := ec2.NewDescribeInstancesPaginator(client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances in region %s: %w", region, err)
		}

		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				instances = append(instances, *s.convertInstanceToResource(instance, region))
			}
		}
	}

	return instances, nil
}

// convertInstanceToResource converts an EC2 instance to a Resource model
func (s *EC2Service) convertInstanceToResource(instance types.Instance, region string) *models.Resource {
	id := aws.ToString(instance.InstanceId)
	tags := make(map[string]string)
	name := id
	for _, tag := range instance.Tags {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		if aws.ToString(tag.Key) == "Name" {
			name = aws.ToString(tag.Value)
		}
	}

	resource := models.NewResource(id, name, string(models.ResourceTypeVirtualMachine), "aws", region)
	resource.Tags = tags

	var state types.InstanceStateName
	if instance.State != nil {
		state = instance.State.Name
	}
	resource.UpdateStatus(string(models.GetStateFromString(string(state))), mapInstanceHealth(state))

	if instance.LaunchTime != nil {
		resource.CreatedAt = *instance.LaunchTime
		resource.SetMetadata("uptime_hours", time.Since(*instance.LaunchTime).Hours())
	}
	resource.SetMetadata("instance_type", string(instance.InstanceType))
	resource.SetMetadata("vpc_id", aws.ToString(instance.VpcId))
	if instance.Placement != nil {
		resource.SetMetadata("availability_zone", aws.ToString(instance.Placement.AvailabilityZone))
	}

	return resource
}

// buildEC2Filters builds EC2 API filters from resource filters
func buildEC2Filters(filters shared.ResourceFilters) []types.Filter {
	var ec2Filters []types.Filter

	if len(filters.Status) > 0 {
		ec2Filters = append(ec2Filters, types.Filter{
			Name:   aws.String("instance-state-name"),
			Values: filters.Status,
		})
	}

	for key, value := range filters.Tags {
		ec2Filters = append(ec2Filters, types.Filter{
			Name:   aws.String(fmt.Sprintf("tag:%s", key)),
			Values: []string{value},
		})
	}

	return ec2Filters
}

// mapInstanceHealth maps EC2 instance state to resource health
func mapInstanceHealth(state types.InstanceStateName) string {
	switch state {
	case types.InstanceStateNameRunning:
		return string(models.HealthHealthy)
	case types.InstanceStateNameStopped, types.InstanceStateNameStopping, types.InstanceStateNameTerminated:
		return string(models.HealthUnhealthy)
	case types.InstanceStateNamePending, types.InstanceStateNameShuttingDown:
		return string(models.HealthWarning)
	default:
		return string(models.HealthUnknown)
	}
}

// regionsToQuery prefers the filter's regions over the configured ones
func regionsToQuery(configured, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return configured
}
