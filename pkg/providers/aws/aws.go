package aws

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/internal/auth"
	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// AWSProvider implements the CloudProvider interface for AWS
type AWSProvider struct {
	config        *config.AWSConfig
	authenticator *auth.AWSAuthenticator
	awsConfig     aws.Config
	logger        *logrus.Logger

	// Service clients
	ec2Service *EC2Service
	s3Service  *S3Service
	iamService *IAMService
	rdsService *RDSService

	actions map[string]action

	// State
	authenticated bool
	mu            sync.RWMutex
}

// action is a remediation operation addressable from a playbook command
type action struct {
	minArgs int
	maxArgs int
	usage   string
	run     func(ctx context.Context, args []string) error
}

// NewAWSProvider creates a new AWS provider instance
func NewAWSProvider(cfg *config.AWSConfig, logger *logrus.Logger) (*AWSProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("AWS configuration cannot be nil")
	}

	if logger == nil {
		logger = logrus.New()
	}

	p := &AWSProvider{
		config:        cfg,
		authenticator: auth.NewAWSAuthenticator(cfg),
		logger:        logger,
	}
	p.actions = p.buildActions()
	return p, nil
}

// Name returns the provider name
func (p *AWSProvider) Name() string {
	return "aws"
}

// Description returns the provider description
func (p *AWSProvider) Description() string {
	return "Amazon Web Services (AWS) evidence collection and remediation"
}

// SupportedRegions returns the list of supported AWS regions
func (p *AWSProvider) SupportedRegions() []string {
	return []string{
		"us-east-1", "us-east-2", "us-west-1", "us-west-2",
		"eu-west-1", "eu-west-2", "eu-west-3", "eu-central-1", "eu-north-1",
		"ap-south-1", "ap-southeast-1", "ap-southeast-2", "ap-northeast-1", "ap-northeast-2",
		"ca-central-1", "sa-east-1",
	}
}

// Authenticate authenticates with AWS and builds per-region service clients
func (p *AWSProvider) Authenticate(ctx context.Context, cfg config.ProviderConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	awsConfig, ok := cfg.(*config.AWSConfig)
	if !ok {
		return fmt.Errorf("invalid configuration type, expected *config.AWSConfig")
	}

	p.config = awsConfig
	p.authenticator = auth.NewAWSAuthenticator(awsConfig)

	awsCfg, err := p.authenticator.Authenticate(ctx)
	if err != nil {
		p.authenticated = false
		return fmt.Errorf("AWS authentication failed: %w", err)
	}
	p.awsConfig = awsCfg

	identity, err := p.authenticator.ValidateCredentials(ctx)
	if err != nil {
		p.authenticated = false
		return fmt.Errorf("AWS credential validation failed: %w", err)
	}

	p.initializeServices()
	p.authenticated = true

	p.logger.WithFields(logrus.Fields{
		"arn":     aws.ToString(identity.Arn),
		"account": aws.ToString(identity.Account),
	}).Info("Authenticated with AWS")

	return nil
}

// IsAuthenticated returns whether the provider is authenticated
func (p *AWSProvider) IsAuthenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.authenticated
}

// GetResources retrieves every supported resource kind. A failing service is
// logged and skipped.
func (p *AWSProvider) GetResources(ctx context.Context, filters types.ResourceFilters) ([]models.Resource, error) {
	if !p.IsAuthenticated() {
		return nil, fmt.Errorf("AWS provider is not authenticated")
	}

	listers := map[string]func(context.Context, types.ResourceFilters) ([]models.Resource, error){
		"EC2 instances": p.ec2Service.GetInstances,
		"S3 buckets":    p.s3Service.GetBuckets,
		"RDS databases": p.rdsService.GetDatabases,
		"IAM users":     p.iamService.GetUsers,
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		allResources []models.Resource
	)
	for name, list := range listers {
		wg.Add(1)
		go func(name string, list func(context.Context, types.ResourceFilters) ([]models.Resource, error)) {
			defer wg.Done()
			resources, err := list(ctx, filters)
			if err != nil {
				p.logger.WithError(err).Warnf("Failed to get %s", name)
				return
			}
			mu.Lock()
			allResources = append(allResources, resources...)
			mu.Unlock()
		}(name, list)
	}
	wg.Wait()

	sort.SliceStable(allResources, func(i, j int) bool {
		if allResources[i].Type != allResources[j].Type {
			return allResources[i].Type < allResources[j].Type
		}
		return allResources[i].ID < allResources[j].ID
	})

	p.logger.Debugf("Retrieved %d resources from AWS", len(allResources))
	return allResources, nil
}

// GetResourcesByType retrieves resources of a specific type
func (p *AWSProvider) GetResourcesByType(ctx context.Context, resourceType string, filters types.ResourceFilters) ([]models.Resource, error) {
	if !p.IsAuthenticated() {
		return nil, fmt.Errorf("AWS provider is not authenticated")
	}

	switch models.GetResourceTypeFromString(resourceType) {
	case models.ResourceTypeVirtualMachine:
		return p.ec2Service.GetInstances(ctx, filters)
	case models.ResourceTypeObjectStorage:
		return p.s3Service.GetBuckets(ctx, filters)
	case models.ResourceTypeDatabase:
		return p.rdsService.GetDatabases(ctx, filters)
	case models.ResourceTypeUser:
		return p.iamService.GetUsers(ctx, filters)
	default:
		return nil, fmt.Errorf("unsupported resource type: %s", resourceType)
	}
}

// GetResource looks up one live resource by reference
func (p *AWSProvider) GetResource(ctx context.Context, ref types.ResourceRef) (*models.Resource, error) {
	if !p.IsAuthenticated() {
		return nil, fmt.Errorf("AWS provider is not authenticated")
	}

	switch models.GetResourceTypeFromString(ref.Type) {
	case models.ResourceTypeVirtualMachine:
		return p.ec2Service.GetInstance(ctx, ref.ID)
	case models.ResourceTypeObjectStorage:
		return p.s3Service.GetBucket(ctx, ref.ID)
	case models.ResourceTypeDatabase:
		return p.rdsService.GetDatabase(ctx, ref.ID)
	case models.ResourceTypeUser:
		return p.iamService.GetUser(ctx, ref.ID)
	default:
		return nil, fmt.Errorf("unsupported resource type: %s", ref.Type)
	}
}

// Actions returns the remediation actions this provider can perform
func (p *AWSProvider) Actions() []string {
	names := make([]string, 0, len(p.actions))
	for name := range p.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Usage returns the argument synopsis of an action
func (p *AWSProvider) Usage(name string) string {
	if a, ok := p.actions[name]; ok {
		return name + " " + a.usage
	}
	return ""
}

// PerformAction runs a named remediation action
func (p *AWSProvider) PerformAction(ctx context.Context, name string, args []string) error {
	a, ok := p.actions[name]
	if !ok {
		return fmt.Errorf("unknown AWS action: %s", name)
	}
	if len(args) < a.minArgs || len(args) > a.maxArgs {
		return fmt.Errorf("usage: %s %s", name, a.usage)
	}
	if !p.IsAuthenticated() {
		return fmt.Errorf("AWS provider is not authenticated")
	}

	p.logger.WithFields(logrus.Fields{"action": name, "args": args}).Debug("Performing AWS action")
	return a.run(ctx, args)
}

func (p *AWSProvider) buildActions() map[string]action {
	return map[string]action{
		"ec2-stop": {1, 1, "<instance-id>", func(ctx context.Context, args []string) error {
			return p.ec2Service.StopInstance(ctx, args[0])
		}},
		"ec2-start": {1, 1, "<instance-id>", func(ctx context.Context, args []string) error {
			return p.ec2Service.StartInstance(ctx, args[0])
		}},
		"s3-enable-encryption": {1, 1, "<bucket>", func(ctx context.Context, args []string) error {
			return p.s3Service.EnableEncryption(ctx, args[0])
		}},
		"s3-disable-encryption": {1, 1, "<bucket>", func(ctx context.Context, args []string) error {
			return p.s3Service.DisableEncryption(ctx, args[0])
		}},
		"s3-enable-logging": {2, 3, "<bucket> <target-bucket> [prefix]", func(ctx context.Context, args []string) error {
			prefix := args[0] + "/"
			if len(args) == 3 {
				prefix = args[2]
			}
			return p.s3Service.EnableLogging(ctx, args[0], args[1], prefix)
		}},
		"s3-disable-logging": {1, 1, "<bucket>", func(ctx context.Context, args []string) error {
			return p.s3Service.DisableLogging(ctx, args[0])
		}},
		"iam-deactivate-key": {2, 2, "<user> <access-key-id>", func(ctx context.Context, args []string) error {
			return p.iamService.SetAccessKeyActive(ctx, args[0], args[1], false)
		}},
		"iam-activate-key": {2, 2, "<user> <access-key-id>", func(ctx context.Context, args []string) error {
			return p.iamService.SetAccessKeyActive(ctx, args[0], args[1], true)
		}},
		"rds-stop": {1, 1, "<db-instance-id>", func(ctx context.Context, args []string) error {
			return p.rdsService.StopDatabase(ctx, args[0])
		}},
		"rds-start": {1, 1, "<db-instance-id>", func(ctx context.Context, args []string) error {
			return p.rdsService.StartDatabase(ctx, args[0])
		}},
	}
}

// ValidateConfig validates the AWS configuration
func (p *AWSProvider) ValidateConfig(cfg config.ProviderConfig) error {
	awsConfig, ok := cfg.(*config.AWSConfig)
	if !ok {
		return fmt.Errorf("invalid configuration type, expected *config.AWSConfig")
	}

	return awsConfig.Validate()
}

// GetSupportedResourceTypes returns the resource type names accepted in references
func (p *AWSProvider) GetSupportedResourceTypes() []string {
	return []string{"ec2", "s3", "rds", "iam-user"}
}

// initializeServices creates service clients, one per configured region for the
// regional services
func (p *AWSProvider) initializeServices() {
	regions := p.regions()

	ec2Clients := make(map[string]EC2API, len(regions))
	rdsClients := make(map[string]RDSAPI, len(regions))
	for _, region := range regions {
		region := region
		ec2Clients[region] = ec2.NewFromConfig(p.awsConfig, func(o *ec2.Options) { o.Region = region })
		rdsClients[region] = rds.NewFromConfig(p.awsConfig, func(o *rds.Options) { o.Region = region })
	}

	p.ec2Service = NewEC2Service(ec2Clients, regions, p.logger)
	p.rdsService = NewRDSService(rdsClients, regions, p.logger)
	p.s3Service = NewS3Service(s3.NewFromConfig(p.awsConfig), regions[0], p.logger)
	p.iamService = NewIAMService(iam.NewFromConfig(p.awsConfig), p.logger)
}

// regions returns the configured regions, falling back to the primary region
func (p *AWSProvider) regions() []string {
	if regions := p.config.GetRegions(); len(regions) > 0 {
		return regions
	}
	if p.config.Region != "" {
		return []string{p.config.Region}
	}
	return []string{"us-east-1"}
}

// truthy reads SDK boolean fields, which are plain or pointer depending on the service
func truthy(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case *bool:
		return b != nil && *b
	}
	return false
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
