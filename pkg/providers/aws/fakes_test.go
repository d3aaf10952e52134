package aws

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
)

var errAPI = errors.New("api error")

// recorder collects the mutating calls made against a fake client
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeEC2 struct {
	recorder
	instances map[string]ec2types.Instance
	stopErr   error
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	var found []ec2types.Instance
	if len(params.InstanceIds) == 0 {
		for _, instance := range f.instances {
			found = append(found, instance)
		}
	}
	for _, id := range params.InstanceIds {
		instance, ok := f.instances[id]
		if !ok {
			return nil, errors.New("InvalidInstanceID.NotFound")
		}
		found = append(found, instance)
	}
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{Instances: found}}}, nil
}

func (f *fakeEC2) StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	f.record("stop " + params.InstanceIds[0])
	return &ec2.StopInstancesOutput{}, f.stopErr
}

func (f *fakeEC2) StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	f.record("start " + params.InstanceIds[0])
	return &ec2.StartInstancesOutput{}, nil
}

func ec2Instance(id string, state ec2types.InstanceStateName) ec2types.Instance {
	return ec2types.Instance{
		InstanceId:   aws.String(id),
		InstanceType: ec2types.InstanceTypeT3Micro,
		State:        &ec2types.InstanceState{Name: state},
		Tags:         []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String("web-" + id)}},
	}
}

type fakeS3 struct {
	recorder
	buckets   map[string]string // bucket -> region
	encrypted map[string]bool
	logging   map[string]bool
}

func (f *fakeS3) ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	out := &s3.ListBucketsOutput{}
	for name := range f.buckets {
		out.Buckets = append(out.Buckets, s3types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if _, ok := f.buckets[aws.ToString(params.Bucket)]; !ok {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	return &s3.GetBucketLocationOutput{
		LocationConstraint: s3types.BucketLocationConstraint(f.buckets[aws.ToString(params.Bucket)]),
	}, nil
}

func (f *fakeS3) GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
	return nil, errors.New("NoSuchTagSet")
}

func (f *fakeS3) GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error) {
	if !f.encrypted[aws.ToString(params.Bucket)] {
		return nil, errors.New("ServerSideEncryptionConfigurationNotFoundError")
	}
	return &s3.GetBucketEncryptionOutput{
		ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
			Rules: []s3types.ServerSideEncryptionRule{{
				ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{
					SSEAlgorithm: s3types.ServerSideEncryptionAwsKms,
				},
			}},
		},
	}, nil
}

func (f *fakeS3) PutBucketEncryption(ctx context.Context, params *s3.PutBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error) {
	f.record("encrypt " + aws.ToString(params.Bucket))
	return &s3.PutBucketEncryptionOutput{}, nil
}

func (f *fakeS3) DeleteBucketEncryption(ctx context.Context, params *s3.DeleteBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketEncryptionOutput, error) {
	f.record("decrypt " + aws.ToString(params.Bucket))
	return &s3.DeleteBucketEncryptionOutput{}, nil
}

func (f *fakeS3) GetBucketLogging(ctx context.Context, params *s3.GetBucketLoggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketLoggingOutput, error) {
	out := &s3.GetBucketLoggingOutput{}
	if f.logging[aws.ToString(params.Bucket)] {
		out.LoggingEnabled = &s3types.LoggingEnabled{TargetBucket: aws.String("audit-logs")}
	}
	return out, nil
}

func (f *fakeS3) PutBucketLogging(ctx context.Context, params *s3.PutBucketLoggingInput, optFns ...func(*s3.Options)) (*s3.PutBucketLoggingOutput, error) {
	call := "logging-off " + aws.ToString(params.Bucket)
	if enabled := params.BucketLoggingStatus.LoggingEnabled; enabled != nil {
		call = "logging-on " + aws.ToString(params.Bucket) + " " + aws.ToString(enabled.TargetBucket) + " " + aws.ToString(enabled.TargetPrefix)
	}
	f.record(call)
	return &s3.PutBucketLoggingOutput{}, nil
}

func (f *fakeS3) GetPublicAccessBlock(ctx context.Context, params *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error) {
	return nil, errors.New("NoSuchPublicAccessBlockConfiguration")
}

type fakeIAM struct {
	recorder
	users    map[string][]string // user -> attached policy names
	mfa      map[string]bool
	keys     map[string][]string
	getError error
}

func (f *fakeIAM) ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error) {
	out := &iam.ListUsersOutput{}
	for name := range f.users {
		out.Users = append(out.Users, iamtypes.User{UserName: aws.String(name)})
	}
	return out, nil
}

func (f *fakeIAM) GetUser(ctx context.Context, params *iam.GetUserInput, optFns ...func(*iam.Options)) (*iam.GetUserOutput, error) {
	if f.getError != nil {
		return nil, f.getError
	}
	name := aws.ToString(params.UserName)
	if _, ok := f.users[name]; !ok {
		return nil, &iamtypes.NoSuchEntityException{Message: aws.String("user not found")}
	}
	return &iam.GetUserOutput{User: &iamtypes.User{UserName: aws.String(name)}}, nil
}

func (f *fakeIAM) ListMFADevices(ctx context.Context, params *iam.ListMFADevicesInput, optFns ...func(*iam.Options)) (*iam.ListMFADevicesOutput, error) {
	out := &iam.ListMFADevicesOutput{}
	if f.mfa[aws.ToString(params.UserName)] {
		out.MFADevices = []iamtypes.MFADevice{{SerialNumber: aws.String("arn:aws:iam::1:mfa/dev")}}
	}
	return out, nil
}

func (f *fakeIAM) ListAttachedUserPolicies(ctx context.Context, params *iam.ListAttachedUserPoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedUserPoliciesOutput, error) {
	out := &iam.ListAttachedUserPoliciesOutput{}
	for _, name := range f.users[aws.ToString(params.UserName)] {
		out.AttachedPolicies = append(out.AttachedPolicies, iamtypes.AttachedPolicy{PolicyName: aws.String(name)})
	}
	return out, nil
}

func (f *fakeIAM) ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error) {
	out := &iam.ListAccessKeysOutput{}
	for _, id := range f.keys[aws.ToString(params.UserName)] {
		out.AccessKeyMetadata = append(out.AccessKeyMetadata, iamtypes.AccessKeyMetadata{
			AccessKeyId: aws.String(id),
			Status:      iamtypes.StatusTypeActive,
		})
	}
	return out, nil
}

func (f *fakeIAM) UpdateAccessKey(ctx context.Context, params *iam.UpdateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.UpdateAccessKeyOutput, error) {
	f.record(string(params.Status) + " " + aws.ToString(params.UserName) + " " + aws.ToString(params.AccessKeyId))
	return &iam.UpdateAccessKeyOutput{}, nil
}

type fakeRDS struct {
	recorder
	instances map[string]rdstypes.DBInstance
}

func (f *fakeRDS) DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	if params.DBInstanceIdentifier == nil {
		out := &rds.DescribeDBInstancesOutput{}
		for _, instance := range f.instances {
			out.DBInstances = append(out.DBInstances, instance)
		}
		return out, nil
	}
	instance, ok := f.instances[aws.ToString(params.DBInstanceIdentifier)]
	if !ok {
		return nil, &rdstypes.DBInstanceNotFoundFault{Message: aws.String("not found")}
	}
	return &rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{instance}}, nil
}

func (f *fakeRDS) StopDBInstance(ctx context.Context, params *rds.StopDBInstanceInput, optFns ...func(*rds.Options)) (*rds.StopDBInstanceOutput, error) {
	f.record("stop " + aws.ToString(params.DBInstanceIdentifier))
	return &rds.StopDBInstanceOutput{}, nil
}

func (f *fakeRDS) StartDBInstance(ctx context.Context, params *rds.StartDBInstanceInput, optFns ...func(*rds.Options)) (*rds.StartDBInstanceOutput, error) {
	f.record("start " + aws.ToString(params.DBInstanceIdentifier))
	return &rds.StartDBInstanceOutput{}, nil
}

type fakeClients struct {
	ec2East *fakeEC2
	ec2West *fakeEC2
	s3      *fakeS3
	iam     *fakeIAM
	rds     *fakeRDS
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// newTestProvider wires an authenticated provider over fake clients in two regions
func newTestProvider() (*AWSProvider, *fakeClients) {
	fakes := &fakeClients{
		ec2East: &fakeEC2{instances: map[string]ec2types.Instance{
			"i-east": ec2Instance("i-east", ec2types.InstanceStateNameRunning),
		}},
		ec2West: &fakeEC2{instances: map[string]ec2types.Instance{
			"i-west": ec2Instance("i-west", ec2types.InstanceStateNameStopped),
		}},
		s3: &fakeS3{
			buckets:   map[string]string{"logs": "eu-west-1", "assets": ""},
			encrypted: map[string]bool{"logs": true},
			logging:   map[string]bool{"assets": true},
		},
		iam: &fakeIAM{
			users: map[string][]string{
				"ci-bot": {"ReadOnlyAccess"},
				"admin":  {"AdministratorAccess"},
			},
			mfa:  map[string]bool{"admin": true},
			keys: map[string][]string{"ci-bot": {"AKIA1", "AKIA2"}},
		},
		rds: &fakeRDS{instances: map[string]rdstypes.DBInstance{
			"orders-db": {
				DBInstanceIdentifier:         aws.String("orders-db"),
				DBInstanceStatus:             aws.String("available"),
				Engine:                       aws.String("postgres"),
				EnabledCloudwatchLogsExports: []string{"postgresql"},
			},
		}},
	}

	logger := quietLogger()
	regions := []string{"us-east-1", "us-west-2"}
	p, _ := NewAWSProvider(&config.AWSConfig{Region: "us-east-1"}, logger)
	p.ec2Service = NewEC2Service(map[string]EC2API{"us-east-1": fakes.ec2East, "us-west-2": fakes.ec2West}, regions, logger)
	p.rdsService = NewRDSService(map[string]RDSAPI{"us-east-1": fakes.rds}, regions, logger)
	p.s3Service = NewS3Service(fakes.s3, "us-east-1", logger)
	p.iamService = NewIAMService(fakes.iam, logger)
	p.authenticated = true

	return p, fakes
}
