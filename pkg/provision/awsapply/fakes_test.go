package awsapply

import (
	"context"
	"io"
	"slices"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const testAccount = "123456789012"

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

// recorder keeps the global call order across all fake services.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
}

func (r *recorder) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == op {
			n++
		}
	}
	return n
}

// first returns the index of the first call to op, or -1.
func (r *recorder) first(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Index(r.calls, op)
}

// last returns the index of the last call to op, or -1.
func (r *recorder) last(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i] == op {
			return i
		}
	}
	return -1
}

type storedObject struct {
	body        []byte
	contentType string
	acl         s3types.ObjectCannedACL
}

type fakeS3 struct {
	rec *recorder

	mu       sync.Mutex
	buckets  map[string]bool
	objects  map[string]map[string]storedObject
	creates  []*s3.CreateBucketInput
	lifecycle *s3.PutBucketLifecycleConfigurationInput
	pab      *s3.PutPublicAccessBlockInput
	tags     []s3types.Tag
}

func newFakeS3(rec *recorder) *fakeS3 {
	return &fakeS3{
		rec:     rec,
		buckets: make(map[string]bool),
		objects: make(map[string]map[string]storedObject),
	}
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.rec.record("HeadBucket")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.buckets[aws.ToString(in.Bucket)] {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.rec.record("CreateBucket")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, in)
	name := aws.ToString(in.Bucket)
	if f.buckets[name] {
		return nil, apiErr("BucketAlreadyOwnedByYou")
	}
	f.buckets[name] = true
	f.objects[name] = make(map[string]storedObject)
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	f.rec.record("DeleteBucket")
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Bucket)
	if !f.buckets[name] {
		return nil, apiErr("NoSuchBucket")
	}
	if len(f.objects[name]) > 0 {
		return nil, apiErr("BucketNotEmpty")
	}
	delete(f.buckets, name)
	return &s3.DeleteBucketOutput{}, nil
}

func (f *fakeS3) PutBucketTagging(ctx context.Context, in *s3.PutBucketTaggingInput, _ ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error) {
	f.rec.record("PutBucketTagging")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = in.Tagging.TagSet
	return &s3.PutBucketTaggingOutput{}, nil
}

func (f *fakeS3) PutBucketOwnershipControls(ctx context.Context, in *s3.PutBucketOwnershipControlsInput, _ ...func(*s3.Options)) (*s3.PutBucketOwnershipControlsOutput, error) {
	f.rec.record("PutBucketOwnershipControls")
	return &s3.PutBucketOwnershipControlsOutput{}, nil
}

func (f *fakeS3) PutPublicAccessBlock(ctx context.Context, in *s3.PutPublicAccessBlockInput, _ ...func(*s3.Options)) (*s3.PutPublicAccessBlockOutput, error) {
	f.rec.record("PutPublicAccessBlock")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pab = in
	return &s3.PutPublicAccessBlockOutput{}, nil
}

func (f *fakeS3) PutBucketLifecycleConfiguration(ctx context.Context, in *s3.PutBucketLifecycleConfigurationInput, _ ...func(*s3.Options)) (*s3.PutBucketLifecycleConfigurationOutput, error) {
	f.rec.record("PutBucketLifecycleConfiguration")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lifecycle = in
	return &s3.PutBucketLifecycleConfigurationOutput{}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.rec.record("PutObject")
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := aws.ToString(in.Bucket)
	if !f.buckets[bucket] {
		return nil, apiErr("NoSuchBucket")
	}
	f.objects[bucket][aws.ToString(in.Key)] = storedObject{
		body:        body,
		contentType: aws.ToString(in.ContentType),
		acl:         in.ACL,
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.rec.record("DeleteObject")
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := aws.ToString(in.Bucket)
	if !f.buckets[bucket] {
		return nil, apiErr("NoSuchBucket")
	}
	delete(f.objects[bucket], aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.rec.record("DeleteObjects")
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := aws.ToString(in.Bucket)
	for _, id := range in.Delete.Objects {
		delete(f.objects[bucket], aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.rec.record("ListObjectsV2")
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := aws.ToString(in.Bucket)
	if !f.buckets[bucket] {
		return nil, apiErr("NoSuchBucket")
	}
	keys := make([]string, 0, len(f.objects[bucket]))
	for k := range f.objects[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) keys(bucket string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type fakeIAM struct {
	rec *recorder

	mu          sync.Mutex
	policies    map[string]string // name -> document
	roles       map[string]bool
	attachments map[string]string // role -> policy arn
	createRole  func() error
}

func newFakeIAM(rec *recorder) *fakeIAM {
	return &fakeIAM{
		rec:         rec,
		policies:    make(map[string]string),
		roles:       make(map[string]bool),
		attachments: make(map[string]string),
	}
}

func policyARN(name string) string { return "arn:aws:iam::" + testAccount + ":policy/" + name }
func roleARN(name string) string   { return "arn:aws:iam::" + testAccount + ":role/" + name }

func (f *fakeIAM) ListPolicies(ctx context.Context, in *iam.ListPoliciesInput, _ ...func(*iam.Options)) (*iam.ListPoliciesOutput, error) {
	f.rec.record("ListPolicies")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &iam.ListPoliciesOutput{}
	for name := range f.policies {
		out.Policies = append(out.Policies, iamtypes.Policy{PolicyName: aws.String(name), Arn: aws.String(policyARN(name))})
	}
	return out, nil
}

func (f *fakeIAM) CreatePolicy(ctx context.Context, in *iam.CreatePolicyInput, _ ...func(*iam.Options)) (*iam.CreatePolicyOutput, error) {
	f.rec.record("CreatePolicy")
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.PolicyName)
	if _, ok := f.policies[name]; ok {
		return nil, apiErr("EntityAlreadyExists")
	}
	f.policies[name] = aws.ToString(in.PolicyDocument)
	return &iam.CreatePolicyOutput{Policy: &iamtypes.Policy{PolicyName: in.PolicyName, Arn: aws.String(policyARN(name))}}, nil
}

func (f *fakeIAM) DeletePolicy(ctx context.Context, in *iam.DeletePolicyInput, _ ...func(*iam.Options)) (*iam.DeletePolicyOutput, error) {
	f.rec.record("DeletePolicy")
	f.mu.Lock()
	defer f.mu.Unlock()
	for name := range f.policies {
		if policyARN(name) == aws.ToString(in.PolicyArn) {
			delete(f.policies, name)
			return &iam.DeletePolicyOutput{}, nil
		}
	}
	return nil, apiErr("NoSuchEntity")
}

func (f *fakeIAM) GetRole(ctx context.Context, in *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	f.rec.record("GetRole")
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.RoleName)
	if !f.roles[name] {
		return nil, apiErr("NoSuchEntity")
	}
	return &iam.GetRoleOutput{Role: &iamtypes.Role{RoleName: in.RoleName, Arn: aws.String(roleARN(name))}}, nil
}

func (f *fakeIAM) CreateRole(ctx context.Context, in *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	f.rec.record("CreateRole")
	if f.createRole != nil {
		if err := f.createRole(); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.RoleName)
	f.roles[name] = true
	return &iam.CreateRoleOutput{Role: &iamtypes.Role{RoleName: in.RoleName, Arn: aws.String(roleARN(name))}}, nil
}

func (f *fakeIAM) DeleteRole(ctx context.Context, in *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	f.rec.record("DeleteRole")
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.RoleName)
	if !f.roles[name] {
		return nil, apiErr("NoSuchEntity")
	}
	if _, attached := f.attachments[name]; attached {
		return nil, apiErr("DeleteConflict")
	}
	delete(f.roles, name)
	return &iam.DeleteRoleOutput{}, nil
}

func (f *fakeIAM) AttachRolePolicy(ctx context.Context, in *iam.AttachRolePolicyInput, _ ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	f.rec.record("AttachRolePolicy")
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.RoleName)
	if !f.roles[name] {
		return nil, apiErr("NoSuchEntity")
	}
	f.attachments[name] = aws.ToString(in.PolicyArn)
	return &iam.AttachRolePolicyOutput{}, nil
}

func (f *fakeIAM) DetachRolePolicy(ctx context.Context, in *iam.DetachRolePolicyInput, _ ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	f.rec.record("DetachRolePolicy")
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.RoleName)
	if _, ok := f.attachments[name]; !ok {
		return nil, apiErr("NoSuchEntity")
	}
	delete(f.attachments, name)
	return &iam.DetachRolePolicyOutput{}, nil
}

type fakeLambda struct {
	rec *recorder

	mu        sync.Mutex
	functions map[string]*lambda.CreateFunctionInput
	creates   []*lambda.CreateFunctionInput
	codes     []*lambda.UpdateFunctionCodeInput
	configs   []*lambda.UpdateFunctionConfigurationInput

	// createErrs are returned by successive CreateFunction calls.
	createErrs []error
}

func newFakeLambda(rec *recorder) *fakeLambda {
	return &fakeLambda{rec: rec, functions: make(map[string]*lambda.CreateFunctionInput)}
}

func (f *fakeLambda) GetFunction(ctx context.Context, in *lambda.GetFunctionInput, _ ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error) {
	f.rec.record("GetFunction")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.functions[aws.ToString(in.FunctionName)]; !ok {
		return nil, apiErr("ResourceNotFoundException")
	}
	return &lambda.GetFunctionOutput{
		Configuration: &lambdatypes.FunctionConfiguration{
			FunctionName:     in.FunctionName,
			State:            lambdatypes.StateActive,
			LastUpdateStatus: lambdatypes.LastUpdateStatusSuccessful,
		},
	}, nil
}

func (f *fakeLambda) CreateFunction(ctx context.Context, in *lambda.CreateFunctionInput, _ ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error) {
	f.rec.record("CreateFunction")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, in)
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.functions[aws.ToString(in.FunctionName)] = in
	return &lambda.CreateFunctionOutput{FunctionName: in.FunctionName}, nil
}

func (f *fakeLambda) UpdateFunctionCode(ctx context.Context, in *lambda.UpdateFunctionCodeInput, _ ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error) {
	f.rec.record("UpdateFunctionCode")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, in)
	return &lambda.UpdateFunctionCodeOutput{}, nil
}

func (f *fakeLambda) UpdateFunctionConfiguration(ctx context.Context, in *lambda.UpdateFunctionConfigurationInput, _ ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error) {
	f.rec.record("UpdateFunctionConfiguration")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, in)
	return &lambda.UpdateFunctionConfigurationOutput{}, nil
}

func (f *fakeLambda) DeleteFunction(ctx context.Context, in *lambda.DeleteFunctionInput, _ ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
	f.rec.record("DeleteFunction")
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.FunctionName)
	if _, ok := f.functions[name]; !ok {
		return nil, apiErr("ResourceNotFoundException")
	}
	delete(f.functions, name)
	return &lambda.DeleteFunctionOutput{}, nil
}
