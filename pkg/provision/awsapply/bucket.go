package awsapply

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/3leaps/renderstack/pkg/provider"
	"github.com/3leaps/renderstack/pkg/provision"
)

// maxDeleteBatch is the S3 DeleteObjects key limit.
const maxDeleteBatch = 1000

func (a *Applier) applyBucket(ctx context.Context, spec provision.BucketSpec) (Action, error) {
	action := ActionExists

	_, err := a.clients.S3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(spec.Name)})
	if err != nil {
		err = provider.Wrap(provider.ServiceS3, "HeadBucket", spec.Name, err)
		if !provider.IsNotFound(err) {
			return "", err
		}

		in := &s3.CreateBucketInput{Bucket: aws.String(spec.Name)}
		// us-east-1 rejects an explicit location constraint.
		if spec.Region != "" && spec.Region != provider.DefaultAWSRegion {
			in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(spec.Region),
			}
		}
		_, err = a.clients.S3.CreateBucket(ctx, in)
		switch err = provider.Wrap(provider.ServiceS3, "CreateBucket", spec.Name, err); {
		case err == nil:
			action = ActionCreated
		case provider.IsAlreadyExists(err):
		default:
			return "", err
		}
	}

	if len(spec.Tags) > 0 {
		_, err := a.clients.S3.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
			Bucket:  aws.String(spec.Name),
			Tagging: &types.Tagging{TagSet: s3Tags(spec.Tags)},
		})
		if err != nil {
			return "", provider.Wrap(provider.ServiceS3, "PutBucketTagging", spec.Name, err)
		}
	}
	return action, nil
}

func s3Tags(tags map[string]string) []types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	set := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		set = append(set, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return set
}

func (a *Applier) applyOwnership(ctx context.Context, spec provision.OwnershipSpec) error {
	_, err := a.clients.S3.PutBucketOwnershipControls(ctx, &s3.PutBucketOwnershipControlsInput{
		Bucket: aws.String(spec.Bucket),
		OwnershipControls: &types.OwnershipControls{
			Rules: []types.OwnershipControlsRule{
				{ObjectOwnership: types.ObjectOwnership(spec.ObjectOwnership)},
			},
		},
	})
	return provider.Wrap(provider.ServiceS3, "PutBucketOwnershipControls", spec.Bucket, err)
}

func (a *Applier) applyPublicAccessBlock(ctx context.Context, spec provision.PublicAccessBlockSpec) error {
	_, err := a.clients.S3.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
		Bucket: aws.String(spec.Bucket),
		PublicAccessBlockConfiguration: &types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(spec.BlockPublicACLs),
			IgnorePublicAcls:      aws.Bool(spec.IgnorePublicACLs),
			BlockPublicPolicy:     aws.Bool(spec.BlockPublicPolicy),
			RestrictPublicBuckets: aws.Bool(spec.RestrictPublicBuckets),
		},
	})
	return provider.Wrap(provider.ServiceS3, "PutPublicAccessBlock", spec.Bucket, err)
}

func (a *Applier) applyLifecycle(ctx context.Context, spec provision.LifecycleSpec) error {
	rules := make([]types.LifecycleRule, 0, len(spec.Rules))
	for _, rule := range spec.Rules {
		rules = append(rules, types.LifecycleRule{
			ID:         aws.String(rule.ID),
			Status:     types.ExpirationStatusEnabled,
			Filter:     &types.LifecycleRuleFilter{Prefix: aws.String(rule.Prefix)},
			Expiration: &types.LifecycleExpiration{Days: aws.Int32(rule.Days)},
		})
	}

	_, err := a.clients.S3.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket:                 aws.String(spec.Bucket),
		LifecycleConfiguration: &types.BucketLifecycleConfiguration{Rules: rules},
	})
	return provider.Wrap(provider.ServiceS3, "PutBucketLifecycleConfiguration", spec.Bucket, err)
}

func (a *Applier) putObject(ctx context.Context, spec provision.ObjectSpec) error {
	f, err := os.Open(spec.Source)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = a.clients.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(spec.Bucket),
		Key:           aws.String(spec.Key),
		Body:          f,
		ContentLength: aws.Int64(spec.Size),
		ContentType:   aws.String(spec.ContentType),
		ACL:           types.ObjectCannedACL(spec.ACL),
	})
	return provider.Wrap(provider.ServiceS3, "PutObject", spec.Key, err)
}

func (a *Applier) deleteObject(ctx context.Context, spec provision.ObjectSpec) (Action, error) {
	_, err := a.clients.S3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(spec.Bucket),
		Key:    aws.String(spec.Key),
	})
	return deleted(provider.Wrap(provider.ServiceS3, "DeleteObject", spec.Key, err))
}

func (a *Applier) deleteBucket(ctx context.Context, spec provision.BucketSpec) (Action, error) {
	if err := a.emptyBucket(ctx, spec.Name); err != nil {
		if provider.IsNotFound(err) {
			return ActionMissing, nil
		}
		return "", err
	}
	_, err := a.clients.S3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(spec.Name)})
	return deleted(provider.Wrap(provider.ServiceS3, "DeleteBucket", spec.Name, err))
}

// emptyBucket deletes every object left in bucket, including render output.
func (a *Applier) emptyBucket(ctx context.Context, bucket string) error {
	p := s3.NewListObjectsV2Paginator(a.clients.S3, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(maxDeleteBatch),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return provider.Wrap(provider.ServiceS3, "ListObjectsV2", bucket, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := a.clients.S3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return provider.Wrap(provider.ServiceS3, "DeleteObjects", bucket, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return &provider.ProviderError{
				Op:       "DeleteObjects",
				Service:  provider.ServiceS3,
				Resource: aws.ToString(e.Key),
				Err:      fmt.Errorf("%d objects not deleted: %s", len(out.Errors), aws.ToString(e.Message)),
			}
		}
	}
	return nil
}

// deleted maps a delete call's error onto an action; a missing resource
// counts as already removed.
func deleted(err error) (Action, error) {
	switch {
	case err == nil:
		return ActionDeleted, nil
	case provider.IsNotFound(err):
		return ActionMissing, nil
	default:
		return "", err
	}
}
