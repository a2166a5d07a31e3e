package awsapply

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/3leaps/renderstack/pkg/provider"
	"github.com/3leaps/renderstack/pkg/provision"
)

// findPolicy returns the ARN of the customer managed policy called name,
// or "" when there is none.
func (a *Applier) findPolicy(ctx context.Context, name string) (string, error) {
	p := iam.NewListPoliciesPaginator(a.clients.IAM, &iam.ListPoliciesInput{
		Scope: types.PolicyScopeTypeLocal,
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", provider.Wrap(provider.ServiceIAM, "ListPolicies", name, err)
		}
		for _, pol := range page.Policies {
			if aws.ToString(pol.PolicyName) == name {
				return aws.ToString(pol.Arn), nil
			}
		}
	}
	return "", nil
}

// applyPolicy reuses an existing policy of the same name. Its document is
// left as is.
func (a *Applier) applyPolicy(ctx context.Context, r *run, spec provision.PolicySpec) (Action, error) {
	arn, err := a.findPolicy(ctx, spec.Name)
	if err != nil {
		return "", err
	}
	if arn != "" {
		r.setPolicyARN(spec.Name, arn)
		return ActionExists, nil
	}

	doc, err := spec.Document.JSON()
	if err != nil {
		return "", err
	}
	out, err := a.clients.IAM.CreatePolicy(ctx, &iam.CreatePolicyInput{
		PolicyName:     aws.String(spec.Name),
		PolicyDocument: aws.String(doc),
		Description:    aws.String(spec.Description),
	})
	if err != nil {
		return "", provider.Wrap(provider.ServiceIAM, "CreatePolicy", spec.Name, err)
	}
	r.setPolicyARN(spec.Name, aws.ToString(out.Policy.Arn))
	return ActionCreated, nil
}

func (a *Applier) applyRole(ctx context.Context, r *run, spec provision.RoleSpec) (Action, error) {
	got, err := a.clients.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(spec.Name)})
	if err == nil {
		r.setRoleARN(spec.Name, aws.ToString(got.Role.Arn))
		return ActionExists, nil
	}
	if err = provider.Wrap(provider.ServiceIAM, "GetRole", spec.Name, err); !provider.IsNotFound(err) {
		return "", err
	}

	doc, err := spec.AssumeRolePolicy.JSON()
	if err != nil {
		return "", err
	}
	out, err := a.clients.IAM.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(spec.Name),
		AssumeRolePolicyDocument: aws.String(doc),
		Tags:                     iamTags(spec.Tags),
	})
	if err != nil {
		return "", provider.Wrap(provider.ServiceIAM, "CreateRole", spec.Name, err)
	}
	r.setRoleARN(spec.Name, aws.ToString(out.Role.Arn))
	return ActionCreated, nil
}

func iamTags(tags map[string]string) []types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func (a *Applier) applyAttachment(ctx context.Context, r *run, spec provision.AttachmentSpec) error {
	arn, ok := r.policyARN(spec.Policy)
	if !ok {
		return fmt.Errorf("policy %q not applied", spec.Policy)
	}
	_, err := a.clients.IAM.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(spec.Role),
		PolicyArn: aws.String(arn),
	})
	return provider.Wrap(provider.ServiceIAM, "AttachRolePolicy", spec.Role, err)
}

func (a *Applier) detachPolicy(ctx context.Context, spec provision.AttachmentSpec) (Action, error) {
	arn, err := a.findPolicy(ctx, spec.Policy)
	if err != nil {
		return "", err
	}
	if arn == "" {
		return ActionMissing, nil
	}
	_, err = a.clients.IAM.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  aws.String(spec.Role),
		PolicyArn: aws.String(arn),
	})
	return deleted(provider.Wrap(provider.ServiceIAM, "DetachRolePolicy", spec.Role, err))
}

func (a *Applier) deleteRole(ctx context.Context, spec provision.RoleSpec) (Action, error) {
	_, err := a.clients.IAM.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(spec.Name)})
	return deleted(provider.Wrap(provider.ServiceIAM, "DeleteRole", spec.Name, err))
}

func (a *Applier) deletePolicy(ctx context.Context, spec provision.PolicySpec) (Action, error) {
	arn, err := a.findPolicy(ctx, spec.Name)
	if err != nil {
		return "", err
	}
	if arn == "" {
		return ActionMissing, nil
	}
	_, err = a.clients.IAM.DeletePolicy(ctx, &iam.DeletePolicyInput{PolicyArn: aws.String(arn)})
	return deleted(provider.Wrap(provider.ServiceIAM, "DeletePolicy", spec.Name, err))
}
