package provision

import (
	"encoding/json"
	"fmt"
)

// PolicyVersion is the IAM policy language version.
const PolicyVersion = "2012-10-17"

// PolicyDocument is an IAM policy document.
type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is one IAM policy statement.
type Statement struct {
	Sid       string            `json:"Sid,omitempty"`
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal,omitempty"`
	Action    []string          `json:"Action"`
	Resource  []string          `json:"Resource,omitempty"`
}

// JSON renders the document for the IAM API.
func (d PolicyDocument) JSON() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Grant is a set of actions allowed on a set of resources.
type Grant struct {
	Actions   []string `json:"actions" yaml:"actions"`
	Resources []string `json:"resources" yaml:"resources"`
}

// Document converts grants into a policy document.
func Document(grants []Grant) PolicyDocument {
	doc := PolicyDocument{Version: PolicyVersion}
	for i, g := range grants {
		doc.Statement = append(doc.Statement, Statement{
			Sid:      fmt.Sprint(i),
			Effect:   "Allow",
			Action:   append([]string(nil), g.Actions...),
			Resource: append([]string(nil), g.Resources...),
		})
	}
	return doc
}

func bucketARN(bucket string) string { return "arn:aws:s3:::" + bucket }

func functionARN(region, function string) string {
	return fmt.Sprintf("arn:aws:lambda:%s:*:function:%s", region, function)
}

func logGroupARN(region, function string) string {
	return fmt.Sprintf("arn:aws:logs:%s:*:log-group:/aws/lambda/%s", region, function)
}

// Account IDs publishing the hosted binary and insights layers.
const (
	layerPublisherAccount    = "678892195805"
	insightsPublisherAccount = "580247275435"
)

// executionGrants is what the render function itself is allowed to do.
func executionGrants(region string, n Names) []Grant {
	return []Grant{
		{
			Actions:   []string{"s3:ListAllMyBuckets"},
			Resources: []string{"*"},
		},
		{
			Actions: []string{
				"s3:CreateBucket",
				"s3:ListBucket",
				"s3:PutBucketAcl",
				"s3:GetObject",
				"s3:DeleteObject",
				"s3:PutObjectAcl",
				"s3:PutObject",
				"s3:GetBucketLocation",
			},
			Resources: []string{bucketARN(n.Bucket), bucketARN(n.Bucket) + "/*"},
		},
		{
			Actions:   []string{"lambda:InvokeFunction"},
			Resources: []string{functionARN(region, n.Function)},
		},
		{
			Actions:   []string{"logs:CreateLogGroup"},
			Resources: []string{"arn:aws:logs:*:*:log-group:/aws/lambda-insights"},
		},
		{
			Actions: []string{"logs:CreateLogStream", "logs:PutLogEvents"},
			Resources: []string{
				logGroupARN(region, n.Function) + ":*",
				"arn:aws:logs:*:*:log-group:/aws/lambda-insights:*",
			},
		},
	}
}

func assumeRolePolicy() PolicyDocument {
	return PolicyDocument{
		Version: PolicyVersion,
		Statement: []Statement{{
			Effect:    "Allow",
			Principal: map[string]string{"Service": "lambda.amazonaws.com"},
			Action:    []string{"sts:AssumeRole"},
		}},
	}
}

// callerGrants is the minimal set to submit renders and read their output.
func callerGrants(region string, n Names) []Grant {
	return []Grant{
		{
			Actions:   []string{"lambda:InvokeFunction", "lambda:GetFunction"},
			Resources: []string{functionARN(region, n.Function)},
		},
		{
			Actions:   []string{"s3:ListBucket", "s3:GetBucketLocation"},
			Resources: []string{bucketARN(n.Bucket)},
		},
		{
			Actions:   []string{"s3:GetObject", "s3:PutObject", "s3:DeleteObject", "s3:PutObjectAcl"},
			Resources: []string{bucketARN(n.Bucket) + "/*"},
		},
	}
}

// managementGrants is the operator set for deploying and inspecting a stack.
func managementGrants(region string, n Names) []Grant {
	return []Grant{
		{
			Actions: []string{
				"servicequotas:GetServiceQuota",
				"servicequotas:GetAWSDefaultServiceQuota",
				"servicequotas:RequestServiceQuotaIncrease",
				"servicequotas:ListRequestedServiceQuotaChangeHistoryByQuota",
			},
			Resources: []string{"*"},
		},
		{
			Actions:   []string{"iam:SimulatePrincipalPolicy"},
			Resources: []string{"*"},
		},
		{
			Actions:   []string{"iam:PassRole"},
			Resources: []string{"arn:aws:iam::*:role/" + n.Role},
		},
		{
			Actions: []string{
				"iam:CreateRole",
				"iam:GetRole",
				"iam:DeleteRole",
				"iam:TagRole",
				"iam:AttachRolePolicy",
				"iam:DetachRolePolicy",
			},
			Resources: []string{"arn:aws:iam::*:role/" + n.Role},
		},
		{
			Actions:   []string{"iam:CreatePolicy", "iam:DeletePolicy"},
			Resources: []string{"arn:aws:iam::*:policy/" + n.Policy},
		},
		{
			Actions:   []string{"iam:ListPolicies"},
			Resources: []string{"*"},
		},
		{
			Actions: []string{
				"s3:GetObject",
				"s3:DeleteObject",
				"s3:PutObjectAcl",
				"s3:PutObject",
				"s3:CreateBucket",
				"s3:ListBucket",
				"s3:GetBucketLocation",
				"s3:PutBucketAcl",
				"s3:DeleteBucket",
				"s3:PutBucketOwnershipControls",
				"s3:PutBucketPublicAccessBlock",
				"s3:PutLifecycleConfiguration",
				"s3:PutBucketTagging",
			},
			Resources: []string{bucketARN(n.Bucket), bucketARN(n.Bucket) + "/*"},
		},
		{
			Actions:   []string{"s3:ListAllMyBuckets"},
			Resources: []string{"*"},
		},
		{
			Actions:   []string{"lambda:ListFunctions", "lambda:GetFunction"},
			Resources: []string{"*"},
		},
		{
			Actions: []string{
				"lambda:InvokeAsync",
				"lambda:InvokeFunction",
				"lambda:CreateFunction",
				"lambda:DeleteFunction",
				"lambda:UpdateFunctionCode",
				"lambda:UpdateFunctionConfiguration",
				"lambda:PutFunctionEventInvokeConfig",
				"lambda:PutRuntimeManagementConfig",
				"lambda:TagResource",
			},
			Resources: []string{functionARN(region, n.Function)},
		},
		{
			Actions:   []string{"logs:CreateLogGroup", "logs:PutRetentionPolicy"},
			Resources: []string{logGroupARN(region, n.Function)},
		},
		{
			Actions: []string{"lambda:GetLayerVersion"},
			Resources: []string{
				"arn:aws:lambda:*:" + layerPublisherAccount + ":layer:remotion-binaries-*",
				"arn:aws:lambda:*:" + insightsPublisherAccount + ":layer:LambdaInsightsExtension*",
			},
		},
	}
}
