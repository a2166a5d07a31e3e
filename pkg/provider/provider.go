// Package provider holds the AWS plumbing shared by provisioning and the
// render relay: SDK configuration loading, region resolution and
// classification of service errors into sentinel errors.
//
// Authentication always goes through the SDK default credential chain unless
// explicit keys are configured; this package never implements custom auth.
package provider

// Service identifies the AWS service an operation talked to.
type Service string

const (
	// ServiceS3 is Amazon S3 (or an S3-compatible store).
	ServiceS3 Service = "s3"

	// ServiceIAM is AWS Identity and Access Management.
	ServiceIAM Service = "iam"

	// ServiceLambda is AWS Lambda.
	ServiceLambda Service = "lambda"
)

// String returns the string representation of the service.
func (s Service) String() string {
	return string(s)
}
