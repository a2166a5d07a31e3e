package provision

// Kind identifies a resource type.
type Kind string

// Resource kinds in a render stack.
const (
	KindBucket            Kind = "bucket"
	KindBucketOwnership   Kind = "bucket-ownership"
	KindPublicAccessBlock Kind = "bucket-public-access-block"
	KindLifecycle         Kind = "bucket-lifecycle"
	KindPolicy            Kind = "iam-policy"
	KindRole              Kind = "iam-role"
	KindPolicyAttachment  Kind = "iam-policy-attachment"
	KindFunction          Kind = "function"
	KindSiteObject        Kind = "site-object"
)

// Resource is one declared cloud resource.
//
// DependsOn lists the IDs that must be applied first. Spec holds the typed
// parameters; its concrete type is determined by Kind.
type Resource struct {
	ID        string   `json:"id"`
	Kind      Kind     `json:"kind"`
	DependsOn []string `json:"depends_on,omitempty"`
	Spec      Spec     `json:"spec"`
}

// Spec is implemented by every resource parameter type.
type Spec interface {
	kind() Kind
}

// BucketSpec declares the storage bucket.
type BucketSpec struct {
	Name         string            `json:"name"`
	Region       string            `json:"region"`
	ForceDestroy bool              `json:"force_destroy,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// OwnershipSpec sets bucket object ownership so object ACLs apply.
type OwnershipSpec struct {
	Bucket          string `json:"bucket"`
	ObjectOwnership string `json:"object_ownership"`
}

// PublicAccessBlockSpec configures the bucket public access block.
type PublicAccessBlockSpec struct {
	Bucket                string `json:"bucket"`
	BlockPublicACLs       bool   `json:"block_public_acls"`
	IgnorePublicACLs      bool   `json:"ignore_public_acls"`
	BlockPublicPolicy     bool   `json:"block_public_policy"`
	RestrictPublicBuckets bool   `json:"restrict_public_buckets"`
}

// LifecycleRule expires objects under Prefix after Days.
type LifecycleRule struct {
	ID     string `json:"id"`
	Prefix string `json:"prefix"`
	Days   int32  `json:"days"`
}

// LifecycleSpec declares the bucket expiration rules.
type LifecycleSpec struct {
	Bucket string          `json:"bucket"`
	Rules  []LifecycleRule `json:"rules"`
}

// PolicySpec declares a managed IAM policy.
type PolicySpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Document    PolicyDocument `json:"document"`
}

// RoleSpec declares the function execution role.
type RoleSpec struct {
	Name             string            `json:"name"`
	AssumeRolePolicy PolicyDocument    `json:"assume_role_policy"`
	Tags             map[string]string `json:"tags,omitempty"`
}

// AttachmentSpec attaches a policy to a role.
type AttachmentSpec struct {
	Role   string `json:"role"`
	Policy string `json:"policy"`
}

// FunctionSpec declares the render function.
type FunctionSpec struct {
	Name                 string            `json:"name"`
	Description          string            `json:"description"`
	Role                 string            `json:"role"`
	Runtime              string            `json:"runtime"`
	Handler              string            `json:"handler"`
	Architecture         string            `json:"architecture"`
	MemorySizeInMB       int32             `json:"memory_size_mb"`
	TimeoutInSeconds     int32             `json:"timeout_seconds"`
	EphemeralStorageInMB int32             `json:"ephemeral_storage_mb"`
	Archive              string            `json:"archive"`
	Layers               []string          `json:"layers"`
	Tags                 map[string]string `json:"tags,omitempty"`
}

// ObjectSpec declares one uploaded site file.
type ObjectSpec struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Source      string `json:"source"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	ACL         string `json:"acl"`
}

func (BucketSpec) kind() Kind            { return KindBucket }
func (OwnershipSpec) kind() Kind         { return KindBucketOwnership }
func (PublicAccessBlockSpec) kind() Kind { return KindPublicAccessBlock }
func (LifecycleSpec) kind() Kind         { return KindLifecycle }
func (PolicySpec) kind() Kind            { return KindPolicy }
func (RoleSpec) kind() Kind              { return KindRole }
func (AttachmentSpec) kind() Kind        { return KindPolicyAttachment }
func (FunctionSpec) kind() Kind          { return KindFunction }
func (ObjectSpec) kind() Kind            { return KindSiteObject }
