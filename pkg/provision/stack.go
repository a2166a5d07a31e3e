// Package provision declares the cloud resources of a render stack.
//
// Build is a pure function: it turns a Config and the scanned site bundle
// into an immutable Stack of resources with explicit dependency edges. It
// never talks to a cloud API; see provision/awsapply for that.
package provision

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/3leaps/renderstack/pkg/site"
)

// Resource IDs of the fixed stack members.
const (
	IDBucket            = "bucket"
	IDBucketOwnership   = "bucket-ownership"
	IDPublicAccessBlock = "bucket-public-access-block"
	IDLifecycle         = "bucket-lifecycle"
	IDPolicy            = "policy"
	IDRole              = "role"
	IDPolicyAttachment  = "policy-attachment"
	IDFunction          = "function"

	siteObjectPrefix = "site/"
)

// SitePrefix is the bucket key prefix for uploaded site bundles.
const SitePrefix = "sites/"

// RenderPrefix is the bucket key prefix under which lifecycle rules expire
// render output.
const RenderPrefix = "renders/"

// RetentionRules are the render output expiration windows.
var RetentionRules = []LifecycleRule{
	{ID: "expire-1-day", Prefix: RenderPrefix + "1-day/", Days: 1},
	{ID: "expire-3-days", Prefix: RenderPrefix + "3-days/", Days: 3},
	{ID: "expire-7-days", Prefix: RenderPrefix + "7-days/", Days: 7},
	{ID: "expire-30-days", Prefix: RenderPrefix + "30-days/", Days: 30},
}

// Outputs are the values the relay needs from a deployed stack.
type Outputs struct {
	FunctionName string `json:"function_name" yaml:"function_name"`
	BucketName   string `json:"bucket_name" yaml:"bucket_name"`
	SiteURL      string `json:"site_url" yaml:"site_url"`
	Region       string `json:"region" yaml:"region"`
}

// Env returns the outputs as environment assignments under prefix, in
// stable order.
func (o Outputs) Env(prefix string) []string {
	return []string{
		prefix + "_RENDER_BUCKET_NAME=" + o.BucketName,
		prefix + "_RENDER_FUNCTION_NAME=" + o.FunctionName,
		prefix + "_RENDER_REGION=" + o.Region,
		prefix + "_RENDER_SITE_URL=" + o.SiteURL,
	}
}

// Stack is a built, ordered set of resources. It is immutable once built.
type Stack struct {
	cfg       Config
	names     Names
	resources []Resource
	byID      map[string]int
	outputs   Outputs
}

// Build declares the stack for cfg with one site object per file.
func Build(cfg Config, files []site.File) (*Stack, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	names := NamesFor(cfg)

	layers := slices.Clone(cfg.Function.Layers)
	if len(layers) == 0 {
		table, err := HostedLayers()
		if err != nil {
			return nil, err
		}
		if layers, err = table.Resolve(cfg.Function.Architecture, cfg.Region); err != nil {
			return nil, err
		}
	}

	tags := map[string]string{"renderstack:stack": cfg.Name}
	maps.Copy(tags, cfg.Tags)

	declared := []Resource{
		{
			ID:   IDBucket,
			Kind: KindBucket,
			Spec: BucketSpec{Name: names.Bucket, Region: cfg.Region, ForceDestroy: cfg.ForceDestroy, Tags: tags},
		},
		{
			ID:        IDBucketOwnership,
			Kind:      KindBucketOwnership,
			DependsOn: []string{IDBucket},
			Spec:      OwnershipSpec{Bucket: names.Bucket, ObjectOwnership: "BucketOwnerPreferred"},
		},
		{
			// Object ACLs may grant public read; bucket policies may not.
			ID:        IDPublicAccessBlock,
			Kind:      KindPublicAccessBlock,
			DependsOn: []string{IDBucket},
			Spec: PublicAccessBlockSpec{
				Bucket:                names.Bucket,
				BlockPublicACLs:       false,
				IgnorePublicACLs:      false,
				BlockPublicPolicy:     true,
				RestrictPublicBuckets: true,
			},
		},
		{
			ID:        IDLifecycle,
			Kind:      KindLifecycle,
			DependsOn: []string{IDBucket},
			Spec:      LifecycleSpec{Bucket: names.Bucket, Rules: slices.Clone(RetentionRules)},
		},
		{
			ID:   IDPolicy,
			Kind: KindPolicy,
			Spec: PolicySpec{
				Name:        names.Policy,
				Description: "Render function access for stack " + cfg.Name,
				Document:    Document(executionGrants(cfg.Region, names)),
			},
		},
		{
			ID:   IDRole,
			Kind: KindRole,
			Spec: RoleSpec{Name: names.Role, AssumeRolePolicy: assumeRolePolicy(), Tags: tags},
		},
		{
			ID:        IDPolicyAttachment,
			Kind:      KindPolicyAttachment,
			DependsOn: []string{IDPolicy, IDRole},
			Spec:      AttachmentSpec{Role: names.Role, Policy: names.Policy},
		},
		{
			ID:        IDFunction,
			Kind:      KindFunction,
			DependsOn: []string{IDRole, IDPolicyAttachment},
			Spec: FunctionSpec{
				Name:                 names.Function,
				Description:          "Renders a video",
				Role:                 names.Role,
				Runtime:              cfg.Function.Runtime,
				Handler:              cfg.Function.Handler,
				Architecture:         cfg.Function.Architecture,
				MemorySizeInMB:       cfg.Function.MemorySizeInMB,
				TimeoutInSeconds:     cfg.Function.TimeoutInSeconds,
				EphemeralStorageInMB: cfg.Function.EphemeralStorageInMB,
				Archive:              cfg.Function.Archive,
				Layers:               layers,
				Tags:                 tags,
			},
		},
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		key := SiteKey(names.Site, f.Key)
		if seen[key] {
			return nil, &GraphError{Resource: siteObjectPrefix + f.Key, Err: ErrDuplicateID}
		}
		seen[key] = true

		contentType := f.ContentType
		if contentType == "" {
			contentType = site.ContentType(f.Key)
		}
		declared = append(declared, Resource{
			ID:        siteObjectPrefix + f.Key,
			Kind:      KindSiteObject,
			DependsOn: []string{IDBucket, IDBucketOwnership, IDPublicAccessBlock},
			Spec: ObjectSpec{
				Bucket:      names.Bucket,
				Key:         key,
				Source:      f.Path,
				Size:        f.Size,
				ContentType: contentType,
				ACL:         "public-read",
			},
		})
	}

	return newStack(cfg, names, declared)
}

func newStack(cfg Config, names Names, declared []Resource) (*Stack, error) {
	ordered, err := order(declared)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(ordered))
	for i, r := range ordered {
		byID[r.ID] = i
	}

	return &Stack{
		cfg:       cfg,
		names:     names,
		resources: ordered,
		byID:      byID,
		outputs: Outputs{
			FunctionName: names.Function,
			BucketName:   names.Bucket,
			SiteURL:      SiteURL(names.Bucket, cfg.Region, names.Site),
			Region:       cfg.Region,
		},
	}, nil
}

// SiteKey is the object key of a bundle file.
func SiteKey(siteName, rel string) string {
	return SitePrefix + siteName + "/" + strings.TrimPrefix(path.Clean("/"+rel), "/")
}

// SiteURL is the public URL of the site entry point.
func SiteURL(bucket, region, siteName string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%sindex.html", bucket, region, SitePrefix+siteName+"/")
}

// Config returns the defaulted configuration the stack was built from.
func (s *Stack) Config() Config { return s.cfg }

// Names returns the physical resource names.
func (s *Stack) Names() Names { return s.names }

// Outputs returns the stack outputs.
func (s *Stack) Outputs() Outputs { return s.outputs }

// Resources returns all resources in dependency order.
func (s *Stack) Resources() []Resource {
	return slices.Clone(s.resources)
}

// Resource looks up a resource by ID.
func (s *Stack) Resource(id string) (Resource, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Resource{}, false
	}
	return s.resources[i], true
}

// Position returns the index of id in dependency order, or -1.
func (s *Stack) Position(id string) int {
	if i, ok := s.byID[id]; ok {
		return i
	}
	return -1
}

// Waves groups resources into batches that can be applied concurrently,
// each after all earlier batches.
func (s *Stack) Waves() [][]Resource {
	return waves(s.resources)
}

// SiteObjects returns the site object specs sorted by key.
func (s *Stack) SiteObjects() []ObjectSpec {
	var objs []ObjectSpec
	for _, r := range s.resources {
		if o, ok := r.Spec.(ObjectSpec); ok {
			objs = append(objs, o)
		}
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	return objs
}

// Permissions returns the minimal grants a caller needs to invoke the
// function and read and write the bucket.
func (s *Stack) Permissions() []Grant {
	return callerGrants(s.cfg.Region, s.names)
}

// ManagementPermissions returns the grants an operator needs to deploy,
// inspect and remove the stack.
func (s *Stack) ManagementPermissions() []Grant {
	return managementGrants(s.cfg.Region, s.names)
}
