package awsapply

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"go.uber.org/zap"

	"github.com/3leaps/renderstack/pkg/provider"
	"github.com/3leaps/renderstack/pkg/provision"
)

func readArchive(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxArchiveBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrArchiveTooLarge, path, info.Size(), MaxArchiveBytes)
	}
	return os.ReadFile(path)
}

func (a *Applier) applyFunction(ctx context.Context, r *run, spec provision.FunctionSpec) (Action, error) {
	roleARN, ok := r.roleARN(spec.Role)
	if !ok {
		return "", fmt.Errorf("role %q not applied", spec.Role)
	}
	zip, err := a.readArchive(spec.Archive)
	if err != nil {
		return "", err
	}

	_, err = a.clients.Lambda.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(spec.Name)})
	if err == nil {
		return ActionUpdated, a.updateFunction(ctx, spec, roleARN, zip)
	}
	if err = provider.Wrap(provider.ServiceLambda, "GetFunction", spec.Name, err); !provider.IsNotFound(err) {
		return "", err
	}
	return ActionCreated, a.createFunction(ctx, spec, roleARN, zip)
}

// createFunction retries while a freshly created role is not yet assumable
// by Lambda, which surfaces as an invalid parameter.
func (a *Applier) createFunction(ctx context.Context, spec provision.FunctionSpec, roleARN string, zip []byte) error {
	in := &lambda.CreateFunctionInput{
		FunctionName:     aws.String(spec.Name),
		Description:      aws.String(spec.Description),
		Role:             aws.String(roleARN),
		Runtime:          types.Runtime(spec.Runtime),
		Handler:          aws.String(spec.Handler),
		Architectures:    []types.Architecture{types.Architecture(spec.Architecture)},
		MemorySize:       aws.Int32(spec.MemorySizeInMB),
		Timeout:          aws.Int32(spec.TimeoutInSeconds),
		EphemeralStorage: &types.EphemeralStorage{Size: aws.Int32(spec.EphemeralStorageInMB)},
		Layers:           spec.Layers,
		Code:             &types.FunctionCode{ZipFile: zip},
		Tags:             spec.Tags,
	}

	for attempt := 0; ; attempt++ {
		_, err := a.clients.Lambda.CreateFunction(ctx, in)
		if err == nil {
			break
		}
		err = provider.Wrap(provider.ServiceLambda, "CreateFunction", spec.Name, err)
		if !provider.IsInvalidParameter(err) || attempt >= a.roleRetries {
			return err
		}

		a.logger.Debug("function create rejected, retrying",
			zap.String("function", spec.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.roleRetryDelay):
		}
	}

	err := lambda.NewFunctionActiveV2Waiter(a.clients.Lambda).Wait(ctx,
		&lambda.GetFunctionInput{FunctionName: aws.String(spec.Name)}, a.waitTimeout)
	return provider.Wrap(provider.ServiceLambda, "WaitActive", spec.Name, err)
}

func (a *Applier) updateFunction(ctx context.Context, spec provision.FunctionSpec, roleARN string, zip []byte) error {
	_, err := a.clients.Lambda.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName:  aws.String(spec.Name),
		ZipFile:       zip,
		Architectures: []types.Architecture{types.Architecture(spec.Architecture)},
	})
	if err != nil {
		return provider.Wrap(provider.ServiceLambda, "UpdateFunctionCode", spec.Name, err)
	}
	if err := a.waitUpdated(ctx, spec.Name); err != nil {
		return err
	}

	_, err = a.clients.Lambda.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName:     aws.String(spec.Name),
		Description:      aws.String(spec.Description),
		Role:             aws.String(roleARN),
		Runtime:          types.Runtime(spec.Runtime),
		Handler:          aws.String(spec.Handler),
		MemorySize:       aws.Int32(spec.MemorySizeInMB),
		Timeout:          aws.Int32(spec.TimeoutInSeconds),
		EphemeralStorage: &types.EphemeralStorage{Size: aws.Int32(spec.EphemeralStorageInMB)},
		Layers:           spec.Layers,
	})
	if err != nil {
		return provider.Wrap(provider.ServiceLambda, "UpdateFunctionConfiguration", spec.Name, err)
	}
	return a.waitUpdated(ctx, spec.Name)
}

func (a *Applier) waitUpdated(ctx context.Context, name string) error {
	err := lambda.NewFunctionUpdatedV2Waiter(a.clients.Lambda).Wait(ctx,
		&lambda.GetFunctionInput{FunctionName: aws.String(name)}, a.waitTimeout)
	return provider.Wrap(provider.ServiceLambda, "WaitUpdated", name, err)
}

func (a *Applier) deleteFunction(ctx context.Context, spec provision.FunctionSpec) (Action, error) {
	_, err := a.clients.Lambda.DeleteFunction(ctx, &lambda.DeleteFunctionInput{FunctionName: aws.String(spec.Name)})
	return deleted(provider.Wrap(provider.ServiceLambda, "DeleteFunction", spec.Name, err))
}
