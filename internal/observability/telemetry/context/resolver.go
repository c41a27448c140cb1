package telemetrycontext

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/tiger/robomaker-sim-launcher/internal/observability/telemetry"
)

const defaultEmitter = "simlauncher"

// Resolver fills correlation fields the step handlers cannot know themselves,
// such as the invocation request id.
type Resolver struct {
	DefaultEmitter string
}

// NewResolver returns canonical correlation resolver defaults.
func NewResolver() Resolver {
	return Resolver{DefaultEmitter: defaultEmitter}
}

// Resolve returns in enriched from ctx with the default resolver.
func Resolve(ctx context.Context, in telemetry.Correlation) telemetry.Correlation {
	return NewResolver().Resolve(ctx, in)
}

// Resolve returns normalized correlation values. Fields already set on in win
// over values found in ctx.
func (r Resolver) Resolve(ctx context.Context, in telemetry.Correlation) telemetry.Correlation {
	out := in
	out.PipelineJobID = strings.TrimSpace(in.PipelineJobID)
	out.BatchArn = strings.TrimSpace(in.BatchArn)
	out.ExecutionArn = strings.TrimSpace(in.ExecutionArn)
	out.RequestID = strings.TrimSpace(in.RequestID)
	out.EmittedBy = firstNonEmpty(strings.TrimSpace(in.EmittedBy), strings.TrimSpace(r.DefaultEmitter), defaultEmitter)

	if ctx != nil && out.RequestID == "" {
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			out.RequestID = strings.TrimSpace(lc.AwsRequestID)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
