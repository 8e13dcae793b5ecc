package otel

import (
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// endpointExcluder drops spans for excluded http targets and applies a
// trace-id ratio to everything else.
type endpointExcluder struct {
	endpoints map[string]struct{}
	ratio     sdktrace.Sampler
}

func newEndpointExcluder(endpoints map[string]struct{}, probability float64) endpointExcluder {
	return endpointExcluder{
		endpoints: endpoints,
		ratio:     sdktrace.TraceIDRatioBased(probability),
	}
}

// ShouldSample implements the sampler interface. It checks if the http target
// for the span is in the excluded list before delegating to the ratio sampler.
func (ee endpointExcluder) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for i := range params.Attributes {
		if params.Attributes[i].Key == semconv.HTTPTargetKey {
			if _, exists := ee.endpoints[params.Attributes[i].Value.AsString()]; exists {
				return sdktrace.SamplingResult{Decision: sdktrace.Drop}
			}
		}
	}

	return ee.ratio.ShouldSample(params)
}

// Description implements the sampler interface.
func (endpointExcluder) Description() string {
	return "endpointExcluder"
}
