package telemetry

import "time"

// StepSpan times one step-handler invocation.
type StepSpan struct {
	emitter     Emitter
	name        string
	correlation Correlation
	start       time.Time
}

// StartStep begins timing step on emitter (the default emitter when nil).
func StartStep(emitter Emitter, step string, correlation Correlation) *StepSpan {
	if emitter == nil {
		emitter = DefaultEmitter()
	}
	correlation.Step = step
	return &StepSpan{emitter: emitter, name: step, correlation: correlation, start: time.Now()}
}

// Correlation returns the span correlation, including the step name.
func (s *StepSpan) Correlation() Correlation {
	return s.correlation
}

// SetBatchArn attaches the batch handle once it is known.
func (s *StepSpan) SetBatchArn(arn string) {
	s.correlation.BatchArn = arn
}

// Log emits a log event correlated with the step.
func (s *StepSpan) Log(severity, name, message string, attributes map[string]string) {
	s.emitter.EmitLog(name, severity, message, attributes, s.correlation)
}

// Metric emits a metric sample correlated with the step.
func (s *StepSpan) Metric(name string, value float64, unit string, attributes map[string]string) {
	s.emitter.EmitMetric(name, value, unit, attributes, s.correlation)
}

// End emits the step span and its latency.
func (s *StepSpan) End(result string) {
	end := time.Now()
	attrs := map[string]string{"result": result}
	s.emitter.EmitSpan(s.name, "step", s.start.UnixMilli(), end.UnixMilli(), attrs, s.correlation)
	s.emitter.EmitMetric(MetricStepLatencyMS, float64(end.Sub(s.start).Milliseconds()), "ms", attrs, s.correlation)
}
