package bus

import (
	"time"
)

// CallStartedPayload is emitted as "<op>.started" by Instrument.
type CallStartedPayload struct {
	Op   string                 `json:"op"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// CallCompletedPayload is emitted as "<op>.completed" by Instrument.
type CallCompletedPayload struct {
	Op         string                 `json:"op"`
	DurationMs int64                  `json:"duration_ms"`
	Args       map[string]interface{} `json:"args,omitempty"`
}

// CallFailedPayload is emitted as "<op>.failed" by Instrument.
type CallFailedPayload struct {
	Op         string                 `json:"op"`
	DurationMs int64                  `json:"duration_ms"`
	Error      string                 `json:"error"`
	Args       map[string]interface{} `json:"args,omitempty"`
}

// Instrument wraps an operation with automatic start/success/failure events:
// "<op>.started" before the call, then "<op>.completed" or "<op>.failed" with
// the call's duration. The wrapped function's result and error pass through
// unchanged, so observability is retrofitted without touching the operation.
func Instrument[T any](b *Bus, op string, args map[string]interface{}, fn func() (T, error)) (T, error) {
	b.Emit(op+".started", CallStartedPayload{Op: op, Args: args})
	start := time.Now()

	result, err := fn()
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		b.Emit(op+".failed", CallFailedPayload{
			Op:         op,
			DurationMs: elapsed,
			Error:      err.Error(),
			Args:       args,
		})
		return result, err
	}

	b.Emit(op+".completed", CallCompletedPayload{
		Op:         op,
		DurationMs: elapsed,
		Args:       args,
	})
	return result, nil
}

// InstrumentErr is Instrument for operations that return only an error.
func InstrumentErr(b *Bus, op string, args map[string]interface{}, fn func() error) error {
	_, err := Instrument(b, op, args, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
