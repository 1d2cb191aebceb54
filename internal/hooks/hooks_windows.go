//go:build windows

package hooks

import (
	"bytes"
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runHook executes the hook and enforces a timeout on Windows. Windows lacks
// Unix-style process groups, so on timeout this only kills the immediate
// process; detached descendants may survive it.
func (r *Runner) runHook(hookPath string, payload Payload) (retErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	tracer := otel.Tracer("github.com/dwops/etl-core/hooks")
	ctx, span := tracer.Start(ctx, "hook.exec",
		trace.WithAttributes(
			attribute.String("hook.event", payload.Event),
			attribute.String("hook.path", hookPath),
			attribute.String("etl.source", payload.Source),
		),
	)
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	body, err := payloadJSON(payload)
	if err != nil {
		return err
	}

	cmd := prepareCmd(ctx, hookPath, payload, body)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		addHookOutputEvents(span, &stdout, &stderr)
		return ctx.Err()
	case err := <-done:
		addHookOutputEvents(span, &stdout, &stderr)
		return err
	}
}
