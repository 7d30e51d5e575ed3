package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
)

// Reporter forwards failures to Sentry. A Reporter built without a DSN does
// nothing, so callers never need to check.
type Reporter struct {
	enabled bool
	logger  *log.Logger
}

// NewReporter initializes the Sentry client when dsn is set
func NewReporter(dsn, environment, release string, logger *log.Logger) (*Reporter, error) {
	return NewReporterWithOptions(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	}, logger)
}

// NewReporterWithOptions initializes Sentry with explicit client options
func NewReporterWithOptions(opts sentry.ClientOptions, logger *log.Logger) (*Reporter, error) {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Dsn == "" {
		return &Reporter{logger: logger}, nil
	}
	if err := sentry.Init(opts); err != nil {
		return &Reporter{logger: logger}, fmt.Errorf("sentry init: %w", err)
	}
	logger.Debug("error reporting enabled", "environment", opts.Environment)
	return &Reporter{enabled: true, logger: logger}, nil
}

// Enabled reports whether events are sent anywhere
func (r *Reporter) Enabled() bool {
	return r != nil && r.enabled
}

// CaptureError reports err with the given tags
func (r *Reporter) CaptureError(err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Breadcrumb records a lifecycle step attached to later reports
func (r *Reporter) Breadcrumb(category, message string) {
	if !r.Enabled() {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Level:    sentry.LevelInfo,
	})
}

// RecordPresetPush records how long a full preset push took
func (r *Reporter) RecordPresetPush(ctx context.Context, presetName string, tracks int, duration time.Duration, success bool) {
	if !r.Enabled() {
		return
	}

	span := sentry.StartSpan(ctx, "preset.push")
	defer span.Finish()

	span.SetTag("success", fmt.Sprintf("%t", success))
	span.SetData("preset", presetName)
	span.SetData("tracks", tracks)
	span.SetData("duration_ms", duration.Milliseconds())

	if success {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}
	span.Description = fmt.Sprintf("Preset Push: %s", presetName)
}

// Flush waits for queued events to be delivered
func (r *Reporter) Flush(timeout time.Duration) {
	if !r.Enabled() {
		return
	}
	if !sentry.Flush(timeout) {
		r.logger.Warn("error reports not delivered before shutdown")
	}
}
