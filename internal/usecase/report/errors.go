package report

import "errors"

// Sentinel errors for report dispatching.
var (
	// ErrChannelDisabled indicates that Send() was called on a disabled channel.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrInvalidReport indicates a nil report.
	ErrInvalidReport = errors.New("invalid report")

	// ErrReportDropped indicates that a report was not posted because the worker
	// pool stayed saturated. The report is still logged and persisted.
	ErrReportDropped = errors.New("report dropped due to pool saturation")
)
