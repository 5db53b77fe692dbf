package errors

// Error codes for the future-publish contracts. Keep stable; used across adapters, schedulers and the bus.
const (
	ErrCodeNilMessage              = "futurepublish.nil_message"
	ErrCodeTopologyConflict        = "futurepublish.topology_conflict"
	ErrCodeDeclareFailed           = "futurepublish.declare_failed"
	ErrCodePublishFailed           = "futurepublish.publish_failed"
	ErrCodeSerializationFailed     = "futurepublish.serialization_failed"
	ErrCodeUnknownTypeName         = "futurepublish.unknown_type_name"
	ErrCodeSchedulerNotConfigured  = "futurepublish.scheduler_not_configured"
	ErrCodePublishNotConfigured    = "futurepublish.publish_not_configured"
	ErrCodeCancellationUnsupported = "futurepublish.cancellation_unsupported"
	ErrCodeInvalidConfig           = "futurepublish.invalid_config"
	ErrCodeInvalidDelay            = "futurepublish.invalid_delay"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	// ErrNilMessage rejects a nil message before any broker interaction.
	ErrNilMessage = Code(ErrCodeNilMessage)
	// ErrTopologyConflict reports a declare refused because a resource with the same name
	// exists with different attributes.
	ErrTopologyConflict        = Code(ErrCodeTopologyConflict)
	ErrDeclareFailed           = Code(ErrCodeDeclareFailed)
	ErrPublishFailed           = Code(ErrCodePublishFailed)
	ErrSerializationFailed     = Code(ErrCodeSerializationFailed)
	ErrUnknownTypeName         = Code(ErrCodeUnknownTypeName)
	ErrSchedulerNotConfigured  = Code(ErrCodeSchedulerNotConfigured)
	ErrPublishNotConfigured    = Code(ErrCodePublishNotConfigured)
	ErrCancellationUnsupported = Code(ErrCodeCancellationUnsupported)
	ErrInvalidConfig           = Code(ErrCodeInvalidConfig)
	// ErrInvalidDelay reports a delay the broker cannot express as a queue TTL.
	ErrInvalidDelay = Code(ErrCodeInvalidDelay)
)
