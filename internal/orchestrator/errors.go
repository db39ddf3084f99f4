package orchestrator

import "errors"

// Kind classifies a failed checkin
type Kind int

const (
	KindNoChanges Kind = iota + 1
	KindPolicyRejected
	KindOverrideReasonRequired
	KindCheckinFailed
)

func (k Kind) String() string {
	switch k {
	case KindNoChanges:
		return "NoChanges"
	case KindPolicyRejected:
		return "PolicyRejected"
	case KindOverrideReasonRequired:
		return "OverrideReasonRequired"
	case KindCheckinFailed:
		return "CheckinFailed"
	default:
		return "Unknown"
	}
}

// Message is the operator-facing text for the kind.
func (k Kind) Message() string {
	switch k {
	case KindNoChanges:
		return "Nothing to checkin!"
	case KindPolicyRejected:
		return "No changes checked in."
	case KindOverrideReasonRequired:
		return "A reason must be supplied (-f REASON) to override the policy violations."
	case KindCheckinFailed:
		return "Checkin failed!"
	default:
		return "unknown checkin error"
	}
}

// Error is a gate failure. Failures holds the policy failures that led to
// it, if any; Err holds the submission error behind a CheckinFailed.
type Error struct {
	Kind     Kind
	Failures []PolicyFailure
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.Message() + ": " + e.Err.Error()
	}
	return e.Kind.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Gate failure sentinels for errors.Is.
var (
	ErrNoChanges              = &Error{Kind: KindNoChanges}
	ErrPolicyRejected         = &Error{Kind: KindPolicyRejected}
	ErrOverrideReasonRequired = &Error{Kind: KindOverrideReasonRequired}
	ErrCheckinFailed          = &Error{Kind: KindCheckinFailed}
)

// Configuration errors.
var (
	ErrNilDiscoverer = errors.New("discoverer is required")
	ErrNilEvaluator  = errors.New("evaluator is required")
	ErrNilSubmitter  = errors.New("submitter is required")
)

// KindOf returns the Kind of a gate failure, or 0 if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
