package fuzz

// Outcome classifies one invocation and, as part of a Verdict, one method
// test.
type Outcome int

const (
	Success Outcome = iota
	RemoteExceptionTolerated
	RemoteNoReplyOrTimeout
	VoidContractViolated
	TargetCrashed
	HealthCheckFailed
	UnsupportedSignatureSkipped
	InternalErrorOutcome
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case RemoteExceptionTolerated:
		return "RemoteExceptionTolerated"
	case RemoteNoReplyOrTimeout:
		return "RemoteNoReplyOrTimeout"
	case VoidContractViolated:
		return "VoidContractViolated"
	case TargetCrashed:
		return "TargetCrashed"
	case HealthCheckFailed:
		return "HealthCheckFailed"
	case UnsupportedSignatureSkipped:
		return "UnsupportedSignatureSkipped"
	case InternalErrorOutcome:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Method verdict codes, also used as process exit status.
const (
	CodeSuccess        = 0
	CodeCrash          = 1
	CodeVoidViolation  = 2
	CodeWarning        = 3 // reserved for warning level outcomes
	CodeCommandFailure = 4
	CodeInternalError  = -1
)

// Code maps an outcome onto the verdict code taxonomy.
func (o Outcome) Code() int {
	switch o {
	case Success, RemoteExceptionTolerated, UnsupportedSignatureSkipped:
		return CodeSuccess
	case RemoteNoReplyOrTimeout, TargetCrashed:
		return CodeCrash
	case VoidContractViolated:
		return CodeVoidViolation
	case HealthCheckFailed:
		return CodeCommandFailure
	default:
		return CodeInternalError
	}
}

// Failed reports whether the outcome fails the method.
func (o Outcome) Failed() bool {
	return o.Code() != CodeSuccess
}

// Verdict is the single result of testing one method.
type Verdict struct {
	Method  string
	Outcome Outcome
	// SkipReason is set when the method was not (fully) exercised: compound
	// signature, access denied, suppressed.
	SkipReason string
	// Iterations is the number of calls that were sent.
	Iterations int
	// Status is the exit status of a failed health check.
	Status int
	// Reproducer is the command line re-running only this method; set on
	// failing verdicts.
	Reproducer string
	// Artifact is the path of the stored failing input, if any.
	Artifact string
	Err      error
}

func (v Verdict) Code() int {
	return v.Outcome.Code()
}

func (v Verdict) Failed() bool {
	return v.Outcome.Failed()
}

func (v Verdict) Skipped() bool {
	return v.SkipReason != ""
}

// Label is the short console label for the verdict.
func (v Verdict) Label() string {
	switch {
	case v.Failed():
		return "FAIL"
	case v.Skipped():
		return "SKIP"
	default:
		return "PASS"
	}
}
