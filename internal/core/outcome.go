package core

import "fmt"

// Kind classifies how an operation ended.
type Kind int

const (
	// KindSuccess is a status code in [200, 300).
	KindSuccess Kind = iota
	// KindFailureStatus is any other status code.
	KindFailureStatus
	// KindTransportFailure means no status code was obtained at all.
	KindTransportFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailureStatus:
		return "failure_status"
	case KindTransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the classified result of one operation. Code is zero for
// transport failures, Err is nil for everything else.
type Outcome struct {
	Kind Kind
	Code int
	Err  error
}

// Success reports whether the outcome counts as a success.
func (o Outcome) Success() bool {
	return o.Kind == KindSuccess
}

// Classify maps the raw return of an Operation to an Outcome.
func Classify(code int, err error) Outcome {
	switch {
	case err != nil:
		return Outcome{Kind: KindTransportFailure, Err: err}
	case code >= 200 && code < 300:
		return Outcome{Kind: KindSuccess, Code: code}
	default:
		return Outcome{Kind: KindFailureStatus, Code: code}
	}
}
