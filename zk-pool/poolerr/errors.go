package poolerr

import (
	"errors"
	"strings"
)

// Rejections caused by the submitted transaction. None of them is retryable.
var (
	ErrAuthSignatureInvalid       = errors.New("S1|AuthSignatureInvalid: spend auth signature failed to verify")
	ErrProofInvalid               = errors.New("S2|ProofInvalid: spend proof did not verify")
	ErrNullifierAlreadySpent      = errors.New("S3|NullifierAlreadySpent: nullifier was already spent")
	ErrDuplicateNullifierInBuffer = errors.New("S4|DuplicateNullifierInBuffer: nullifier is already staged in this transaction")
	ErrUnknownAnchor              = errors.New("S5|UnknownAnchor: claimed anchor is not a historical note commitment root")
	ErrEmptyTransaction           = errors.New("T1|EmptyTransaction: transaction has no actions")
	ErrChainIDMismatch            = errors.New("T2|ChainIDMismatch: transaction is for another chain")
	ErrUnknownAction              = errors.New("T3|UnknownAction: action kind is not supported")
	ErrMalformed                  = errors.New("T4|Malformed: malformed encoding")
)

// Internal failures.
var (
	ErrPreconditionViolation = errors.New("X1|PreconditionViolation: internal invariant violated")
	ErrTreeFull              = errors.New("X2|TreeFull: note commitment tree is full")
	ErrScopeClosed           = errors.New("X3|ScopeClosed: write scope was already committed or discarded")
)

var all = []error{
	ErrAuthSignatureInvalid,
	ErrProofInvalid,
	ErrNullifierAlreadySpent,
	ErrDuplicateNullifierInBuffer,
	ErrUnknownAnchor,
	ErrEmptyTransaction,
	ErrChainIDMismatch,
	ErrUnknownAction,
	ErrMalformed,
	ErrPreconditionViolation,
	ErrTreeFull,
	ErrScopeClosed,
}

// IsFatal reports whether err must abort the enclosing batch instead of just
// rejecting one transaction.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPreconditionViolation)
}

// Code returns the stable name of the first known error in err's chain,
// e.g. "NullifierAlreadySpent". Unknown errors map to "Internal".
func Code(err error) string {
	if err == nil {
		return "OK"
	}
	for _, e := range all {
		if errors.Is(err, e) {
			return name(e)
		}
	}
	return "Internal"
}

func name(e error) string {
	s := e.Error()
	if i := strings.IndexByte(s, '|'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}
