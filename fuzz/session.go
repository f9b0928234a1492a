package fuzz

// DefaultMaxExceptions is the number of tolerated remote exceptions after
// which testing moves on to the next method.
const DefaultMaxExceptions = 50

// Session is the mutable state scoped to the test of one method.
type Session struct {
	maxExceptions int
	exceptions    int

	unsupported    bool
	unsupportedSig string
}

func NewSession(maxExceptions int) *Session {
	if maxExceptions <= 0 {
		maxExceptions = DefaultMaxExceptions
	}
	return &Session{maxExceptions: maxExceptions}
}

// RecordException counts one tolerated remote exception.
func (s *Session) RecordException() {
	if s.exceptions < s.maxExceptions {
		s.exceptions++
	}
}

func (s *Session) Exceptions() int {
	return s.exceptions
}

func (s *Session) MaxExceptions() int {
	return s.maxExceptions
}

// ExceptionCapReached reports whether the loop has to stop for this method.
func (s *Session) ExceptionCapReached() bool {
	return s.exceptions >= s.maxExceptions
}

func (s *Session) ResetExceptions() {
	s.exceptions = 0
}

func (s *Session) flagUnsupported(sig string) {
	s.unsupported = true
	s.unsupportedSig = sig
}

// Unsupported reports whether a compound signature is pending.
func (s *Session) Unsupported() bool {
	return s.unsupported
}

// TakeUnsupported consumes the unsupported signature signal.
func (s *Session) TakeUnsupported() (string, bool) {
	if !s.unsupported {
		return "", false
	}
	sig := s.unsupportedSig
	s.unsupported = false
	s.unsupportedSig = ""
	return sig, true
}

// Reset prepares the session for the next method.
func (s *Session) Reset() {
	s.exceptions = 0
	s.unsupported = false
	s.unsupportedSig = ""
}
