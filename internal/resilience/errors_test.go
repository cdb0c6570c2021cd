package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("workbook locked"), "open workbook")
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("locked"), "open workbook")
	wrapped := fmt.Errorf("extract failed: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	err := errors.New("invalid input: missing field")
	if IsTransient(err) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_ConnectionReset(t *testing.T) {
	err := fmt.Errorf("write tcp: %w", syscall.ECONNRESET)
	if !IsTransient(err) {
		t.Error("ECONNRESET should be transient")
	}
}

func TestIsTransient_ConnectionRefused(t *testing.T) {
	err := fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
	if !IsTransient(err) {
		t.Error("ECONNREFUSED should be transient")
	}
}

func TestIsTransient_FileBusy(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.EAGAIN, syscall.EBUSY, syscall.ETXTBSY} {
		err := fmt.Errorf("open BDC_2023.xlsx: %w", errno)
		if !IsTransient(err) {
			t.Errorf("expected %v to be transient", errno)
		}
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_PostgresCodes(t *testing.T) {
	transient := []string{"40001", "40P01", "57P01", "08006", "08001", "53300"}
	for _, code := range transient {
		err := fmt.Errorf("load: %w", &pgconn.PgError{Code: code})
		if !IsTransient(err) {
			t.Errorf("expected SQLSTATE %s to be transient", code)
		}
	}

	permanent := []string{"23505", "42P01", "23503", "22P02"}
	for _, code := range permanent {
		err := &pgconn.PgError{Code: code}
		if IsTransient(err) {
			t.Errorf("expected SQLSTATE %s to be permanent", code)
		}
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"The process cannot access the file because it is being used by another process",
		"resource temporarily unavailable",
	}
	for _, p := range patterns {
		err := errors.New(p)
		if !IsTransient(err) {
			t.Errorf("expected %q to be transient", p)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, "connect")

	if !errors.Is(te, inner) {
		t.Error("TransientError.Unwrap should return the inner error")
	}
}

func TestTransientError_ErrorMessage(t *testing.T) {
	inner := errors.New("something went wrong")

	if got := NewTransientError(inner, "").Error(); got != "something went wrong" {
		t.Errorf("expected error message %q, got %q", inner.Error(), got)
	}
	if got := NewTransientError(inner, "connect").Error(); got != "connect: something went wrong" {
		t.Errorf("unexpected message %q", got)
	}
}
