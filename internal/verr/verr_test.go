package verr

import (
	"errors"
	"testing"
)

func TestNetworkErrorUnwrapsForErrorsAs(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := &NetworkError{URL: "http://example.com/seg.ts", Transient: true, Err: base}

	var target *NetworkError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to match *NetworkError")
	}
	if !target.Transient {
		t.Fatal("expected Transient to be true")
	}
	if !errors.Is(wrapped, base) {
		t.Fatal("errors.Is failed to match the wrapped base error")
	}
}

func TestDecryptionErrorMessageIncludesKID(t *testing.T) {
	err := &DecryptionError{KID: "abc123", Err: errors.New("missing key")}
	got := err.Error()
	if got != "decryption: kid abc123: missing key" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestDecryptionErrorMessageOmitsEmptyKID(t *testing.T) {
	err := &DecryptionError{Err: errors.New("unsupported method")}
	got := err.Error()
	if got != "decryption: unsupported method" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestMuxErrorIncludesStderr(t *testing.T) {
	err := &MuxError{Stderr: "Unknown encoder 'foo'", Err: errors.New("exit status 1")}
	got := err.Error()
	if got != "mux: exit status 1: Unknown encoder 'foo'" {
		t.Fatalf("unexpected message: %q", got)
	}
}
