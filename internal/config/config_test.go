package config

import "testing"

func TestNewAppliesDefaults(t *testing.T) {
	c := New()
	if c.Threads != DefaultThreads {
		t.Errorf("Threads = %d, want %d", c.Threads, DefaultThreads)
	}
	if c.RetryCount != DefaultRetryCount {
		t.Errorf("RetryCount = %d, want %d", c.RetryCount, DefaultRetryCount)
	}
	if c.Quality != DefaultQuality {
		t.Errorf("Quality = %q, want %q", c.Quality, DefaultQuality)
	}
}

func TestValidateRequiresBaseURL(t *testing.T) {
	c := New()
	if err := c.Validate(); err != ErrMissingURL {
		t.Fatalf("got %v, want ErrMissingURL", err)
	}
}

func TestValidateRejectsOutOfRangeThreads(t *testing.T) {
	c := New()
	c.BaseURL = "https://example.com/master.m3u8"
	c.Threads = 32
	if err := c.Validate(); err != ErrInvalidThreads {
		t.Fatalf("got %v, want ErrInvalidThreads", err)
	}
}

func TestValidateDefaultsZeroThreads(t *testing.T) {
	c := New()
	c.BaseURL = "https://example.com/master.m3u8"
	c.Threads = 0
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.Threads != DefaultThreads {
		t.Errorf("Threads = %d, want %d", c.Threads, DefaultThreads)
	}
}

func TestValidateRejectsConflictingPromptFlags(t *testing.T) {
	c := New()
	c.BaseURL = "https://example.com/master.m3u8"
	c.RawPrompts = true
	c.SkipPrompts = true
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for mutually exclusive prompt flags")
	}
}
