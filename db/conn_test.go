package db

import (
	"context"
	"errors"
	"testing"
)

func TestNewPool_EmptyURL(t *testing.T) {
	_, err := NewPool(context.Background(), Config{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNewPool_BadURL(t *testing.T) {
	_, err := NewPool(context.Background(), Config{URL: "postgres://%zz"})
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
	if errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected parse error, got %v", err)
	}
}
