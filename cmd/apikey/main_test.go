package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"notebook/internal/middleware"
)

func TestRunTokenMintsVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	var out bytes.Buffer
	now := func() time.Time { return time.Now() }
	if err := runToken([]string{"-sub", "client-9", "-locale", "id", "-ttl", "1h"}, &out, now); err != nil {
		t.Fatalf("runToken error: %v", err)
	}
	claims, err := middleware.VerifyJWT("s3cret", strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("VerifyJWT error: %v", err)
	}
	if claims.Sub != "client-9" || claims.Locale != "id" || claims.Exp == 0 {
		t.Fatalf("claims = %#v", claims)
	}
}

func TestRunTokenRequiresSecretAndSubject(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if err := runToken([]string{"-sub", "x"}, &bytes.Buffer{}, time.Now); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
	t.Setenv("JWT_SECRET", "s3cret")
	if err := runToken(nil, &bytes.Buffer{}, time.Now); err == nil {
		t.Fatal("expected error without subject")
	}
}

func TestRunRejectsUnknownInput(t *testing.T) {
	if err := run(nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected usage error")
	}
	if err := run([]string{"rotate"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected unknown command error")
	}
	if err := run([]string{"set", "-provider", "qwen", "-key", "k"}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "unsupported provider") {
		t.Fatalf("unexpected error: %v", err)
	}
}
