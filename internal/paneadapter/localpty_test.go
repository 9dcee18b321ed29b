package paneadapter

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalPTYCaptureAndSend(t *testing.T) {
	l, err := StartLocalPTY("cat")
	if err != nil {
		t.Fatalf("StartLocalPTY: %v", err)
	}
	defer l.Close() //nolint:errcheck

	ctx := context.Background()
	if err := l.Send(ctx, "hello", true); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var lines []string
	for time.Now().Before(deadline) {
		lines, err = l.CaptureRecent(ctx, 10)
		if err != nil {
			t.Fatalf("CaptureRecent: %v", err)
		}
		if len(lines) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	found := false
	for _, line := range lines {
		if strings.Contains(line, "hello") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected captured output to contain echoed input, got %v", lines)
	}
}

func TestLocalPTYAliveAfterClose(t *testing.T) {
	l, err := StartLocalPTY("cat")
	if err != nil {
		t.Fatalf("StartLocalPTY: %v", err)
	}

	if !l.Alive(context.Background()) {
		t.Fatal("expected pty to be alive right after start")
	}

	_ = l.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && l.Alive(context.Background()) {
		time.Sleep(20 * time.Millisecond)
	}
	if l.Alive(context.Background()) {
		t.Fatal("expected pty to report dead after Close")
	}
}
