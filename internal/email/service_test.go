package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderStatusTemplate(t *testing.T) {
	html, err := renderTemplate(statusEmailTemplate, StatusData{
		AppName:   "IdeaFlow",
		IdeaTitle: "Solar <panels>",
		Status:    "approved",
		Feedback:  "Great work",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if !strings.Contains(html, "Solar &lt;panels&gt;") {
		t.Error("template should escape the idea title")
	}
	if !strings.Contains(html, "Great work") {
		t.Error("template should contain feedback")
	}

	noFeedback, err := renderTemplate(statusEmailTemplate, StatusData{AppName: "IdeaFlow", IdeaTitle: "x", Status: "rejected"})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if strings.Contains(noFeedback, "Reviewer feedback") {
		t.Error("feedback block should be omitted when empty")
	}
}

func TestSendStatusEmail(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", FromName: "IdeaFlow"})

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	svc.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := svc.SendStatusEmail("owner@example.edu", "Solar panels", "approved", "Nice"); err != nil {
		t.Fatalf("SendStatusEmail: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "owner@example.edu" {
		t.Errorf("to = %v", gotTo)
	}
	if !strings.Contains(gotMsg, `Subject: Your idea "Solar panels" was approved`) {
		t.Errorf("missing subject in %q", gotMsg)
	}
	if !strings.Contains(gotMsg, "From: IdeaFlow <noreply@example.com>") {
		t.Errorf("missing from header in %q", gotMsg)
	}
}

func TestSendStatusEmailErrors(t *testing.T) {
	unconfigured := NewService(Config{})
	if err := unconfigured.SendStatusEmail("a@b.c", "t", "approved", ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	svc := NewService(Config{Host: "h", Port: "25", From: "f@x"})
	svc.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }
	if err := svc.SendStatusEmail("a@b.c", "t", "rejected", ""); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected smtp error, got %v", err)
	}
	if err := svc.SendStatusEmail(" ", "t", "rejected", ""); err == nil {
		t.Fatal("expected error for empty recipient")
	}
}
