package gemini

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/whenthere/pkg/httpcache"
	"github.com/codeGROOVE-dev/whenthere/pkg/lookup"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"plain", `{"places": []}`, `{"places": []}`, false},
		{"json fence", "Here you go:\n```json\n{\"places\": []}\n```", `{"places": []}`, false},
		{"bare fence", "```\n{\"places\": []}\n```", `{"places": []}`, false},
		{"surrounded by prose", `Sure! {"places": []} Hope that helps.`, `{"places": []}`, false},
		{"no json", "I cannot help with that.", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("extractJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvePlace(t *testing.T) {
	cache := httpcache.NewMemoryCache(time.Hour, nil)
	c := NewClient("test-key", "", "", cache, slog.Default())

	calls := 0
	c.generate = func(_ context.Context, prompt string) (string, error) {
		calls++
		if !strings.Contains(prompt, "warsw") {
			t.Errorf("prompt does not carry the query: %q", prompt)
		}
		return "```json\n{\"places\": [{\"title\": \" Warsaw\\n\", \"subtitle\": \"Poland\", \"time_zone\": \"Europe/Warsaw\"}]}\n```", nil
	}

	for i := 0; i < 2; i++ {
		places, err := c.ResolvePlace(context.Background(), " warsw ")
		if err != nil {
			t.Fatalf("ResolvePlace() error = %v", err)
		}
		want := lookup.Place{TimeZone: "Europe/Warsaw", Title: "Warsaw", Subtitle: "Poland"}
		if len(places) != 1 || places[0] != want {
			t.Errorf("ResolvePlace() = %+v, want [%+v]", places, want)
		}
	}
	if calls != 1 {
		t.Errorf("generate called %d times, want 1 (second call served from cache)", calls)
	}
}

func TestCallRetriesTransientErrors(t *testing.T) {
	c := NewClient("test-key", "models/gemini-test", "", nil, slog.Default())
	if c.model != "gemini-test" {
		t.Errorf("model = %q", c.model)
	}

	calls := 0
	c.generate = func(context.Context, string) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("503 service unavailable")
		}
		return `{"places": [{"title": "Lima", "subtitle": "Peru", "time_zone": "America/Lima"}]}`, nil
	}
	if _, err := c.Call(context.Background(), "lima"); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestCallStopsOnPermanentErrors(t *testing.T) {
	c := NewClient("test-key", "", "", nil, slog.Default())
	calls := 0
	c.generate = func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("API key not valid")
	}
	if _, err := c.Call(context.Background(), "lima"); err == nil {
		t.Fatal("Call() expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCallRejectsEmptyAnswers(t *testing.T) {
	c := NewClient("test-key", "", "", nil, slog.Default())
	c.generate = func(context.Context, string) (string, error) {
		return `{"places": []}`, nil
	}
	if _, err := c.Call(context.Background(), "zzzz"); err == nil {
		t.Fatal("Call() expected error for empty places")
	}
}

func TestNotConfigured(t *testing.T) {
	t.Setenv("GCP_PROJECT", "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	c := NewClient("", "", "", nil, slog.Default())
	if c.Configured() {
		t.Fatal("Configured() = true without credentials")
	}
	if _, err := c.ResolvePlace(context.Background(), "oslo"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ResolvePlace() error = %v, want ErrNotConfigured", err)
	}
}
