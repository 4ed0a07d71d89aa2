package rules

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientBuildsQuery(t *testing.T) {
	tests := []struct {
		name        string
		sandbox     string
		wantSandbox string
		hasSandbox  bool
	}{
		{"baseline", "", "", false},
		{"sandbox", "canary1", "canary1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/workloads/routing-rules" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				q := r.URL.Query()
				if q.Get("baselineKind") != "Deployment" || q.Get("baselineNamespace") != "temporal" || q.Get("baselineName") != "worker-baseline" {
					t.Errorf("unexpected baseline query %v", q)
				}
				_, has := q["destinationSandboxName"]
				if has != tt.hasSandbox || q.Get("destinationSandboxName") != tt.wantSandbox {
					t.Errorf("destinationSandboxName = %q (present %v)", q.Get("destinationSandboxName"), has)
				}
				w.Write([]byte(`{"routingRules":[{"routingKey":"canary1"}]}`))
			}))
			defer server.Close()

			client, err := NewClient(ClientConfig{
				BaseURL:     server.URL,
				Baseline:    Identity{Kind: "Deployment", Namespace: "temporal", Name: "worker-baseline"},
				SandboxName: tt.sandbox,
			})
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}

			keys, err := client.FetchRoutingKeys(context.Background())
			if err != nil {
				t.Fatalf("FetchRoutingKeys() error = %v", err)
			}
			if len(keys) != 1 || keys[0] != "canary1" {
				t.Errorf("keys = %v", keys)
			}
		})
	}
}

func TestNewClientRejectsBadAddress(t *testing.T) {
	for _, addr := range []string{"", "::not a url", "/just/a/path"} {
		if _, err := NewClient(ClientConfig{BaseURL: addr}); err == nil {
			t.Errorf("NewClient(%q) should fail", addr)
		}
	}
}

func TestFetchRoutingKeysFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "boom", ErrUnexpectedStatus},
		{"not found", http.StatusNotFound, "", ErrUnexpectedStatus},
		{"invalid json", http.StatusOK, "{not json", ErrMalformedRules},
		{"missing rules", http.StatusOK, `{"other":[]}`, ErrMalformedRules},
		{"null rules", http.StatusOK, `{"routingRules":null}`, ErrMalformedRules},
		{"rules not a list", http.StatusOK, `{"routingRules":"canary1"}`, ErrMalformedRules},
		{"top level list", http.StatusOK, `[{"routingKey":"canary1"}]`, ErrMalformedRules},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient(ClientConfig{BaseURL: server.URL})
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}

			_, err = client.FetchRoutingKeys(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchRoutingKeysTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.FetchRoutingKeys(ctx); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestParseRoutingKeysIgnoresUnusableRules(t *testing.T) {
	body := `{"routingRules":[
		{"routingKey":"canary1"},
		{"routingKey":null},
		{"routingKey":""},
		{"other":"x"},
		"not an object",
		{"routingKey":42},
		{"routingKey":"canary2","extra":true}
	]}`

	keys, err := parseRoutingKeys([]byte(body))
	if err != nil {
		t.Fatalf("parseRoutingKeys() error = %v", err)
	}

	want := []string{"canary1", "42", "canary2"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestParseRoutingKeysEmptyList(t *testing.T) {
	keys, err := parseRoutingKeys([]byte(`{"routingRules":[]}`))
	if err != nil {
		t.Fatalf("parseRoutingKeys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("keys = %v, want none", keys)
	}
}
