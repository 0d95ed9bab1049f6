package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"workerwatch/internal/config"
	"workerwatch/internal/deploy"
)

func TestPolicyWants(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		ok        bool
		recovered bool
		want      bool
	}{
		{"failure always notifies", Policy{}, false, false, true},
		{"failure notifies under all", Policy{All: true}, false, false, true},
		{"plain success silent by default", Policy{}, true, false, false},
		{"recovery notifies by default", Policy{}, true, true, true},
		{"plain success notifies under all", Policy{All: true}, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Wants(tt.ok, tt.recovered); got != tt.want {
				t.Errorf("Wants(%v, %v) = %v, want %v", tt.ok, tt.recovered, got, tt.want)
			}
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	if PolicyFromConfig("all").All != true {
		t.Error("notify_on: all should enable All")
	}
	if PolicyFromConfig("failures").All != false {
		t.Error("notify_on: failures should not enable All")
	}
	if PolicyFromConfig("").All != false {
		t.Error("empty notify_on should default to failures-only")
	}
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, _ Event) error {
	r.calls++
	return r.err
}

func TestMultiAttemptsAll(t *testing.T) {
	first := &recordingNotifier{err: errors.New("webhook down")}
	second := &recordingNotifier{}

	m := Multi{first, second}
	err := m.Notify(context.Background(), Event{Outcome: &deploy.Outcome{}})

	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d, %d; every notifier should be attempted", first.calls, second.calls)
	}
	if err == nil || !strings.Contains(err.Error(), "webhook down") {
		t.Errorf("error should surface the failing notifier, got %v", err)
	}
}

func TestMultiNoErrors(t *testing.T) {
	m := Multi{&recordingNotifier{}, &recordingNotifier{}}
	if err := m.Notify(context.Background(), Event{Outcome: &deploy.Outcome{}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFromConfigEmpty(t *testing.T) {
	n, err := FromConfig(config.Notifications{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != nil {
		t.Error("no configured channels should yield a nil notifier")
	}
}

func TestFromConfigEmail(t *testing.T) {
	n, err := FromConfig(config.Notifications{
		Email: &config.Email{Host: "smtp.example.com", Port: 587, To: []string{"dev@example.com"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	multi, ok := n.(Multi)
	if !ok || len(multi) != 1 {
		t.Fatalf("expected one notifier, got %T %v", n, n)
	}
}

func TestNewDiscordInvalidURL(t *testing.T) {
	if _, err := NewDiscord("not-a-webhook-url"); err == nil {
		t.Error("expected error for malformed webhook URL")
	}
}

func TestRenderEmailFailure(t *testing.T) {
	subject, body := renderEmail(Event{
		Worker: "my-worker",
		Outcome: &deploy.Outcome{
			Seq:      3,
			Duration: 2 * time.Second,
			Err:      errors.New("exit status 1\nlong transcript"),
		},
	})

	if !strings.Contains(subject, "deploy #3 failed: my-worker") {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "exit status 1") {
		t.Errorf("body missing error summary:\n%s", body)
	}
	if strings.Contains(body, "transcript") {
		t.Errorf("body leaked multi-line error:\n%s", body)
	}
}

func TestRenderEmailRecovery(t *testing.T) {
	subject, body := renderEmail(Event{
		Worker:    "my-worker",
		Recovered: true,
		Outcome: &deploy.Outcome{
			Seq:       4,
			Duration:  time.Second,
			VersionID: "982b47f4-5d2d",
			URLs:      []string{"https://my-worker.acct.workers.dev"},
		},
	})

	if !strings.Contains(subject, "recovered") {
		t.Errorf("subject = %q", subject)
	}
	for _, want := range []string{"982b47f4-5d2d", "https://my-worker.acct.workers.dev"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestBuildEmbedStates(t *testing.T) {
	failure := buildEmbed(Event{
		Worker:  "w",
		Outcome: &deploy.Outcome{Seq: 1, Err: errors.New("boom")},
	})
	if failure.Color != 0xE74C3C {
		t.Errorf("failure embed color = %#x, want red", failure.Color)
	}

	recovery := buildEmbed(Event{
		Worker:    "w",
		Recovered: true,
		Outcome:   &deploy.Outcome{Seq: 2},
	})
	if recovery.Color != 0x2ECC71 {
		t.Errorf("recovery embed color = %#x, want green", recovery.Color)
	}
	if !strings.Contains(recovery.Title, "Recovered") {
		t.Errorf("recovery embed title = %q", recovery.Title)
	}

	success := buildEmbed(Event{
		Worker: "w",
		Outcome: &deploy.Outcome{
			Seq:       3,
			VersionID: "982b47f4",
			URLs:      []string{"https://w.acct.workers.dev"},
		},
	})
	if !strings.Contains(success.Title, "Succeeded") {
		t.Errorf("success embed title = %q", success.Title)
	}
	var fields []string
	for _, f := range success.Fields {
		fields = append(fields, f.Name)
	}
	for _, want := range []string{"URL", "Version"} {
		found := false
		for _, name := range fields {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("success embed missing %q field, has %v", want, fields)
		}
	}
}
