package notify

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSlackMessage_Build(t *testing.T) {
	msg := SlackMessage{
		Text: "Workflow completed",
		Attachments: []SlackAttachment{
			{
				Color: "good",
				Title: "add-oauth-2026-08-25-1a2b3c4d",
				Text:  "12 tickets, 34 story points",
			},
		},
	}

	payload, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	if len(payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	// Mock Slack server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:      "Workflow paused",
		Message:    "Which OAuth provider should be primary?",
		Type:       NotifyWarning,
		WorkflowID: "wf-1",
		Phase:      "domain-research",
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
}

func TestSlackNotifier_EmptyWebhookDisabled(t *testing.T) {
	notifier := NewSlackNotifier("")
	if err := notifier.Send(Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier returned error: %v", err)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestDesktopTitle(t *testing.T) {
	tests := []struct {
		n    Notification
		want string
	}{
		{Notification{Title: "Workflow completed"}, "Workflow completed"},
		{Notification{Title: "Workflow completed", WorkflowID: "wf-1"},
			"Workflow completed [wf-1]"},
		{Notification{Title: "Workflow paused", WorkflowID: "wf-1", Phase: "domain-research"},
			"Workflow paused [wf-1 / domain-research]"},
	}

	for _, tt := range tests {
		got := DesktopTitle(tt.n)
		if got != tt.want {
			t.Errorf("DesktopTitle(%+v) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestIconForType(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "dialog-positive"},
		{NotifyWarning, "dialog-warning"},
		{NotifyError, "dialog-error"},
		{NotifyInfo, "dialog-information"},
	}

	for _, tt := range tests {
		got := IconForType(tt.typ)
		if got != tt.want {
			t.Errorf("IconForType(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestDesktopNotifier_Disabled(t *testing.T) {
	notifier := NewDesktopNotifier(false)
	if err := notifier.Send(Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier returned error: %v", err)
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}
