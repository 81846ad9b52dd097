package notifier

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gdg-garage/observe-api/internal/models"
)

func TestBadgeMessage(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	badge := models.Badge{ID: 3, Name: "Three in a row", Image: "https://example.org/three.png"}

	message := BadgeMessage(badge, "alice", at)

	for _, want := range []string{"alice", "Three in a row", "2024-05-01T10:00:00Z", "https://example.org/three.png"} {
		if !strings.Contains(message, want) {
			t.Errorf("expected message to contain %q, got %q", want, message)
		}
	}
}

func TestBadgeMessageWithoutName(t *testing.T) {
	message := BadgeMessage(models.Badge{ID: 7}, "bob", time.Now())
	if !strings.Contains(message, "#7") {
		t.Errorf("expected badge id in message, got %q", message)
	}
}

func TestNotifyBadgeRequiresSessionAndChannel(t *testing.T) {
	badge := models.Badge{ID: 1, Name: "First steps"}

	if err := NewDiscordNotifier(nil, "123").NotifyBadge(badge, "alice", time.Now()); err == nil {
		t.Error("expected error for nil session")
	}

	session, err := discordgo.New("Bot token")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := NewDiscordNotifier(session, "").NotifyBadge(badge, "alice", time.Now()); err == nil {
		t.Error("expected error for empty channel")
	}
}

func TestNewDiscordSession(t *testing.T) {
	if _, err := NewDiscordSession(""); err == nil {
		t.Error("expected error for empty token")
	}

	session, err := NewDiscordSession("token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Token != "Bot token" {
		t.Errorf("expected bot token, got %q", session.Token)
	}
}
