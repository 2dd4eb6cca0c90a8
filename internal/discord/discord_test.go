package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/sdforge/sdforge-gateway/internal/config"
)

func TestStripMention_RemovesBothMentionForms(t *testing.T) {
	got := stripMention("<@123> hello <@!123> there", "123")
	if got != "hello  there" {
		t.Fatalf("got %q", got)
	}
}

func TestStripMention_NoBotIDJustTrims(t *testing.T) {
	got := stripMention("  hello  ", "")
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestLastIndexByte_FindsLastOccurrence(t *testing.T) {
	if got := lastIndexByte("a\nb\nc", '\n'); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
	if got := lastIndexByte("no newline", '\n'); got != -1 {
		t.Fatalf("got %d, want -1", got)
	}
}

func TestResolveDisplayName_PrefersNickThenGlobalThenUsername(t *testing.T) {
	withNick := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "user1", GlobalName: "Global One"},
		Member: &discordgo.Member{Nick: "Nicky"},
	}}
	if got := resolveDisplayName(withNick); got != "Nicky" {
		t.Fatalf("got %q, want Nicky", got)
	}

	withGlobal := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "user1", GlobalName: "Global One"},
	}}
	if got := resolveDisplayName(withGlobal); got != "Global One" {
		t.Fatalf("got %q, want Global One", got)
	}

	plain := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "user1"},
	}}
	if got := resolveDisplayName(plain); got != "user1" {
		t.Fatalf("got %q, want user1", got)
	}
}

func TestIsMentioned_MatchesBotUserID(t *testing.T) {
	b := &Bot{botUserID: "bot-1"}
	mentioned := &discordgo.MessageCreate{Message: &discordgo.Message{
		Mentions: []*discordgo.User{{ID: "bot-1"}},
	}}
	if !b.isMentioned(mentioned) {
		t.Fatalf("expected bot mention to be detected")
	}

	notMentioned := &discordgo.MessageCreate{Message: &discordgo.Message{
		Mentions: []*discordgo.User{{ID: "someone-else"}},
	}}
	if b.isMentioned(notMentioned) {
		t.Fatalf("expected no mention detected")
	}
}

func TestIsMentioned_EmptyBotUserIDAlwaysFalse(t *testing.T) {
	b := &Bot{botUserID: ""}
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Mentions: []*discordgo.User{{ID: "anything"}},
	}}
	if b.isMentioned(m) {
		t.Fatalf("expected no mention detection before the bot's own user ID is resolved")
	}
}

func TestIsAdmin_MatchesConfiguredAdminIDs(t *testing.T) {
	b := &Bot{cfg: config.DiscordConfig{AdminIDs: []string{"admin1", "admin2"}}}
	if !b.isAdmin("admin2") {
		t.Fatalf("expected admin2 to be recognized as an admin")
	}
	if b.isAdmin("not-an-admin") {
		t.Fatalf("expected a non-admin user to be rejected")
	}
}
