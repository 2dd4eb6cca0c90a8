package discord

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// handleAdminCommand intercepts "!sd ..." moderation and personality
// commands before they reach the chat core. It returns true if the message
// was handled as a command (regardless of outcome).
func (b *Bot) handleAdminCommand(m *discordgo.MessageCreate, content string) bool {
	if !strings.HasPrefix(content, "!sd ") {
		return false
	}
	fields := strings.Fields(strings.TrimPrefix(content, "!sd "))
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "personality":
		return b.cmdPersonality(m, fields[1:])
	case "timeout":
		return b.cmdTimeout(m, fields[1:])
	case "suspend":
		return b.cmdSuspend(m, fields[1:])
	default:
		return false
	}
}

func (b *Bot) cmdPersonality(m *discordgo.MessageCreate, args []string) bool {
	if len(args) == 0 {
		p := b.conv.ActivePersonality(m.Author.ID)
		b.sendChunked(m.ChannelID, fmt.Sprintf("Current personality: %s", p.Name))
		return true
	}
	name := args[0]
	lock := len(args) > 1 && args[1] == "--lock"
	if lock && !b.isAdmin(m.Author.ID) {
		b.sendChunked(m.ChannelID, "Only an admin can lock a personality.")
		return true
	}
	var err error
	if lock {
		err = b.conv.LockPersonality(m.Author.ID, name, m.Author.ID)
	} else {
		err = b.conv.SetPersonality(m.Author.ID, name)
	}
	if err != nil {
		b.sendChunked(m.ChannelID, fmt.Sprintf("Couldn't switch personality: %s", err))
		return true
	}
	b.sendChunked(m.ChannelID, fmt.Sprintf("Personality set to %s.", name))
	return true
}

func (b *Bot) cmdTimeout(m *discordgo.MessageCreate, args []string) bool {
	if !b.isAdmin(m.Author.ID) {
		b.sendChunked(m.ChannelID, "Only an admin can timeout a user.")
		return true
	}
	if len(args) < 2 {
		b.sendChunked(m.ChannelID, "Usage: !sd timeout <user_id> <minutes> [reason...]")
		return true
	}
	minutes, err := strconv.Atoi(args[1])
	if err != nil {
		b.sendChunked(m.ChannelID, "Minutes must be a number.")
		return true
	}
	reason := strings.Join(args[2:], " ")
	b.conv.TimeoutUser(args[0], minutes, reason, m.Author.ID)
	b.sendChunked(m.ChannelID, fmt.Sprintf("Timed out <@%s> for %d minutes.", args[0], minutes))
	return true
}

func (b *Bot) cmdSuspend(m *discordgo.MessageCreate, args []string) bool {
	if !b.isAdmin(m.Author.ID) {
		b.sendChunked(m.ChannelID, "Only an admin can suspend a user.")
		return true
	}
	if len(args) < 1 {
		b.sendChunked(m.ChannelID, "Usage: !sd suspend <user_id> [reason...]")
		return true
	}
	reason := strings.Join(args[1:], " ")
	b.conv.SuspendUser(args[0], reason, m.Author.ID)
	b.sendChunked(m.ChannelID, fmt.Sprintf("Suspended <@%s>.", args[0]))
	return true
}

func (b *Bot) isAdmin(userID string) bool {
	for _, id := range b.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
