// Package convstore implements ConversationStore (spec §4.5): per-context
// chat transcripts, personalities, settings, moderation, rate limiting, and
// launch-based auto-cleanup.
//
// Grounded on the teacher pack's internal/sessions package: key.go's
// deterministic key-builder pattern (generalized here from the channel/DM/
// group/topic taxonomy to the three-tier thread/channel/dm taxonomy spec
// §4.5 names) and manager.go's mutex-guarded in-memory session map
// (generalized to wrap a durable store.ConversationStore instead of holding
// state only in memory).
package convstore

import "fmt"

// DeriveContextKey derives the isolation key for a conversation, per spec
// §4.5: thread takes priority over channel, channel over a bare DM.
func DeriveContextKey(guildID, channelID, threadID, userID string) string {
	switch {
	case threadID != "":
		return fmt.Sprintf("thread:%s", threadID)
	case channelID != "":
		return fmt.Sprintf("channel:%s", channelID)
	default:
		return fmt.Sprintf("dm:%s", userID)
	}
}
