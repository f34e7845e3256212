package dingtalk

import "regexp"

// InboundMessage is the subset of the outgoing-webhook payload the bot
// consumes.
type InboundMessage struct {
	MsgType        string    `json:"msgtype"`
	Text           TextField `json:"text"`
	ConversationID string    `json:"conversationId"`
	AtUsers        []AtUser  `json:"atUsers"`
	SenderNick     string    `json:"senderNick"`
}

// TextField carries the plain-text content of an inbound message.
type TextField struct {
	Content string `json:"content"`
}

// AtUser identifies a mentioned group member.
type AtUser struct {
	DingtalkID string `json:"dingtalkId"`
}

var mentionPattern = regexp.MustCompile(`<at id=".*?">@.*?</at>`)

// StripMentions removes embedded <at> markup DingTalk injects into group
// message content.
func StripMentions(content string) string {
	return mentionPattern.ReplaceAllString(content, "")
}

// AtUserIDs collects the dingtalk IDs of all mentioned users, for echoing
// the mention back on the reply.
func (m InboundMessage) AtUserIDs() []string {
	ids := make([]string, 0, len(m.AtUsers))
	for _, u := range m.AtUsers {
		ids = append(ids, u.DingtalkID)
	}
	return ids
}
