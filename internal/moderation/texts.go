package moderation

import (
	"fmt"
	"html"
)

// CheckLink returns the public reputation page for an account.
func CheckLink(accountID int64) string {
	return fmt.Sprintf("https://api.cas.chat/check?user_id=%d", accountID)
}

// NotifyText is posted in notify mode.
func NotifyText(name string, accountID int64, reason string) string {
	return fmt.Sprintf(
		"⚠️ Suspicious account detected: <b>%s</b> (ID: <code>%d</code>). Reason: <b>%s</b>. Details: <a href=\"%s\">CAS check</a>.",
		html.EscapeString(name), accountID, html.EscapeString(reason), CheckLink(accountID),
	)
}

// BannedText is posted after a quickban unless the chat is silent.
func BannedText(name string, accountID int64, reason string) string {
	return fmt.Sprintf(
		"🛡 Removed <b>%s</b> (ID: <code>%d</code>). Reason: <b>%s</b>. Details: <a href=\"%s\">CAS check</a>.",
		html.EscapeString(name), accountID, html.EscapeString(reason), CheckLink(accountID),
	)
}
