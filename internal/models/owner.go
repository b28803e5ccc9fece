package models

import (
	"regexp"
	"strings"
)

var ownerSanitizer = regexp.MustCompile(`[^a-z0-9\-_]`)

// sanitize normalizes an identifier for use in storage paths and
// collection names.
func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	return ownerSanitizer.ReplaceAllString(s, "")
}

// OwnerKey builds the namespace key for all per-user storage paths and
// index collections. When both groupID and senderName are set, the key
// is scoped to the pair so memory never leaks between members of a
// shared group chat.
func OwnerKey(userID, groupID, senderName string) string {
	if groupID != "" && senderName != "" {
		return sanitize(groupID) + "/" + sanitize(senderName)
	}
	return sanitize(userID)
}
