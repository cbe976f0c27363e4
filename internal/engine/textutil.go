package engine

import (
	"regexp"
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
)

// channelIDRe matches stable channel identifiers ("UC" + 22 base64url chars in practice).
var channelIDRe = regexp.MustCompile(`^UC[a-zA-Z0-9_-]{20,}$`)

// IsChannelID reports whether ref is already a stable channel identifier.
func IsChannelID(ref string) bool {
	return channelIDRe.MatchString(ref)
}

// HandleName strips the leading "@" and surrounding space from a channel handle.
func HandleName(ref string) string {
	return strings.TrimPrefix(strings.TrimSpace(ref), "@")
}

// VideoThumbnail returns thumb, or the public high-quality still when thumb is empty.
func VideoThumbnail(id, thumb string) string {
	if thumb != "" || id == "" {
		return thumb
	}
	return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"
}

// TruncateRunes caps s at limit runes, appending suffix if truncated.
// Pass suffix="" for no suffix. Safe for UTF-8 (Cyrillic, CJK, emoji).
func TruncateRunes(s string, limit int, suffix string) string {
	return strutil.TruncateWith(s, limit, suffix)
}
