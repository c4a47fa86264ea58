package realtime

import (
	"github.com/google/uuid"
)

// ChannelName derives the shared pub/sub channel for a pair of users.
// The two ids are sorted lexicographically before joining, so both
// participants compute the same name without coordination:
// ChannelName(a, b) == ChannelName(b, a).
func ChannelName(a, b uuid.UUID) string {
	first, second := a.String(), b.String()
	if second < first {
		first, second = second, first
	}
	return first + "-" + second
}
