package chat

import (
	"fmt"
	"time"
)

// ThrottledError is returned when the chat backend asks the caller to
// back off for an exact duration before retrying the same post. The
// dispatcher owns the sleep-and-retry policy; this error only carries
// the advertised wait.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("chat throttled, retry after %v", e.RetryAfter)
}

// UnknownThreadError is returned when the backend rejects a post because
// its topic/thread id no longer exists. Callers retry once without a
// thread id before giving up on the post.
type UnknownThreadError struct{ ChatID string }

func (e *UnknownThreadError) Error() string {
	return fmt.Sprintf("unknown thread for chat %s", e.ChatID)
}

// TerminalChatError is returned for any non-recoverable backend rejection
// (bad credential, banned bot, malformed chat id, ...). The post is
// dropped; it is never retried.
type TerminalChatError struct{ Reason string }

func (e *TerminalChatError) Error() string { return fmt.Sprintf("chat post rejected: %s", e.Reason) }
