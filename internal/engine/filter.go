package engine

// Filter is the chat-level enable/disable policy, fixed for the process
// lifetime. An empty allowlist means "all chats except explicitly disabled
// ones": running the logger with a zero-chat allowlist has no value.
type Filter struct {
	enabled  map[int64]struct{}
	disabled map[int64]struct{}
}

// NewFilter builds a Filter from the configured chat id lists.
func NewFilter(enabled, disabled []int64) *Filter {
	f := &Filter{
		enabled:  make(map[int64]struct{}, len(enabled)),
		disabled: make(map[int64]struct{}, len(disabled)),
	}
	for _, id := range enabled {
		f.enabled[id] = struct{}{}
	}
	for _, id := range disabled {
		f.disabled[id] = struct{}{}
	}
	return f
}

// Enabled reports whether events in the chat should be observed.
func (f *Filter) Enabled(chatID int64) bool {
	if len(f.enabled) > 0 {
		if _, ok := f.enabled[chatID]; !ok {
			return false
		}
	}
	_, off := f.disabled[chatID]
	return !off
}
