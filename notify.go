package stockx

// NoticeKind classifies a user-facing notice.
type NoticeKind string

const (
	// NoticeWarning is used for session expiry.
	NoticeWarning NoticeKind = "warning"
	// NoticeError is used for offline status.
	NoticeError NoticeKind = "error"
)

// Notice is a non-blocking, user-visible notification. The gateway decides
// that a notice fires and what kind it is; rendering belongs to the host
// application (toast, banner, log line).
type Notice struct {
	Kind   NoticeKind
	Title  string
	Detail string
}

// Notifier receives user-facing notices emitted by the gateway.
type Notifier interface {
	Notify(Notice)
}

// NopNotifier discards all notices. It is the default.
type NopNotifier struct{}

func (NopNotifier) Notify(Notice) {}

// FuncNotifier adapts a function to the Notifier interface.
type FuncNotifier func(Notice)

func (f FuncNotifier) Notify(n Notice) { f(n) }
