package notification

// NotificationSystem represents a delivery channel (e.g. email)
type NotificationSystem string

// NoticeType represents a kind of notice (e.g. "verify_email", "password_reset")
type NoticeType string

const (
	EmailSystem NotificationSystem = "email"

	EmailVerificationNotice NoticeType = "verify_email"
	PasswordResetNotice     NoticeType = "password_reset"
)

// NotificationData carries the per-recipient values of one notice
type NotificationData struct {
	To      string            // Recipient identifier (e.g. email address)
	Subject string            // Optional subject override
	Data    map[string]string // Template values (username, link, service, ...)
}

// NoticeTemplate holds the renderable bodies for a notice
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// Notifier delivers a rendered notice over one system
type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
