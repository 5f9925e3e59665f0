package notification

// MockNotifier records sent notifications for tests
type MockNotifier struct {
	SentNotifications []NotificationData
	FailWith          error
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.SentNotifications = append(m.SentNotifications, notification)
	return nil
}
