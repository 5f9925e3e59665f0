package password

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/loginn-io/loginn/pkg/errors"
	"github.com/loginn-io/loginn/pkg/notification"
	"github.com/loginn-io/loginn/pkg/registration"
	"github.com/loginn-io/loginn/pkg/token"
)

type resetFixture struct {
	repo    *registration.InMemoryRegistrationRepository
	tokens  *token.Engine
	mock    *notification.MockNotifier
	service *ResetService
}

func newResetFixture(t *testing.T, tokenOpts ...token.EngineOption) *resetFixture {
	t.Helper()

	repo := registration.NewInMemoryRegistrationRepository()
	tokens := token.NewEngine(repo, tokenOpts...)
	mock := &notification.MockNotifier{}

	nm, err := notification.NewNotificationManagerWithOptions(
		notification.WithNotifier(notification.EmailSystem, mock),
		notification.WithPasswordResetTemplate(),
	)
	require.NoError(t, err)

	return &resetFixture{
		repo:    repo,
		tokens:  tokens,
		mock:    mock,
		service: NewResetService(repo, tokens, nm, "http://localhost:4000"),
	}
}

func (f *resetFixture) seedActive(t *testing.T, service, username, password string) registration.Registration {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	reg := registration.Registration{
		Service:      service,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		State:        registration.StateActive,
	}
	require.NoError(t, f.repo.Create(context.Background(), reg))
	return reg
}

func TestRequestReset(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newResetFixture(t)
		f.seedActive(t, "svc1", "alice", "oldpass")

		result, err := f.service.RequestReset(ctx, "alice", "svc1")
		require.NoError(t, err)
		assert.Equal(t, "alice", result.Username)
		assert.Equal(t, "svc1", result.Service)

		require.Len(t, f.mock.SentNotifications, 1)
		sent := f.mock.SentNotifications[0]
		assert.Equal(t, "alice@example.com", sent.To)
		assert.Contains(t, sent.Data["Link"], "http://localhost:4000/password/change?username=alice&token=")

		got, err := f.repo.GetByKey(ctx, registration.Key{Service: "svc1", Username: "alice"})
		require.NoError(t, err)
		assert.NotEmpty(t, got.PasswordResetToken)
	})

	t.Run("MissingParameters", func(t *testing.T) {
		f := newResetFixture(t)

		_, err := f.service.RequestReset(ctx, "", "svc1")
		assert.True(t, errs.IsCode(err, errs.ErrCodeMissingRequired))

		_, err = f.service.RequestReset(ctx, "alice", "")
		assert.True(t, errs.IsCode(err, errs.ErrCodeMissingRequired))
	})

	t.Run("UnknownUser", func(t *testing.T) {
		f := newResetFixture(t)

		_, err := f.service.RequestReset(ctx, "ghost", "svc1")
		assert.True(t, errs.IsCode(err, errs.ErrCodeNotFound))
	})

	t.Run("UnverifiedUser", func(t *testing.T) {
		f := newResetFixture(t)
		reg := registration.Registration{
			Service:  "svc1",
			Username: "pending",
			Email:    "pending@example.com",
			State:    registration.StatePendingVerification,
		}
		require.NoError(t, f.repo.Create(ctx, reg))

		_, err := f.service.RequestReset(ctx, "pending", "svc1")
		assert.True(t, errs.IsCode(err, errs.ErrCodeInvalidRequest))
		assert.Empty(t, f.mock.SentNotifications)
	})

	t.Run("EmailFailure", func(t *testing.T) {
		f := newResetFixture(t)
		f.seedActive(t, "svc1", "bob", "oldpass")
		f.mock.FailWith = errors.New("smtp unreachable")

		_, err := f.service.RequestReset(ctx, "bob", "svc1")
		assert.True(t, errs.IsCode(err, errs.ErrCodeUpstreamUnavailable))
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newResetFixture(t)
		f.seedActive(t, "svc1", "alice", "oldpass")

		_, err := f.service.RequestReset(ctx, "alice", "svc1")
		require.NoError(t, err)

		got, err := f.repo.GetByKey(ctx, registration.Key{Service: "svc1", Username: "alice"})
		require.NoError(t, err)
		resetToken := got.PasswordResetToken

		result, err := f.service.ChangePassword(ctx, "alice", "newpass", resetToken)
		require.NoError(t, err)
		assert.Equal(t, "alice", result.Username)
		assert.Equal(t, "svc1", result.Service, "service is derived from the token match")

		got, err = f.repo.GetByKey(ctx, registration.Key{Service: "svc1", Username: "alice"})
		require.NoError(t, err)
		assert.Empty(t, got.PasswordResetToken)

		ok, err := CheckPasswordHash("newpass", got.PasswordHash)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = CheckPasswordHash("oldpass", got.PasswordHash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Replay", func(t *testing.T) {
		f := newResetFixture(t)
		f.seedActive(t, "svc1", "bob", "oldpass")

		_, err := f.service.RequestReset(ctx, "bob", "svc1")
		require.NoError(t, err)
		got, err := f.repo.GetByKey(ctx, registration.Key{Service: "svc1", Username: "bob"})
		require.NoError(t, err)
		resetToken := got.PasswordResetToken

		_, err = f.service.ChangePassword(ctx, "bob", "newpass", resetToken)
		require.NoError(t, err)

		_, err = f.service.ChangePassword(ctx, "bob", "anotherpass", resetToken)
		assert.True(t, errs.IsCode(err, errs.ErrCodeTokenNotFound))
	})

	t.Run("WrongToken", func(t *testing.T) {
		f := newResetFixture(t)
		f.seedActive(t, "svc1", "carol", "oldpass")

		_, err := f.service.ChangePassword(ctx, "carol", "newpass", "bogus")
		assert.True(t, errs.IsCode(err, errs.ErrCodeTokenNotFound))
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		f := newResetFixture(t, token.WithPasswordResetExpiry(-1))
		f.seedActive(t, "svc1", "dave", "oldpass")

		_, err := f.service.RequestReset(ctx, "dave", "svc1")
		require.NoError(t, err)
		got, err := f.repo.GetByKey(ctx, registration.Key{Service: "svc1", Username: "dave"})
		require.NoError(t, err)

		_, err = f.service.ChangePassword(ctx, "dave", "newpass", got.PasswordResetToken)
		assert.True(t, errs.IsCode(err, errs.ErrCodeTokenExpired))
	})

	t.Run("MissingParameters", func(t *testing.T) {
		f := newResetFixture(t)

		_, err := f.service.ChangePassword(ctx, "", "newpass", "tok")
		assert.True(t, errs.IsCode(err, errs.ErrCodeMissingRequired))

		_, err = f.service.ChangePassword(ctx, "alice", "", "tok")
		assert.True(t, errs.IsCode(err, errs.ErrCodeMissingRequired))

		_, err = f.service.ChangePassword(ctx, "alice", "newpass", "")
		assert.True(t, errs.IsCode(err, errs.ErrCodeMissingRequired))
	})
}
