package accounts

import (
	"context"
	"fmt"
)

// Mailer dispatches auth keys out-of-band. Delivery is an external concern;
// implementations should not block longer than the request allows.
type Mailer interface {
	SendRegistrationKey(ctx context.Context, user *User, key *AuthKey) error
	SendPasswordResetKey(ctx context.Context, user *User, key *AuthKey) error
}

// logMailer prints the links instead of sending email. Default for
// development setups without an SMTP collaborator.
type logMailer struct {
	logger Logger
}

func (m logMailer) SendRegistrationKey(ctx context.Context, user *User, key *AuthKey) error {
	m.logger.Info(
		"registration notification to=%s link=%s",
		user.Email,
		fmt.Sprintf("/signup/confirmation/%s", key.ID.String()),
	)
	return nil
}

func (m logMailer) SendPasswordResetKey(ctx context.Context, user *User, key *AuthKey) error {
	m.logger.Info(
		"password reset notification to=%s link=%s",
		user.Email,
		fmt.Sprintf("/password/reset/%s", key.ID.String()),
	)
	return nil
}
