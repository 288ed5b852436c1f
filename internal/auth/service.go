// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

var tracer = otel.Tracer("github.com/keyward/keyward/internal/auth")

// Mailer delivers access key links. Implementations own the message body.
type Mailer interface {
	SendConfirmationEmail(ctx context.Context, username, link string) error
	SendResetEmail(ctx context.Context, username, link string) error
}

// Observer receives lifecycle events worth counting.
type Observer interface {
	SessionOpened()
	SuspiciousLoginFailures()
}

type nopObserver struct{}

func (nopObserver) SessionOpened()           {}
func (nopObserver) SuspiciousLoginFailures() {}

// ServiceConfig holds the dependencies of a Service.
type ServiceConfig struct {
	Store  CredentialStore
	Hasher PasswordHasher
	Mailer Mailer
	Issuer IssuerConfig

	// Domains restricts registration. Nil allows every domain.
	Domains *DomainPolicy

	// Observer and Logger are optional.
	Observer Observer
	Logger   *slog.Logger
}

// Service implements the inbound credential operations: registration,
// confirmation, password reset and change, login and logout.
type Service struct {
	store    CredentialStore
	hasher   PasswordHasher
	mailer   Mailer
	issuer   *AccessKeyIssuer
	users    *UserManager
	sessions *SessionManager
	domains  *DomainPolicy
	observer Observer
	logger   *slog.Logger
}

// NewService creates a new Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("credential store is required")
	}
	if cfg.Hasher == nil {
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if cfg.Mailer == nil {
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("mailer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	issuer, err := NewAccessKeyIssuer(cfg.Store, cfg.Issuer)
	if err != nil {
		return nil, err
	}
	users := NewUserManager(cfg.Store, cfg.Hasher)

	return &Service{
		store:    cfg.Store,
		hasher:   cfg.Hasher,
		mailer:   cfg.Mailer,
		issuer:   issuer,
		users:    users,
		sessions: NewSessionManager(cfg.Store, users, cfg.Logger),
		domains:  cfg.Domains,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}, nil
}

// Users returns the user credential manager.
func (s *Service) Users() *UserManager { return s.users }

// Sessions returns the session manager.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// Issuer returns the access key issuer.
func (s *Service) Issuer() *AccessKeyIssuer { return s.issuer }

// Ping checks the credential store.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return storeFailure("STORE_UNAVAILABLE", "ping", err)
	}
	return nil
}

// Register creates an unconfirmed account and mails a confirmation link.
func (s *Service) Register(ctx context.Context, username, password string) (err error) {
	ctx, span := s.start(ctx, "Register")
	defer func() { endSpan(span, err) }()

	if err := ValidateUsername(username); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	if err := s.domains.Check(username); err != nil {
		return err
	}
	if err := s.users.CreateUser(ctx, username, password); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user registered", "username", username)
	return s.sendAccessKey(ctx, username, PurposeConfirmation)
}

// ResendConfirmation mails a new confirmation link to an unconfirmed account.
// Unknown or already confirmed accounts succeed silently.
func (s *Service) ResendConfirmation(ctx context.Context, username string) (err error) {
	ctx, span := s.start(ctx, "ResendConfirmation")
	defer func() { endSpan(span, err) }()

	if err := ValidateUsername(username); err != nil {
		return err
	}
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if user.Confirmed() {
		return nil
	}
	return s.sendAccessKey(ctx, username, PurposeConfirmation)
}

// ConfirmEmail consumes a confirmation key, grants the viewer role to a user
// without one, opens its first session and activates the account. The
// account stays unconfirmed until every step succeeds, so after a store
// fault ResendConfirmation mails a fresh key.
func (s *Service) ConfirmEmail(ctx context.Context, accessKey string) (result *LoginResult, err error) {
	ctx, span := s.start(ctx, "ConfirmEmail")
	defer func() { endSpan(span, err) }()

	username, err := s.issuer.Validate(ctx, accessKey, PurposeConfirmation)
	if err != nil {
		return nil, err
	}
	if username == "" {
		s.logger.WarnContext(ctx, "confirmation rejected", "reason", "invalid access key")
		return nil, authenticationError("AUTH_INVALID_ACCESS_KEY", "invalid access key")
	}

	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		return nil, s.unknownUser(ctx, "confirmation rejected", username, err)
	}

	role := user.Role
	if role == RoleNone {
		role = RoleViewer
		if err := s.users.SetRole(ctx, username, role); err != nil {
			return nil, err
		}
	}

	result, err = s.openSession(ctx, username, role)
	if err != nil {
		return nil, err
	}
	if err := s.users.Activate(ctx, username); err != nil {
		return nil, err
	}
	return result, nil
}

// ResetPassword mails a reset link to a confirmed account. Unknown and
// unconfirmed accounts succeed silently so the response does not reveal
// which addresses are registered.
func (s *Service) ResetPassword(ctx context.Context, username string) (err error) {
	ctx, span := s.start(ctx, "ResetPassword")
	defer func() { endSpan(span, err) }()

	if err := ValidateUsername(username); err != nil {
		return err
	}
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.DebugContext(ctx, "reset requested for unknown user")
			return nil
		}
		return err
	}
	if !user.Confirmed() {
		s.logger.DebugContext(ctx, "reset requested for unconfirmed user", "username", username)
		return nil
	}
	return s.sendAccessKey(ctx, username, PurposeReset)
}

// SetNewPassword completes a reset: the key must be a reset key owned by
// username. The password is replaced and a new session opened.
func (s *Service) SetNewPassword(ctx context.Context, username, accessKey, newPassword string) (result *LoginResult, err error) {
	ctx, span := s.start(ctx, "SetNewPassword")
	defer func() { endSpan(span, err) }()

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	// A key presented with someone else's username is left unconsumed.
	owner, err := s.issuer.ValidateFor(ctx, accessKey, PurposeReset, username)
	if err != nil {
		return nil, err
	}
	if owner != username {
		s.logger.WarnContext(ctx, "password reset rejected", "username", username, "reason", "invalid access key")
		return nil, authenticationError("AUTH_INVALID_ACCESS_KEY", "invalid access key")
	}

	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		return nil, s.unknownUser(ctx, "password reset rejected", username, err)
	}
	if err := s.users.SetPassword(ctx, username, newPassword); err != nil {
		return nil, err
	}
	if err := s.users.ResetLoginFailures(ctx, username); err != nil {
		s.logger.WarnContext(ctx, "failed to reset login failures", "username", username, "error", err)
	}

	return s.openSession(ctx, username, user.Role)
}

// ChangePassword rotates the password of an authenticated user and replaces
// their session.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (result *LoginResult, err error) {
	ctx, span := s.start(ctx, "ChangePassword")
	defer func() { endSpan(span, err) }()

	key, err := s.users.ChangePassword(ctx, username, oldPassword, newPassword, s.sessions)
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			s.logger.WarnContext(ctx, "password change rejected", "username", username)
		}
		return nil, err
	}
	s.observer.SessionOpened()

	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Username: username, Role: user.Role, AuthKey: key, SessionKey: key}, nil
}

// Login verifies a password and opens a new session, replacing any existing
// one. Unknown users, wrong passwords and unconfirmed accounts all produce
// the same authentication error.
func (s *Service) Login(ctx context.Context, username, password string) (result *LoginResult, err error) {
	ctx, span := s.start(ctx, "Login")
	defer func() { endSpan(span, err) }()

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	user, lookupErr := s.users.GetUser(ctx, username)

	// Determine which hash to verify against (real or dummy for timing attack prevention)
	targetHash := dummyPasswordHash
	userExists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, lookupErr
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, s.loginRejected(ctx, username, "unknown user")
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(fmt.Errorf("%w: %w", ErrInfrastructure, verifyErr))
	}

	if !userExists {
		return nil, s.loginRejected(ctx, username, "unknown user")
	}
	if !valid {
		s.recordFailure(ctx, username)
		return nil, s.loginRejected(ctx, username, "bad password")
	}
	// Confirmation is checked after verification to keep timing uniform.
	if !user.Confirmed() {
		return nil, s.loginRejected(ctx, username, "unconfirmed")
	}

	if user.FailedAttempts > 0 {
		if err := s.users.ResetLoginFailures(ctx, username); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login failures", "username", username, "error", err)
		}
	}
	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		// Best effort: login succeeds even if the upgrade does not persist.
		if err := s.users.rotateHash(ctx, username, password); err != nil {
			s.logger.WarnContext(ctx, "password hash upgrade failed", "username", username, "error", err)
		} else {
			s.logger.InfoContext(ctx, "password hash upgraded", "username", username)
		}
	}
	if err := s.users.TouchLastLogin(ctx, username); err != nil {
		return nil, err
	}

	return s.openSession(ctx, username, user.Role)
}

// Logout invalidates sessionKey if it is an active session owned by username.
// Anything else is a no-op; only infrastructure faults are reported.
func (s *Service) Logout(ctx context.Context, username, sessionKey string) (err error) {
	ctx, span := s.start(ctx, "Logout")
	defer func() { endSpan(span, err) }()

	session, err := s.sessions.lookup(ctx, sessionKey)
	if err != nil {
		return err
	}
	if session == nil || !session.Active || session.Username != username {
		s.logger.DebugContext(ctx, "logout ignored", "username", username)
		return nil
	}
	return s.sessions.Invalidate(ctx, sessionKey)
}

// VerifySession reports who holds sessionKey. The session must be active and
// owned by username.
func (s *Service) VerifySession(ctx context.Context, username, sessionKey string) (identity *Identity, err error) {
	ctx, span := s.start(ctx, "VerifySession")
	defer func() { endSpan(span, err) }()

	owner, err := s.sessions.Validate(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if owner == "" || owner != username {
		return nil, authenticationError("SESSION_INVALID", "invalid session")
	}
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		return nil, s.unknownUser(ctx, "session rejected", username, err)
	}
	return &Identity{Username: username, Role: user.Role}, nil
}

// Prune removes expired access keys.
func (s *Service) Prune(ctx context.Context) (int64, error) {
	return s.issuer.Prune(ctx)
}

func (s *Service) openSession(ctx context.Context, username string, role Role) (*LoginResult, error) {
	key, err := s.sessions.Open(ctx, username)
	if err != nil {
		return nil, err
	}
	s.observer.SessionOpened()
	return &LoginResult{Username: username, Role: role, AuthKey: key, SessionKey: key}, nil
}

func (s *Service) sendAccessKey(ctx context.Context, username string, purpose Purpose) error {
	_, link, err := s.issuer.Issue(ctx, username, purpose)
	if err != nil {
		return err
	}

	send := s.mailer.SendConfirmationEmail
	if purpose == PurposeReset {
		send = s.mailer.SendResetEmail
	}
	if err := send(ctx, username, link); err != nil {
		return oops.Code("MAIL_DELIVERY_FAILED").
			With("purpose", string(purpose)).
			With("username", username).
			Wrap(fmt.Errorf("%w: %w", ErrInfrastructure, err))
	}
	s.logger.InfoContext(ctx, "access key sent", "username", username, "purpose", string(purpose))
	return nil
}

func (s *Service) recordFailure(ctx context.Context, username string) {
	failures, err := s.users.RecordLoginFailure(ctx, username)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record login failure", "username", username, "error", err)
		return
	}
	if signal := EvaluateFailures(failures); signal.Suspicious {
		s.observer.SuspiciousLoginFailures()
		s.logger.WarnContext(ctx, "repeated login failures",
			"username", username,
			"failures", signal.Failures)
	}
}

func (s *Service) loginRejected(ctx context.Context, username, reason string) error {
	s.logger.WarnContext(ctx, "login rejected", "username", username, "reason", reason)
	return authenticationError("AUTH_INVALID_CREDENTIALS", "invalid username or password")
}

// unknownUser maps a missing user record found mid-flow to an authentication
// error. Other errors pass through.
func (s *Service) unknownUser(ctx context.Context, msg, username string, err error) error {
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	s.logger.WarnContext(ctx, msg, "username", username, "reason", "unknown user")
	return authenticationError("AUTH_INVALID_CREDENTIALS", "invalid username or password")
}

func (s *Service) start(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "auth."+operation, trace.WithAttributes(attribute.String("auth.operation", operation)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err))
	}
	span.End()
}
