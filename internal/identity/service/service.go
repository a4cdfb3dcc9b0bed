package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fintrail/internal/identity/models"
	jwttoken "fintrail/internal/jwt_token"
	"fintrail/internal/platform/metrics"
	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/sentinel"
	"fintrail/pkg/requestcontext"
)

// UserStore is the persistence the identity service needs.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
}

// TokenRevoker blocks token ids until they would have expired anyway.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// MFAVerifier issues TOTP secrets and checks one-time codes against them.
type MFAVerifier interface {
	Generate(account string) (secret, uri string, err error)
	Verify(secret, code string) bool
}

// AuditEmitter records explicit audit entries. *audit.Emitter satisfies it.
type AuditEmitter interface {
	Emit(ctx context.Context, entry audit.Entry)
}

// Config holds token lifetimes.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Service implements registration, login and token lifecycle.
type Service struct {
	users   UserStore
	tokens  *jwttoken.JWTService
	revoker TokenRevoker
	mfa     MFAVerifier
	auditor AuditEmitter
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	hashCost  int
	dummyHash []byte
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func New(users UserStore, tokens *jwttoken.JWTService, revoker TokenRevoker, mfa MFAVerifier, auditor AuditEmitter, cfg Config, opts ...Option) *Service {
	s := &Service{
		users:    users,
		tokens:   tokens,
		revoker:  revoker,
		mfa:      mfa,
		auditor:  auditor,
		cfg:      cfg,
		logger:   slog.New(slog.DiscardHandler),
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	// Unknown emails still pay for one bcrypt comparison.
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("fintrail-timing-equalizer"), s.hashCost)
	return s
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	PhoneNumber  string
	IDNumber     string
	ConsentGiven bool
}

// Register creates an active user with the default role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid email address")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	u := &models.User{
		Email:          email,
		HashedPassword: string(hash),
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		PhoneNumber:    in.PhoneNumber,
		IDNumber:       in.IDNumber,
		Role:           id.RoleUser,
		IsActive:       true,
		ConsentGiven:   in.ConsentGiven,
		CreatedAt:      now,
	}
	if in.ConsentGiven {
		u.ConsentDate = &now
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "Email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.metrics.IncUsersRegistered()
	s.logger.InfoContext(ctx, "user registered",
		"user_id", u.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      u.ID,
		Action:       audit.ActionCreate,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ResourceRef(u.ID),
		Description:  "New user registered",
	})
	if u.ConsentGiven {
		s.auditor.Emit(ctx, audit.Entry{
			ActorID:      u.ID,
			Action:       audit.ActionConsentGiven,
			ResourceType: audit.ResourceUser,
			ResourceID:   audit.ResourceRef(u.ID),
			Description:  "Data processing consent given at registration",
			Metadata:     map[string]any{"purpose": id.ConsentPurposeDataProcessing.String()},
		})
	}
	return u, nil
}

// LoginInput carries credentials. MFAToken is required for MFA-enabled users.
type LoginInput struct {
	Email    string
	Password string
	MFAToken string
}

// Login failure reasons. They are recorded in the audit trail only; the
// caller always sees errInvalidCredentials.
const (
	reasonUnknownEmail  = "unknown email"
	reasonWrongPassword = "incorrect password"
	reasonInactive      = "inactive account"
	reasonMFAMissing    = "MFA token required"
	reasonMFAInvalid    = "invalid MFA token"
)

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "Incorrect email or password")

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, in LoginInput) (models.TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return models.TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
		return models.TokenPair{}, s.loginFailed(ctx, nil, email, reasonUnknownEmail)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(in.Password)); err != nil {
		return models.TokenPair{}, s.loginFailed(ctx, u, email, reasonWrongPassword)
	}
	if !u.IsActive {
		return models.TokenPair{}, s.loginFailed(ctx, u, email, reasonInactive)
	}
	if u.MFAEnabled {
		if strings.TrimSpace(in.MFAToken) == "" {
			return models.TokenPair{}, s.loginFailed(ctx, u, email, reasonMFAMissing)
		}
		if !s.mfa.Verify(u.MFASecret, in.MFAToken) {
			return models.TokenPair{}, s.loginFailed(ctx, u, email, reasonMFAInvalid)
		}
	}

	now := requestcontext.Now(ctx)
	u.LastLogin = &now
	if err := s.users.Update(ctx, u); err != nil {
		return models.TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login")
	}

	pair, err := s.issuePair(u)
	if err != nil {
		return models.TokenPair{}, err
	}

	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      u.ID,
		Action:       audit.ActionLogin,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ResourceRef(u.ID),
		Description:  "User logged in successfully",
		Metadata:     map[string]any{"mfa_used": u.MFAEnabled},
	})
	return pair, nil
}

func (s *Service) loginFailed(ctx context.Context, u *models.User, email, reason string) error {
	s.metrics.IncLoginFailure(reason)
	s.logger.WarnContext(ctx, "login failed",
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)

	entry := audit.Entry{
		Action:       audit.ActionAccessDenied,
		ResourceType: audit.ResourceUser,
		Description:  "Failed login attempt - " + reason,
		Metadata:     map[string]any{"reason": reason},
	}
	if u != nil {
		entry.ActorID = u.ID
		entry.ResourceID = audit.ResourceRef(u.ID)
	} else {
		entry.Metadata["attempted_email"] = email
	}
	s.auditor.Emit(ctx, entry)
	return errInvalidCredentials
}

func (s *Service) issuePair(u *models.User) (models.TokenPair, error) {
	sub := jwttoken.Subject{UserID: u.ID, Email: u.Email, Role: u.Role}
	access, err := s.tokens.GenerateAccessToken(sub, s.cfg.AccessTokenTTL)
	if err != nil {
		return models.TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}
	refresh, err := s.tokens.GenerateRefreshToken(sub, s.cfg.RefreshTokenTTL)
	if err != nil {
		return models.TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue refresh token")
	}
	return models.TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented refresh
// token is revoked so it cannot be replayed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	claims, err := s.tokens.ValidateToken(refreshToken, jwttoken.TypeRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}
	revoked, err := s.revoker.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return models.TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check token revocation")
	}
	if revoked {
		return models.TokenPair{}, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
	}
	userID, err := claims.UserID()
	if err != nil {
		return models.TokenPair{}, err
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.TokenPair{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
		}
		return models.TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !u.IsActive {
		return models.TokenPair{}, dErrors.New(dErrors.CodeUnauthorized, "inactive account")
	}

	if ttl := claims.ExpiresAt.Time.Sub(requestcontext.Now(ctx)); ttl > 0 {
		if err := s.revoker.RevokeToken(ctx, claims.ID, ttl); err != nil {
			return models.TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to rotate refresh token")
		}
	}
	return s.issuePair(u)
}

// Logout revokes the caller's access token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, actor requestcontext.Identity) error {
	if !actor.Authenticated() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if ttl := actor.ExpiresAt.Sub(requestcontext.Now(ctx)); ttl > 0 {
		if err := s.revoker.RevokeToken(ctx, actor.TokenID, ttl); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
		}
	}
	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionLogout,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ResourceRef(actor.UserID),
		Description:  "User logged out",
	})
	return nil
}

// MFASetup is a pending enrollment. MFA stays off until a code generated
// from Secret is confirmed.
type MFASetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// SetupMFA stores a fresh TOTP secret for the caller, replacing any earlier
// unconfirmed one.
func (s *Service) SetupMFA(ctx context.Context, actor requestcontext.Identity) (MFASetup, error) {
	u, err := s.caller(ctx, actor)
	if err != nil {
		return MFASetup{}, err
	}
	if u.MFAEnabled {
		return MFASetup{}, dErrors.New(dErrors.CodeBadRequest, "MFA is already enabled")
	}

	secret, uri, err := s.mfa.Generate(u.Email)
	if err != nil {
		return MFASetup{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate MFA secret")
	}
	u.MFASecret = secret
	u.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, u); err != nil {
		return MFASetup{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store MFA secret")
	}

	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      u.ID,
		Action:       audit.ActionUpdate,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ResourceRef(u.ID),
		Description:  "MFA setup started",
		Metadata:     map[string]any{"mfa_secret": map[string]any{"old": "***", "new": "***"}},
	})
	return MFASetup{Secret: secret, ProvisioningURI: uri, BackupCodes: []string{}}, nil
}

// EnableMFA turns MFA on once code matches the pending secret.
func (s *Service) EnableMFA(ctx context.Context, actor requestcontext.Identity, code string) error {
	u, err := s.caller(ctx, actor)
	if err != nil {
		return err
	}
	if u.MFAEnabled {
		return dErrors.New(dErrors.CodeBadRequest, "MFA is already enabled")
	}
	if u.MFASecret == "" {
		return dErrors.New(dErrors.CodeBadRequest, "MFA not set up. Please setup MFA first.")
	}
	if !s.mfa.Verify(u.MFASecret, code) {
		s.logger.WarnContext(ctx, "mfa confirmation failed",
			"user_id", u.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.New(dErrors.CodeBadRequest, "Invalid MFA token")
	}

	u.MFAEnabled = true
	u.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, u); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enable MFA")
	}
	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      u.ID,
		Action:       audit.ActionUpdate,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ResourceRef(u.ID),
		Description:  "MFA enabled",
		Metadata:     map[string]any{"mfa_enabled": map[string]any{"old": false, "new": true}},
	})
	return nil
}

func (s *Service) caller(ctx context.Context, actor requestcontext.Identity) (*models.User, error) {
	if !actor.Authenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	u, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("user %d not found", userID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}
