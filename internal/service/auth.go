// Package service contains application services for identity, notes and sharing.
package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/conote/internal/crypto"
	"github.com/and161185/conote/internal/errs"
	"github.com/and161185/conote/internal/limiter"
	"github.com/and161185/conote/internal/model"
	"github.com/and161185/conote/internal/repository"
)

const (
	minPasswordLen = 8
	tokenLeeway    = 30 * time.Second
)

// AuthService defines the identity boundary: local accounts, external
// assertions and bearer credential validation.
type AuthService interface {
	// Register creates a local account and logs it in.
	Register(ctx context.Context, name, email, password string) (model.Tokens, model.User, error)
	// LoginWithIP applies rate-limiting and authenticates the user.
	LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error)
	// ExternalLogin trusts a signed identity assertion from an external provider.
	ExternalLogin(ctx context.Context, assertion string) (model.Tokens, model.User, error)
	// Authenticate validates an access token and resolves the caller.
	Authenticate(ctx context.Context, token string) (model.Identity, error)
	// Me returns the caller's account.
	Me(ctx context.Context, userID uuid.UUID) (*model.User, error)
}

// AuthOptions configures AuthServiceImpl.
type AuthOptions struct {
	SignKey     []byte
	ExternalKey []byte // empty disables ExternalLogin
	AccessTTL   time.Duration
}

type AuthServiceImpl struct {
	users  repository.UserRepository
	shares repository.ShareRepository
	opts   AuthOptions
	lim    limiter.Limiter
	log    *zap.Logger
	now    func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(
	users repository.UserRepository,
	shares repository.ShareRepository,
	opts AuthOptions,
	lim limiter.Limiter,
	log *zap.Logger,
) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{users: users, shares: shares, opts: opts, lim: lim, log: log, now: time.Now}
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func validEmail(email string) bool {
	a, err := mail.ParseAddress(email)
	return err == nil && a.Address == email
}

// Register creates a new user record with a per-user salt.
func (s *AuthServiceImpl) Register(ctx context.Context, name, email, password string) (model.Tokens, model.User, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	switch {
	case name == "":
		return model.Tokens{}, model.User{}, errs.Invalid("name is required")
	case !validEmail(email):
		return model.Tokens{}, model.User{}, errs.Invalid("valid email is required")
	case len(password) < minPasswordLen:
		return model.Tokens{}, model.User{}, errs.Invalid("password must be at least 8 characters")
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	salt, err := pkgcrypto.RandBytes(16)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	u := &model.User{
		ID:       uid,
		Name:     name,
		Email:    email,
		PwdHash:  pkgcrypto.HashPassword([]byte(password), salt),
		PwdSalt:  salt,
		Role:     model.RoleUser,
		Provider: model.ProviderLocal,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return model.Tokens{}, model.User{}, errs.AlreadyExists("email already registered")
		}
		return model.Tokens{}, model.User{}, err
	}
	s.bindPendingShares(ctx, u)
	return s.login(u)
}

// bindPendingShares attaches email-targeted invitations to a new account.
// Best-effort: the shares stay reachable by email when this fails.
func (s *AuthServiceImpl) bindPendingShares(ctx context.Context, u *model.User) {
	n, err := s.shares.BindEmail(ctx, u.Email, u.ID)
	if err != nil {
		s.log.Warn("bind pending shares", zap.String("user_id", u.ID.String()), zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("bound pending shares", zap.String("user_id", u.ID.String()), zap.Int64("count", n))
	}
}

// LoginWithIP authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	email = NormalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.PwdSalt, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// missing user and wrong password look the same
		return model.Tokens{}, model.User{}, errs.Unauthorized("invalid email or password")
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, email, ipHash)
	return s.login(u)
}

type externalClaims struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Picture  string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// ExternalLogin finds the account by provider id, else links it by email,
// else creates a password-less account.
func (s *AuthServiceImpl) ExternalLogin(ctx context.Context, assertion string) (model.Tokens, model.User, error) {
	if len(s.opts.ExternalKey) == 0 {
		return model.Tokens{}, model.User{}, errs.Unauthorized("external login is disabled")
	}
	var c externalClaims
	if err := s.parse(assertion, s.opts.ExternalKey, &c); err != nil {
		return model.Tokens{}, model.User{}, &errs.Error{Kind: errs.ErrUnauthorized, Reason: "invalid identity assertion", Err: err}
	}
	provider := model.Provider(c.Provider)
	email := NormalizeEmail(c.Email)
	if !provider.External() || c.Subject == "" || !validEmail(email) {
		return model.Tokens{}, model.User{}, errs.Invalid("identity assertion is incomplete")
	}

	u, err := s.users.GetByProvider(ctx, provider, c.Subject)
	if err == nil {
		return s.login(u)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.User{}, err
	}

	u, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.users.LinkProvider(ctx, u.ID, provider, c.Subject); err != nil {
			return model.Tokens{}, model.User{}, err
		}
		u.Provider, u.ProviderID = provider, c.Subject
		return s.login(u)
	case !errors.Is(err, errs.ErrNotFound):
		return model.Tokens{}, model.User{}, err
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = email[:strings.IndexByte(email, '@')]
	}
	u = &model.User{
		ID:             uid,
		Name:           name,
		Email:          email,
		ProfilePicture: c.Picture,
		Role:           model.RoleUser,
		Provider:       provider,
		ProviderID:     c.Subject,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return model.Tokens{}, model.User{}, err
	}
	s.bindPendingShares(ctx, u)
	return s.login(u)
}

// Authenticate parses an HS256 access token and loads the subject.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	var claims jwt.RegisteredClaims
	if err := s.parse(token, s.opts.SignKey, &claims); err != nil {
		return model.Identity{}, &errs.Error{Kind: errs.ErrUnauthorized, Reason: "invalid token", Err: err}
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return model.Identity{}, errs.Unauthorized("bad subject")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Identity{}, errs.Unauthorized("unknown user")
		}
		return model.Identity{}, err
	}
	return model.Identity{UserID: u.ID, Name: u.Name, Email: u.Email}, nil
}

// Me returns the account with credentials stripped.
func (s *AuthServiceImpl) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.PwdHash, u.PwdSalt = nil, nil
	return u, nil
}

func (s *AuthServiceImpl) parse(token string, key []byte, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithLeeway(tokenLeeway), jwt.WithTimeFunc(s.now))
	return err
}

func (s *AuthServiceImpl) login(u *model.User) (model.Tokens, model.User, error) {
	access, exp, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	out := *u
	out.PwdHash, out.PwdSalt = nil, nil
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, out, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.opts.AccessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.opts.SignKey)
	return signed, exp, err
}
