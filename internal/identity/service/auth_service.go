// Package service orchestrates registration, login, token refresh, logout and account
// changes over the password engine, token issuer, session registry, CSRF guard, audit trail
// and security monitor.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"accessguard/internal/audit"
	auditdomain "accessguard/internal/audit/domain"
	"accessguard/internal/csrf"
	"accessguard/internal/identity/domain"
	identityrepo "accessguard/internal/identity/repository"
	"accessguard/internal/monitor"
	threatdomain "accessguard/internal/monitor/domain"
	"accessguard/internal/platform/apperr"
	"accessguard/internal/platform/keylock"
	"accessguard/internal/platform/ratelimit"
	"accessguard/internal/platform/rbac"
	"accessguard/internal/security"
	"accessguard/internal/session"
	sessiondomain "accessguard/internal/session/domain"
	"accessguard/internal/telemetry"
	"accessguard/internal/telemetry/metrics"
)

// Sentinel errors for the auth service; the transport maps them to gRPC codes through apperr.
// Authentication failures share one message whatever check failed.
var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthenticated)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", apperr.ErrUnauthenticated)
	ErrAccountLocked      = fmt.Errorf("%w: too many failed login attempts", apperr.ErrLocked)
	ErrTooManyAttempts    = fmt.Errorf("%w: too many login attempts, retry later", apperr.ErrRateLimited)
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", apperr.ErrConflict)
	ErrIdentityNotFound   = fmt.Errorf("%w: identity not found", apperr.ErrNotFound)
	ErrConcurrentChange   = fmt.Errorf("%w: identity changed concurrently, retry", apperr.ErrConflict)
)

// Login outcomes counted by the logins metric.
const (
	outcomeSuccess     = "success"
	outcomeFailure     = "failure"
	outcomeLocked      = "locked"
	outcomeRateLimited = "rate_limited"
)

const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`

var emailPattern = regexp.MustCompile(simpleEmail)

// Deps are the collaborators of an AuthService. Audit, Monitor and Events may be nil.
type Deps struct {
	Identities  identityrepo.Repository
	Passwords   *security.PasswordEngine
	Tokens      *TokenIssuer
	Sessions    *session.Registry
	CSRF        *csrf.Guard
	Permissions *rbac.Registry
	Audit       audit.Recorder
	Monitor     *monitor.Monitor
	Events      telemetry.EventEmitter
}

// Options configures login bookkeeping. Zero fields take the defaults below.
type Options struct {
	MaxFailedLogins    int           // failures before lockout, default 5
	LockoutDuration    time.Duration // default 30 minutes
	LoginRatePerMinute int           // per-source login attempts; negative disables, 0 means 30
	DefaultRole        rbac.Role     // role of self-registered identities, default employee
}

func (o Options) withDefaults() Options {
	if o.MaxFailedLogins < 1 {
		o.MaxFailedLogins = 5
	}
	if o.LockoutDuration <= 0 {
		o.LockoutDuration = 30 * time.Minute
	}
	if o.LoginRatePerMinute == 0 {
		o.LoginRatePerMinute = 30
	}
	if o.DefaultRole == "" {
		o.DefaultRole = rbac.RoleEmployee
	}
	return o
}

// Profile is the minimal view of an identity returned to clients.
type Profile struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	Role        rbac.Role
	Status      domain.Status
	LastLoginAt *time.Time
}

func profileOf(i *domain.Identity) Profile {
	return Profile{
		ID:          i.ID,
		Email:       i.Email,
		FirstName:   i.FirstName,
		LastName:    i.LastName,
		Role:        i.Role,
		Status:      i.Status,
		LastLoginAt: i.LastLoginAt,
	}
}

// RegisterInput is the input to Register. Role is honored as given; public registration
// leaves it empty to get the default role.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      rbac.Role
	IP        string
	UserAgent string
}

// LoginInput is the input to Login. IP identifies the source for rate limiting and threat
// reports.
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is the outcome of a successful Login.
type LoginResult struct {
	TokenPair
	SessionID       string
	CSRFToken       string
	Profile         Profile
	PasswordExpired bool
}

// AuthService implements the authentication flows. Mutations of one identity are serialized
// by a per-identity lock held across storage calls only; password hashing runs outside it.
type AuthService struct {
	identities  identityrepo.Repository
	passwords   *security.PasswordEngine
	tokens      *TokenIssuer
	sessions    *session.Registry
	csrf        *csrf.Guard
	permissions *rbac.Registry
	audit       audit.Recorder
	monitor     *monitor.Monitor
	events      telemetry.EventEmitter

	opts    Options
	locks   *keylock.Locker
	limiter *ratelimit.Limiter
	now     func() time.Time
}

// NewAuthService returns an AuthService over deps. It hooks session ends so that a session's
// CSRF token and refresh token die with it.
func NewAuthService(deps Deps, opts Options) *AuthService {
	opts = opts.withDefaults()
	s := &AuthService{
		identities:  deps.Identities,
		passwords:   deps.Passwords,
		tokens:      deps.Tokens,
		sessions:    deps.Sessions,
		csrf:        deps.CSRF,
		permissions: deps.Permissions,
		audit:       deps.Audit,
		monitor:     deps.Monitor,
		events:      deps.Events,
		opts:        opts,
		locks:       keylock.New(),
		limiter:     ratelimit.New(opts.LoginRatePerMinute, 10*time.Minute),
		now:         time.Now,
	}
	s.sessions.OnInvalidate(s.onSessionEnded)
	return s
}

func (s *AuthService) onSessionEnded(ctx context.Context, sess *sessiondomain.Session) {
	if s.csrf != nil {
		s.csrf.Revoke(sess.ID)
	}
	if sess.RefreshTokenHash == "" {
		return
	}
	if _, err := s.tokens.RevokeHash(ctx, sess.IdentityID, sess.RefreshTokenHash); err != nil {
		log.Printf("auth: failed to revoke refresh token of session %s: %v", sess.ID, err)
	}
}

// Register creates an active identity. The email must be unused and the password must pass the
// complexity check; no record is written otherwise.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	email := domain.NormalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = s.opts.DefaultRole
	}
	if !role.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown role %q", string(role)))
	}
	existing, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	firstName, lastName := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	result := s.passwords.ScoreComplexity(in.Password, &security.UserInfo{Email: email, FirstName: firstName, LastName: lastName})
	if !result.IsValid {
		return nil, complexityError(result)
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ident := &domain.Identity{
		ID:                uuid.New().String(),
		Email:             email,
		PasswordHash:      hash,
		FirstName:         firstName,
		LastName:          lastName,
		Role:              role,
		Status:            domain.StatusActive,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := ident.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if err := s.identities.Create(ctx, ident); err != nil {
		if errors.Is(err, identityrepo.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.record(ctx, auditdomain.Event{
		Action:      auditdomain.ActionRegister,
		EntityType:  auditdomain.EntityIdentity,
		EntityID:    ident.ID,
		ActorID:     ident.ID,
		ActorEmail:  ident.Email,
		IPAddress:   in.IP,
		UserAgent:   in.UserAgent,
		Description: "identity registered",
		After:       map[string]any{"email": ident.Email, "role": string(ident.Role), "status": string(ident.Status)},
	})
	p := profileOf(ident)
	return &p, nil
}

// Login authenticates email and password. Every credential failure returns
// ErrInvalidCredentials; a locked account returns ErrAccountLocked and a source over its
// attempt budget ErrTooManyAttempts. The failure that reaches MaxFailedLogins locks the account
// and reports a brute-force threat against the source.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := domain.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	if !s.limiter.Allow(in.IP) {
		metrics.LoginOutcome(outcomeRateLimited)
		s.reportThreat(ctx, monitor.ThreatReport{
			Type:        threatdomain.TypeRateLimitExceeded,
			Source:      in.IP,
			Description: "login rate limit exceeded",
			Metadata:    map[string]any{"email": email},
		})
		return nil, ErrTooManyAttempts
	}

	ident, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if ident == nil {
		metrics.LoginOutcome(outcomeFailure)
		s.record(ctx, s.loginEvent(auditdomain.ActionLoginFailed, nil, email, in, "login failed: user not found"))
		return nil, ErrInvalidCredentials
	}
	if ident.IsLocked(now) {
		metrics.LoginOutcome(outcomeLocked)
		s.record(ctx, s.loginEvent(auditdomain.ActionLoginFailed, ident, email, in, "login on locked account"))
		return nil, ErrAccountLocked
	}
	if !s.passwords.Verify(ident.PasswordHash, in.Password) {
		s.failLogin(ctx, ident, in, now)
		return nil, ErrInvalidCredentials
	}
	if !ident.IsActive() {
		metrics.LoginOutcome(outcomeFailure)
		s.record(ctx, s.loginEvent(auditdomain.ActionLoginFailed, ident, email, in, "login failed: account "+string(ident.Status)))
		return nil, ErrInvalidCredentials
	}
	return s.completeLogin(ctx, ident, in, now)
}

// failLogin counts a wrong password and, when that locks the account, audits the lockout and
// reports a brute-force threat for the source. Lockout is tracked per identity and the threat
// per source; the two counters are independent.
func (s *AuthService) failLogin(ctx context.Context, ident *domain.Identity, in LoginInput, now time.Time) {
	metrics.LoginOutcome(outcomeFailure)
	count, lockedUntil, err := s.identities.RecordFailedLogin(ctx, ident.ID, s.opts.MaxFailedLogins, now.Add(s.opts.LockoutDuration))
	if err != nil {
		log.Printf("auth: failed to record failed login for %s: %v", ident.ID, err)
	}
	ev := s.loginEvent(auditdomain.ActionLoginFailed, ident, ident.Email, in, "login failed: invalid password")
	ev.Metadata["failed_attempts"] = count
	s.record(ctx, ev)

	if lockedUntil == nil || !lockedUntil.After(now) {
		return
	}
	s.record(ctx, auditdomain.Event{
		Action:      auditdomain.ActionAccountLocked,
		EntityType:  auditdomain.EntityIdentity,
		EntityID:    ident.ID,
		ActorEmail:  ident.Email,
		IPAddress:   in.IP,
		UserAgent:   in.UserAgent,
		Description: fmt.Sprintf("account locked after %d failed attempts", count),
		Metadata:    map[string]any{"locked_until": lockedUntil.Format(time.RFC3339), "failed_attempts": count},
	})
	s.reportThreat(ctx, monitor.ThreatReport{
		Type:        threatdomain.TypeBruteForce,
		Source:      in.IP,
		Severity:    threatdomain.SeverityMedium,
		Description: fmt.Sprintf("%d failed logins for %s", count, ident.Email),
		Metadata:    map[string]any{"identity_id": ident.ID, "failed_attempts": count},
	})
	telemetry.EmitAsync(s.events, ctx, &telemetry.SecurityEvent{
		ID:         uuid.New().String(),
		EventType:  telemetry.EventAccountLocked,
		Source:     in.IP,
		Severity:   string(threatdomain.SeverityMedium),
		IdentityID: ident.ID,
		Metadata:   map[string]any{"failed_attempts": count},
	})
}

func (s *AuthService) completeLogin(ctx context.Context, ident *domain.Identity, in LoginInput, now time.Time) (*LoginResult, error) {
	// Upgrade the stored hash while the plaintext is at hand; hashing stays off the lock.
	var rehash string
	if s.passwords.NeedsRehash(ident.PasswordHash) {
		h, err := s.passwords.Hash(in.Password)
		if err != nil {
			log.Printf("auth: rehash for %s failed: %v", ident.ID, err)
		} else {
			rehash = h
		}
	}

	unlock := s.locks.Lock(ident.ID)
	defer unlock()

	current, err := s.identities.GetByID(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.IsActive() || current.PasswordHash != ident.PasswordHash {
		metrics.LoginOutcome(outcomeFailure)
		return nil, ErrInvalidCredentials
	}
	if err := s.identities.ResetFailedLogins(ctx, current.ID, now); err != nil {
		return nil, err
	}
	current.FailedLogins, current.LockedUntil, current.LastLoginAt = 0, nil, &now
	if rehash != "" {
		current.PasswordHash = rehash
		current.UpdatedAt = now
		if err := s.identities.Update(ctx, current); err != nil {
			log.Printf("auth: failed to store upgraded hash for %s: %v", current.ID, err)
		}
	}

	refresh, refreshExp, err := s.tokens.IssueRefresh(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Create(ctx, current.ID, refresh, in.UserAgent, in.IP)
	if err != nil {
		s.revokeQuietly(ctx, current.ID, refresh)
		return nil, err
	}
	access, accessExp, err := s.tokens.IssueAccess(current, sess.ID)
	if err != nil {
		return nil, err
	}
	csrfToken, err := s.csrf.Issue(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	metrics.LoginOutcome(outcomeSuccess)
	ev := s.loginEvent(auditdomain.ActionLoginSuccess, current, current.Email, in, "login success")
	ev.ActorID = current.ID
	ev.Metadata["session_id"] = sess.ID
	ev.Metadata["device"] = string(sess.Device.Type)
	s.record(ctx, ev)

	return &LoginResult{
		TokenPair:       s.pair(access, accessExp, refresh, refreshExp, now),
		SessionID:       sess.ID,
		CSRFToken:       csrfToken,
		Profile:         profileOf(current),
		PasswordExpired: s.passwords.IsExpired(current.PasswordChangedAt, current.PasswordExpiresAt),
	}, nil
}

func (s *AuthService) pair(access string, accessExp time.Time, refresh string, refreshExp, now time.Time) TokenPair {
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		ExpiresIn:        int64(accessExp.Sub(now).Seconds()),
	}
}

func (s *AuthService) loginEvent(action auditdomain.Action, ident *domain.Identity, email string, in LoginInput, desc string) auditdomain.Event {
	ev := auditdomain.Event{
		Action:      action,
		EntityType:  auditdomain.EntityIdentity,
		ActorEmail:  email,
		IPAddress:   in.IP,
		UserAgent:   in.UserAgent,
		Description: desc,
		Metadata:    map[string]any{"email": email},
	}
	if ident != nil {
		ev.EntityID = ident.ID
	}
	return ev
}

// record writes an audit event without blocking the caller when the recorder supports it.
func (s *AuthService) record(ctx context.Context, e auditdomain.Event) {
	if s.audit == nil {
		return
	}
	if a, ok := s.audit.(interface {
		RecordAsync(context.Context, auditdomain.Event)
	}); ok {
		a.RecordAsync(ctx, e)
		return
	}
	s.audit.Record(ctx, e)
}

func (s *AuthService) reportThreat(ctx context.Context, r monitor.ThreatReport) {
	if s.monitor == nil {
		return
	}
	if _, err := s.monitor.Report(ctx, r); err != nil {
		log.Printf("auth: failed to report %s threat from %s: %v", r.Type, r.Source, err)
	}
}

func (s *AuthService) revokeQuietly(ctx context.Context, identityID, refreshToken string) {
	if _, err := s.tokens.Revoke(ctx, identityID, refreshToken); err != nil {
		log.Printf("auth: failed to revoke refresh token for %s: %v", identityID, err)
	}
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	if !emailPattern.MatchString(email) {
		return apperr.Validation("invalid email format")
	}
	return nil
}

func complexityError(r security.ComplexityResult) error {
	details := append([]string{fmt.Sprintf("password is too weak (score %d, %s)", r.Score, r.Strength)}, r.Feedback...)
	return apperr.Validation(details...)
}
