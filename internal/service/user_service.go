package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/domain"
	"storefront/internal/notify"
	"storefront/internal/repository"
)

// UserService coordina registro, desafíos OTP y autenticación de cuentas.
type UserService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	emailSender notify.Sender
	smsSender   notify.Sender
	otpLimiter  OTPRateLimiter
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, emailSender, smsSender notify.Sender, otpLimiter OTPRateLimiter) *UserService {
	if otpLimiter == nil {
		otpLimiter = NewOTPRateLimiter(otpTTL, 3)
	}
	return &UserService{
		logger:      logger,
		users:       users,
		emailSender: emailSender,
		smsSender:   smsSender,
		otpLimiter:  otpLimiter,
	}
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrOTPNotRequested    = errors.New("otp not requested")
	ErrOTPExpired         = errors.New("otp expired")
	ErrOTPInvalid         = errors.New("otp invalid")
	ErrOAuthInvalid       = errors.New("oauth data invalid")
	ErrDeliveryFailure    = errors.New("otp delivery failed")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidIdentity    = errors.New("invalid identity")
	ErrDuplicateIdentity  = errors.New("identity already registered")
	ErrNotVerified        = errors.New("account not verified")
	ErrAccountDisabled    = errors.New("account disabled")
)

const otpTTL = 10 * time.Minute

// Identity es un email o un número de móvil ya normalizado.
type Identity struct {
	Email  string
	Mobile string
}

// ParseIdentity clasifica y normaliza la identidad recibida del cliente.
func ParseIdentity(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrInvalidIdentity
	}
	if strings.Contains(raw, "@") {
		return Identity{Email: strings.ToLower(raw)}, nil
	}
	mobile := strings.NewReplacer(" ", "", "-", "").Replace(raw)
	if !isValidMobile(mobile) {
		return Identity{}, ErrInvalidIdentity
	}
	return Identity{Mobile: mobile}, nil
}

func (i Identity) key() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Mobile
}

type RegisterInput struct {
	Identity Identity
	Name     string
	Password string
}

// Register crea (o reutiliza) una cuenta sin verificar y emite un desafío OTP.
// Una identidad ya verificada es un conflicto; una sin verificar se reutiliza
// en lugar de duplicarse, y el nombre y la contraseña del intento anterior se
// reemplazan por los del último registrante: solo quien verifica queda con
// credenciales que eligió.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	user, err := s.findByIdentity(ctx, input.Identity)
	switch {
	case err == nil:
		if user.Verified {
			return domain.User{}, ErrDuplicateIdentity
		}
		passwordHash, err := hashPassword(input.Password)
		if err != nil {
			return domain.User{}, err
		}
		user.Name = strings.TrimSpace(input.Name)
		user.PasswordHash = passwordHash
		if err := s.users.UpdateProfile(ctx, user.ID, user.Name, user.PasswordHash); err != nil {
			return domain.User{}, err
		}
	case errors.Is(err, pgx.ErrNoRows):
		passwordHash, err := hashPassword(input.Password)
		if err != nil {
			return domain.User{}, err
		}
		now := time.Now().UTC()
		user = domain.User{
			ID:           uuid.NewString(),
			Email:        input.Identity.Email,
			Mobile:       input.Identity.Mobile,
			Name:         strings.TrimSpace(input.Name),
			PasswordHash: passwordHash,
			Role:         domain.RoleUser,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return domain.User{}, err
		}
	default:
		return domain.User{}, err
	}

	if err := s.issueChallenge(ctx, &user, input.Identity); err != nil {
		return user, err
	}
	return user, nil
}

// RequestOTP emite un nuevo desafío para una identidad conocida, sobrescribiendo
// cualquier desafío previo. El handler decide si ErrUserNotFound se enmascara.
func (s *UserService) RequestOTP(ctx context.Context, identity Identity) (domain.User, error) {
	user, err := s.findByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	if err := s.issueChallenge(ctx, &user, identity); err != nil {
		return user, err
	}
	return user, nil
}

// VerifyOTP valida un código pendiente y marca la cuenta como verificada.
// El orden de fallos es fijo: cuenta inexistente, sin desafío, expirado,
// código distinto. Limpiar el par y marcar verified es un solo UPDATE
// condicional; si la condición ya no se cumple, otro consumidor ganó.
func (s *UserService) VerifyOTP(ctx context.Context, identity Identity, code string) (domain.User, error) {
	user, err := s.checkChallenge(ctx, identity, code)
	if err != nil {
		return domain.User{}, err
	}

	consumed, err := s.users.ConsumeOTPVerify(ctx, user.ID, code)
	if err != nil {
		return domain.User{}, err
	}
	if !consumed {
		return domain.User{}, ErrOTPNotRequested
	}

	user.Verified = true
	user.OTPCode = ""
	user.OTPExpiresAt = nil
	return user, nil
}

// LoginWithOTP consume un código pendiente sin más efecto que autorizar la
// sesión que el llamador emitirá a continuación.
func (s *UserService) LoginWithOTP(ctx context.Context, identity Identity, code string) (domain.User, error) {
	user, err := s.checkChallenge(ctx, identity, code)
	if err != nil {
		return domain.User{}, err
	}
	if !user.Active {
		return domain.User{}, ErrAccountDisabled
	}

	consumed, err := s.users.ConsumeOTP(ctx, user.ID, code)
	if err != nil {
		return domain.User{}, err
	}
	if !consumed {
		return domain.User{}, ErrOTPNotRequested
	}

	user.OTPCode = ""
	user.OTPExpiresAt = nil
	return user, nil
}

// ResetPassword consume un código pendiente y rota la contraseña en el mismo
// UPDATE condicional.
func (s *UserService) ResetPassword(ctx context.Context, identity Identity, code, newPassword string) (domain.User, error) {
	newPassword = strings.TrimSpace(newPassword)
	if len(newPassword) < 8 {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.checkChallenge(ctx, identity, code)
	if err != nil {
		return domain.User{}, err
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	consumed, err := s.users.ConsumeOTPPassword(ctx, user.ID, code, string(hashBytes))
	if err != nil {
		return domain.User{}, err
	}
	if !consumed {
		return domain.User{}, ErrOTPNotRequested
	}

	user.PasswordHash = string(hashBytes)
	user.OTPCode = ""
	user.OTPExpiresAt = nil
	return user, nil
}

// Authenticate valida credenciales de contraseña. La cuenta debe estar
// verificada y activa.
func (s *UserService) Authenticate(ctx context.Context, identity Identity, password string) (domain.User, error) {
	password = strings.TrimSpace(password)
	if password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	user, err := s.findByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.Verified {
		return domain.User{}, ErrNotVerified
	}
	if !user.Active {
		return domain.User{}, ErrAccountDisabled
	}
	return user, nil
}

type OAuthInput struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// UpsertOAuthUser enlaza o crea una cuenta para un inicio de sesión federado.
func (s *UserService) UpsertOAuthUser(ctx context.Context, input OAuthInput) (domain.User, error) {
	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	subject := strings.TrimSpace(input.Subject)
	emailAddr := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)

	if provider == "" || subject == "" {
		return domain.User{}, ErrOAuthInvalid
	}

	user, err := s.users.GetByAuth(ctx, provider, subject)
	if err == nil {
		if !user.Active {
			return domain.User{}, ErrAccountDisabled
		}
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	if emailAddr != "" {
		existing, err := s.users.GetByEmail(ctx, emailAddr)
		if err == nil {
			if !existing.Active {
				return domain.User{}, ErrAccountDisabled
			}
			if err := s.users.LinkOAuth(ctx, existing.ID, provider, subject); err != nil {
				return domain.User{}, err
			}
			if err := s.users.MarkVerified(ctx, existing.ID); err != nil {
				return domain.User{}, err
			}
			existing.AuthProvider = provider
			existing.AuthSubject = subject
			existing.Verified = true
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, err
		}
	}

	now := time.Now().UTC()
	user = domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		Name:         name,
		AuthProvider: provider,
		AuthSubject:  subject,
		Role:         domain.RoleUser,
		Verified:     true,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetByID devuelve la cuenta para sesiones ya establecidas.
func (s *UserService) GetByID(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// issueChallenge genera y persiste un código nuevo y lo despacha fuera de
// banda. Un fallo de entrega se reporta como ErrDeliveryFailure pero no
// revierte el código ya persistido: el desafío sigue vigente.
func (s *UserService) issueChallenge(ctx context.Context, user *domain.User, identity Identity) error {
	if s.otpLimiter != nil && !s.otpLimiter.Allow(identity.key()) {
		return ErrRateLimited
	}

	code, err := generateOTPCode()
	if err != nil {
		return err
	}
	expiresAt := time.Now().UTC().Add(otpTTL)

	if err := s.users.SetOTP(ctx, user.ID, code, expiresAt); err != nil {
		return err
	}
	user.OTPCode = code
	user.OTPExpiresAt = &expiresAt

	sender := s.emailSender
	destination := identity.Email
	if identity.Mobile != "" {
		sender = s.smsSender
		destination = identity.Mobile
	}
	if sender == nil {
		return ErrDeliveryFailure
	}
	if err := sender.SendOTP(ctx, destination, code, expiresAt); err != nil {
		if s.logger != nil {
			s.logger.Warn("otp delivery failed", zap.Error(err), zap.String("destination", destination))
		}
		return ErrDeliveryFailure
	}
	return nil
}

// checkChallenge aplica las comprobaciones previas al consumo, en orden fijo:
// cuenta inexistente, sin desafío, expirado, código distinto. Un código mal
// formado cae en la última comprobación, nunca antes de resolver la cuenta.
func (s *UserService) checkChallenge(ctx context.Context, identity Identity, code string) (domain.User, error) {
	code = strings.TrimSpace(code)

	user, err := s.findByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	if !user.HasChallenge() {
		return domain.User{}, ErrOTPNotRequested
	}
	if time.Now().UTC().After(*user.OTPExpiresAt) {
		return domain.User{}, ErrOTPExpired
	}
	if !isValidOTPCode(code) || user.OTPCode != code {
		return domain.User{}, ErrOTPInvalid
	}
	return user, nil
}

func (s *UserService) findByIdentity(ctx context.Context, identity Identity) (domain.User, error) {
	if identity.Email != "" {
		return s.users.GetByEmail(ctx, identity.Email)
	}
	if identity.Mobile != "" {
		return s.users.GetByMobile(ctx, identity.Mobile)
	}
	return domain.User{}, ErrInvalidIdentity
}

// hashPassword trata una contraseña vacía como ausente (cuenta solo-OTP).
func hashPassword(password string) (string, error) {
	password = strings.TrimSpace(password)
	if password == "" {
		return "", nil
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashBytes), nil
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func isValidOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isValidMobile(mobile string) bool {
	if strings.HasPrefix(mobile, "+") {
		mobile = mobile[1:]
	}
	if len(mobile) < 7 || len(mobile) > 15 {
		return false
	}
	for _, r := range mobile {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// OTPRateLimiter limita la frecuencia de solicitudes de OTP por identidad.
type OTPRateLimiter interface {
	Allow(key string) bool
}

type otpRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewOTPRateLimiter crea un rate limiter en memoria.
func NewOTPRateLimiter(window time.Duration, max int) OTPRateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &otpRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

func (l *otpRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	kept = append(kept, now)
	l.hits[key] = kept
	return true
}
