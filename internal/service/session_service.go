package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"storefront/internal/domain"
)

// SessionService emite y valida sesiones. El valor de la cookie es un JWT
// HS256 cuyo jti referencia el registro del SessionStore; la firma sola no
// basta, el registro debe existir.
type SessionService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	store  SessionStore
}

// SessionClaims son los claims firmados dentro de la cookie de sesión.
type SessionClaims struct {
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrSessionInvalid = errors.New("session invalid")
	ErrSessionExpired = errors.New("session expired")
	ErrRoleMismatch   = errors.New("role does not match login surface")
)

func NewSessionService(secret string, ttl time.Duration, store SessionStore) *SessionService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if store == nil {
		store = NewMemorySessionStore()
	}
	return &SessionService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "storefront",
		store:  store,
	}
}

// TTL expone la vigencia configurada, para alinear el Max-Age de la cookie.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Issue valida la superficie de login contra el rol de la cuenta y, solo si
// coincide, crea el registro de sesión y firma el token. La verificación de
// rol ocurre antes de crear cualquier estado.
func (s *SessionService) Issue(user domain.User, surface string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrSessionInvalid
	}
	surface = strings.TrimSpace(surface)
	if surface == "" {
		surface = domain.RoleUser
	}
	if surface != domain.RoleUser && surface != domain.RoleAdmin {
		return "", ErrRoleMismatch
	}
	if user.Role != surface {
		return "", ErrRoleMismatch
	}

	jti := uuid.NewString()
	if err := s.store.Create(jti, domain.Session{
		UserID:   user.ID,
		Role:     user.Role,
		LoggedIn: true,
	}, s.ttl); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	claims := SessionClaims{
		UserID:    user.ID,
		Role:      user.Role,
		TokenType: "session",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate verifica firma y vigencia del token y que el registro de sesión
// siga vivo en el store.
func (s *SessionService) Validate(token string) (domain.Session, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return domain.Session{}, err
	}
	session, ok, err := s.store.Get(claims.ID)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok || !session.LoggedIn {
		return domain.Session{}, ErrSessionInvalid
	}
	if session.UserID != claims.UserID {
		return domain.Session{}, ErrSessionInvalid
	}
	return session, nil
}

// Destroy invalida la sesión del lado servidor. Un token ya inválido no es
// un error para el llamador.
func (s *SessionService) Destroy(token string) error {
	claims, err := s.parseToken(token)
	if err != nil {
		return nil
	}
	return s.store.Destroy(claims.ID)
}

func (s *SessionService) parseToken(token string) (SessionClaims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(token) == "" {
		return SessionClaims{}, ErrSessionInvalid
	}
	var claims SessionClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrSessionExpired
		}
		return SessionClaims{}, ErrSessionInvalid
	}
	if claims.TokenType != "session" || claims.ID == "" {
		return SessionClaims{}, ErrSessionInvalid
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return SessionClaims{}, ErrSessionInvalid
	}
	if claims.Issuer != s.issuer {
		return SessionClaims{}, ErrSessionInvalid
	}
	return claims, nil
}
