// Package auth issues and resolves the bearer tokens used by every
// authenticated endpoint.
//
// A token is an HS256 JWT whose exp bounds its absolute lifetime. Each token's
// jti is also recorded in a SessionStore with an idle TTL that every
// successful Resolve pushes forward, so an unused token lapses after the idle
// timeout and a revoked token stops working immediately.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"recipe-api/apperr"
	"recipe-api/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const issuerName = "recipe-api"

// CustomClaims are the claims carried by an access token.
type CustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserStore is what the issuer needs from the user store: credential checks
// on Issue and user lookup on Resolve.
type UserStore interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

type Issuer struct {
	users       UserStore
	sessions    SessionStore
	signingKey  []byte
	maxLifetime time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

func NewIssuer(users UserStore, sessions SessionStore, secret []byte, maxLifetime, idleTimeout time.Duration) *Issuer {
	return &Issuer{
		users:       users,
		sessions:    sessions,
		signingKey:  secret,
		maxLifetime: maxLifetime,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Issue exchanges credentials for a token. Blank fields are a validation
// error; everything else about the credentials is up to the UserStore.
func (i *Issuer) Issue(ctx context.Context, email, password string) (*IssuedToken, error) {
	email = NormalizeEmail(email)
	fields := map[string][]string{}
	if email == "" {
		fields["email"] = []string{"This field may not be blank."}
	}
	if password == "" {
		fields["password"] = []string{"This field may not be blank."}
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	user, err := i.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return i.GenerateToken(ctx, user)
}

// GenerateToken signs a token for user and opens its session.
func (i *Issuer) GenerateToken(ctx context.Context, user *models.User) (*IssuedToken, error) {
	now := i.now()
	expiresAt := now.Add(i.maxLifetime)
	claims := &CustomClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuerName,
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return nil, fmt.Errorf("could not sign token: %w", err)
	}
	if err := i.sessions.Create(ctx, claims.ID, user.ID, i.idleTimeout); err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, ExpiresAt: expiresAt}, nil
}

// Resolve returns the active user a token belongs to and slides its idle expiry.
// Every failure is reported as apperr.ErrUnauthenticated except store outages.
func (i *Issuer) Resolve(ctx context.Context, token string) (*models.User, error) {
	claims, err := i.ParseAndValidateToken(token)
	if err != nil {
		return nil, &apperr.AppError{Kind: apperr.KindUnauthenticated, Message: apperr.ErrUnauthenticated.Message, Err: err}
	}

	userID, err := i.sessions.Touch(ctx, claims.ID, i.idleTimeout)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, err
	}
	if userID != claims.UserID {
		return nil, apperr.ErrUnauthenticated
	}

	user, err := i.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.ErrUnauthenticated
	}
	return user, nil
}

// Revoke ends the token's session. The token is rejected from then on.
func (i *Issuer) Revoke(ctx context.Context, token string) error {
	claims, err := i.ParseAndValidateToken(token)
	if err != nil {
		return apperr.ErrUnauthenticated
	}
	return i.sessions.Delete(ctx, claims.ID)
}

// ParseAndValidateToken checks signature, algorithm and time claims.
func (i *Issuer) ParseAndValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.signingKey, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) {
			switch {
			case ve.Errors&jwt.ValidationErrorMalformed != 0:
				return nil, errors.New("malformed token")
			case ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0:
				return nil, errors.New("token is either expired or not active yet")
			case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
				return nil, errors.New("invalid token signature")
			}
		}
		return nil, fmt.Errorf("couldn't handle this token: %w", err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// NormalizeEmail trims and lower-cases the whole address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
