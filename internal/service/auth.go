// Package service holds authentication for the HTTP API: API keys for
// callers of the validation endpoints and JWT sessions for admins.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/faucetdb/schemaguard/internal/config"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

var (
	ErrInvalidCredentials = errs.New("invalid credentials")
	ErrTokenExpired       = errs.New("token expired")
	ErrKeyRevoked         = errs.New("api key revoked")
	ErrAccountDisabled    = errs.New("account disabled")
)

// KeyPrefix starts every generated API key.
const KeyPrefix = "sg_"

// MinPasswordLength is enforced when admins are created.
const MinPasswordLength = 8

type APIKeyPrincipal struct {
	KeyID  int64
	Prefix string
}

type JWTPrincipal struct {
	AdminID int64
	Email   string
}

type AuthService struct {
	store     *config.Store
	jwtSecret []byte
}

func NewAuthService(store *config.Store, jwtSecret string) *AuthService {
	return &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
	}
}

// ValidateAPIKey checks the provided raw API key against stored key hashes.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*APIKeyPrincipal, error) {
	key, err := s.store.GetAPIKeyByHash(ctx, config.HashAPIKey(rawKey))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !key.IsActive {
		return nil, ErrKeyRevoked
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	// Update last used timestamp (fire and forget)
	go s.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)

	return &APIKeyPrincipal{
		KeyID:  key.ID,
		Prefix: key.KeyPrefix,
	}, nil
}

// CreateAPIKey generates and stores a new key. The raw key is returned once
// and never persisted.
func (s *AuthService) CreateAPIKey(ctx context.Context, label string, ttl time.Duration) (string, *model.APIKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, errs.Wrap(err, "generate api key")
	}
	raw := KeyPrefix + hex.EncodeToString(buf)

	key := &model.APIKey{
		KeyHash:   config.HashAPIKey(raw),
		KeyPrefix: raw[:len(KeyPrefix)+8],
		Label:     label,
		IsActive:  true,
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl).UTC()
		key.ExpiresAt = &exp
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, errs.Wrap(err, "store api key")
	}
	return raw, key, nil
}

// CreateAdmin stores a new admin with a bcrypt password hash.
func (s *AuthService) CreateAdmin(ctx context.Context, email, name, password string) (*model.Admin, error) {
	if len(password) < MinPasswordLength {
		return nil, errs.NewInvalidRequestError("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errs.Wrap(err, "hash password")
	}
	admin := &model.Admin{Email: email, Name: name, PasswordHash: string(hash), IsActive: true}
	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		return nil, errs.Wrap(err, "create admin")
	}
	return admin, nil
}

// Login verifies admin credentials and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, password string, ttl time.Duration) (string, *model.Admin, error) {
	admin, err := s.store.GetAdminByEmail(ctx, email)
	if err != nil {
		if errs.Is(err, config.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, errs.Wrap(err, "look up admin")
	}
	if !admin.IsActive {
		return "", nil, ErrAccountDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.IssueJWT(ctx, admin.ID, admin.Email, ttl)
	if err != nil {
		return "", nil, err
	}
	_ = s.store.UpdateAdminLastLogin(ctx, admin.ID)
	return token, admin, nil
}

// ValidateJWT verifies a JWT bearer token and returns the associated admin identity.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*JWTPrincipal, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errs.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidCredentials
	}

	if !token.Valid {
		return nil, ErrInvalidCredentials
	}

	return &JWTPrincipal{
		AdminID: claims.AdminID,
		Email:   claims.Email,
	}, nil
}

// IssueJWT creates a new signed JWT token for the given admin.
func (s *AuthService) IssueJWT(ctx context.Context, adminID int64, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		AdminID: adminID,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "schemaguard",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type jwtClaims struct {
	AdminID int64  `json:"admin_id"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}
