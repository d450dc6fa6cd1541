package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Account struct {
	Username     string
	PasswordHash string
	Role         string
}

// Issuer signs and validates dashboard tokens and checks passwords against a
// fixed account list.
type Issuer struct {
	secret   []byte
	ttl      time.Duration
	accounts map[string]Account
}

func NewIssuer(secret []byte, ttl time.Duration, accounts []Account) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	m := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		m[a.Username] = a
	}
	return &Issuer{secret: secret, ttl: ttl, accounts: m}
}

// Login checks the password and returns a signed token.
func (i *Issuer) Login(username, password string) (string, *Account, error) {
	acc, ok := i.accounts[username]
	if !ok || bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := i.GenerateToken(acc.Username, acc.Role)
	if err != nil {
		return "", nil, err
	}
	return token, &acc, nil
}

func (i *Issuer) GenerateToken(username, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func (i *Issuer) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	// Accounts removed from the configuration lose access at once.
	if _, ok := i.accounts[claims.Subject]; !ok {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}
