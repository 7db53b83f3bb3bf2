package auth

import (
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Password hashing schemes.
const (
	HasherBcrypt = "bcrypt"
	HasherArgon2 = "argon2id"
)

const minSigningKeyLen = 32

var signingMethods = map[string]*gojwt.SigningMethodHMAC{
	"HS256": gojwt.SigningMethodHS256,
	"HS384": gojwt.SigningMethodHS384,
	"HS512": gojwt.SigningMethodHS512,
}

// Settings configures an auth provider. The HMAC key is the "signing_key"
// secret and is never part of the settings map.
type Settings struct {
	Method            string        `mapstructure:"method"`
	Issuer            string        `mapstructure:"issuer"`
	Audience          []string      `mapstructure:"audience"`
	AccessTokenTTL    time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL   time.Duration `mapstructure:"refresh_token_ttl"`
	Hasher            string        `mapstructure:"hasher"`
	BcryptCost        int           `mapstructure:"bcrypt_cost"`
	MinPasswordLength int           `mapstructure:"min_password_length"`

	signingKey []byte
}

func (s *Settings) ApplyDefaults() {
	if s.Method == "" {
		s.Method = "HS256"
	}
	if s.AccessTokenTTL == 0 {
		s.AccessTokenTTL = 15 * time.Minute
	}
	if s.RefreshTokenTTL == 0 {
		s.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if s.Hasher == "" {
		s.Hasher = HasherBcrypt
	}
	if s.BcryptCost == 0 {
		s.BcryptCost = 12
	}
	if s.MinPasswordLength == 0 {
		s.MinPasswordLength = 8
	}
}

func (s *Settings) Validate() error {
	var errs []error
	if _, ok := signingMethods[s.Method]; !ok {
		errs = append(errs, fmt.Errorf("unsupported signing method %q", s.Method))
	}
	if len(s.signingKey) < minSigningKeyLen {
		errs = append(errs, fmt.Errorf("signing_key secret must be at least %d bytes", minSigningKeyLen))
	}
	if s.RefreshTokenTTL < s.AccessTokenTTL {
		errs = append(errs, stderrors.New("refresh_token_ttl must not be shorter than access_token_ttl"))
	}
	if !slices.Contains([]string{HasherBcrypt, HasherArgon2}, s.Hasher) {
		errs = append(errs, fmt.Errorf("unsupported hasher %q", s.Hasher))
	}
	if s.MinPasswordLength > maxBcryptPassword {
		errs = append(errs, fmt.Errorf("min_password_length must be <= %d", maxBcryptPassword))
	}
	return stderrors.Join(errs...)
}

func (s *Settings) method() gojwt.SigningMethod {
	return signingMethods[s.Method]
}
