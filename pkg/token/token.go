package token

import (
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"CareFollow/pkg/errors"
)

// IdentityKey 调用方服务名所在的 claim，与鉴权中间件共用
const IdentityKey = "svc"

// Issuer 为出院登记流程、消息路由等内部调用方签发 HS256 服务令牌
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue 返回令牌与过期时间
func (i *Issuer) Issue(service string) (string, time.Time, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return "", time.Time{}, errors.Invalid("service name is required")
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := jwtv5.MapClaims{
		IdentityKey: service,
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
	}

	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse 校验签名与过期时间，返回调用方服务名
func (i *Issuer) Parse(tokenString string) (string, error) {
	parsed, err := jwtv5.Parse(tokenString, func(t *jwtv5.Token) (interface{}, error) {
		if t.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwtv5.WithTimeFunc(i.now), jwtv5.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwtv5.MapClaims)
	if !ok {
		return "", errors.ErrInvalidToken
	}
	service, ok := claims[IdentityKey].(string)
	if !ok || service == "" {
		return "", errors.ErrInvalidToken
	}
	return service, nil
}
