package adaptor

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/golang-jwt/jwt/v4"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
	"github.com/xh-polaris/mindy-core-api/pkg/logs"
	"go.opentelemetry.io/otel/propagation"
)

type hertzContextKey struct{}

const adminTokenHeader = "X-Admin-Token"

func InjectContext(ctx context.Context, c *app.RequestContext) context.Context {
	return context.WithValue(ctx, hertzContextKey{}, c)
}

func ExtractContext(ctx context.Context) (*app.RequestContext, error) {
	c, ok := ctx.Value(hertzContextKey{}).(*app.RequestContext)
	if !ok {
		return nil, errors.New("hertz context not found")
	}
	return c, nil
}

// ExtractUserId 从Authorization头中的jwt解析用户id
func ExtractUserId(ctx context.Context) (userId string, err error) {
	defer func() {
		if err != nil {
			logs.CtxInfof(ctx, "extract user meta fail, err=%v", err)
		}
	}()
	c, err := ExtractContext(ctx)
	if err != nil {
		return "", err
	}
	tokenString := strings.TrimPrefix(string(c.GetHeader("Authorization")), "Bearer ")
	if tokenString == "" {
		return "", errors.New("authorization header is missing")
	}
	return parseUserId(tokenString, config.GetConfig().Auth.PublicKey)
}

// parseUserId 使用ES256公钥校验jwt, 其它签名算法一律拒绝
func parseUserId(tokenString, publicKey string) (string, error) {
	token, err := jwt.Parse(tokenString, func(_ *jwt.Token) (interface{}, error) {
		return jwt.ParseECPublicKeyFromPEM([]byte(publicKey))
	}, jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token is not valid")
	}
	data, err := sonic.Marshal(token.Claims)
	if err != nil {
		return "", err
	}
	var claims map[string]any
	if err = sonic.Unmarshal(data, &claims); err != nil {
		return "", err
	}
	userId, ok := claims["userId"].(string)
	if !ok || userId == "" {
		return "", errors.New("userId claim is missing")
	}
	return userId, nil
}

// CheckAdmin 校验管理接口的token
func CheckAdmin(ctx context.Context) error {
	c, err := ExtractContext(ctx)
	if err != nil {
		return err
	}
	expect := config.GetConfig().Auth.AdminToken
	if expect == "" {
		return errors.New("admin endpoints are disabled")
	}
	if subtle.ConstantTimeCompare(c.GetHeader(adminTokenHeader), []byte(expect)) != 1 {
		return errors.New("admin token mismatch")
	}
	return nil
}

var _ propagation.TextMapCarrier = &headerProvider{}

type headerProvider struct {
	headers *protocol.ResponseHeader
}

// Get a value from metadata by key
func (m *headerProvider) Get(key string) string {
	return m.headers.Get(key)
}

// Set a value to metadata by k/v
func (m *headerProvider) Set(key, value string) {
	m.headers.Set(key, value)
}

// Keys Iteratively get all keys of metadata
func (m *headerProvider) Keys() []string {
	out := make([]string, 0)

	m.headers.VisitAll(func(key, value []byte) {
		out = append(out, string(key))
	})

	return out
}
