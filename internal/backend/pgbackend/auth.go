package pgbackend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/backend"
	"cyberarena.app/arena/internal/common"
)

// sessionClaims — содержимое токена доступа.
type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SignUp регистрирует учётную запись. Профиль в users создаёт вызывающий.
func (c *Client) SignUp(ctx context.Context, email, password string) (string, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	if len(password) < 6 {
		return "", backend.NewError(backend.MsgWeakPassword)
	}

	hash, err := common.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("ошибка хеширования пароля: %w", err)
	}

	id := uuid.New()
	_, err = c.pool.Exec(ctx, `
		INSERT INTO auth_users (id, email, password_hash) VALUES ($1, $2, $3)
	`, id, normalizeEmail(email), hash)
	if isUniqueViolation(err) {
		return "", backend.NewError(backend.MsgUserExists)
	}
	if err != nil {
		return "", c.fail(ctx, "sign_up", err)
	}

	log.WithField("user_id", id.String()).Info("Зарегистрирована учётная запись бэкенда")
	return id.String(), nil
}

// SignInWithPassword проверяет пароль и выдаёт токен доступа.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	var (
		id        uuid.UUID
		hash      string
		confirmed bool
	)
	err := c.pool.QueryRow(ctx, `
		SELECT id, password_hash, email_confirmed FROM auth_users WHERE lower(email) = $1
	`, normalizeEmail(email)).Scan(&id, &hash, &confirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, backend.NewError(backend.MsgInvalidCredentials)
	}
	if err != nil {
		return nil, c.fail(ctx, "sign_in", err)
	}

	if !common.VerifyPassword(password, hash) {
		return nil, backend.NewError(backend.MsgInvalidCredentials)
	}
	if !confirmed {
		return nil, backend.NewError(backend.MsgEmailNotConfirmed)
	}

	now := c.clock.Now()
	jti := uuid.New()
	expires := now.Add(c.ttl)

	if _, err := c.pool.Exec(ctx, `
		INSERT INTO auth_sessions (id, user_id, expires_at) VALUES ($1, $2, $3)
	`, jti, id, expires); err != nil {
		return nil, c.fail(ctx, "sign_in", err)
	}

	token, err := c.issueToken(id.String(), normalizeEmail(email), jti.String())
	if err != nil {
		return nil, err
	}

	return &backend.Session{
		AccessToken: token,
		UserID:      id.String(),
		Email:       normalizeEmail(email),
		ExpiresAt:   expires,
	}, nil
}

// GetSession восстанавливает сессию по токену.
// Пустой, просроченный или отозванный токен — nil без ошибки.
func (c *Client) GetSession(ctx context.Context, accessToken string) (*backend.Session, error) {
	if accessToken == "" {
		return nil, nil
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	claims, err := c.parseToken(accessToken)
	if err != nil {
		log.WithError(err).Debug("Токен сессии недействителен")
		return nil, nil
	}

	var active bool
	err = c.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM auth_sessions
			WHERE id = $1 AND revoked_at IS NULL AND expires_at > $2
		)
	`, claims.ID, c.clock.Now()).Scan(&active)
	if err != nil {
		return nil, c.fail(ctx, "get_session", err)
	}
	if !active {
		return nil, nil
	}

	return &backend.Session{
		AccessToken: accessToken,
		UserID:      claims.Subject,
		Email:       claims.Email,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// SignOut отзывает токен. Недействительный токен — не ошибка.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	claims, err := c.parseToken(accessToken)
	if err != nil {
		return nil
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	_, err = c.pool.Exec(ctx, `
		UPDATE auth_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL
	`, claims.ID, c.clock.Now())
	return c.fail(ctx, "sign_out", err)
}

func (c *Client) issueToken(userID, email, jti string) (string, error) {
	now := c.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, nil
}

func (c *Client) parseToken(raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.clock.Now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
