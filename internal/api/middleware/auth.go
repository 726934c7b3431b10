// auth.go — JWT middleware аутентификации Pressroom.
// Валидирует bearer-токен по общему секрету (HS256) с обязательным
// сроком действия и кладёт identity оператора в контекст запроса.
// Применяется только к мутирующим маршрутам — чтение /news публично.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/arturkryukov/pressroom/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyClaims — извлечённые claims в контексте запроса.
const ContextKeyClaims contextKey = "jwt_claims"

// AuthClaims — identity аутентифицированного оператора.
// Помещается в контекст запроса для аудита в handlers.
type AuthClaims struct {
	// Subject — sub из JWT (ID оператора).
	Subject string
	// Email — email из JWT (может быть пустым).
	Email string
}

// ClaimsFromContext возвращает claims из контекста запроса или nil.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// adminClaims — raw claims из JWT для парсинга.
type adminClaims struct {
	jwt.RegisteredClaims
	// Email — электронная почта оператора.
	Email string `json:"email,omitempty"`
}

// JWTAuth — middleware для JWT-аутентификации по общему секрету.
type JWTAuth struct {
	secret []byte
	leeway time.Duration
	logger *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
// secret — секрет подписи HS256 (PR_JWT_SECRET).
// leeway — допустимое отклонение времени при проверке exp/nbf.
func NewJWTAuth(secret string, leeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		secret: []byte(secret),
		leeway: leeway,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись (HS256) и срок действия,
// помещает AuthClaims в контекст запроса.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем Bearer token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			// Парсинг и валидация JWT по общему секрету
			rawClaims := &adminClaims{}
			token, err := jwt.ParseWithClaims(tokenString, rawClaims,
				func(_ *jwt.Token) (any, error) { return j.secret, nil },
				jwt.WithValidMethods([]string{"HS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.leeway),
			)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if !token.Valid {
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			subject, err := rawClaims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Токен не содержит subject")
				return
			}

			claims := &AuthClaims{
				Subject: subject,
				Email:   rawClaims.Email,
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
