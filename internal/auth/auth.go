package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gdg-garage/achievement-atlas-api/internal/apperr"
	"github.com/gdg-garage/achievement-atlas-api/internal/config"
	"github.com/gdg-garage/achievement-atlas-api/internal/models"
	"github.com/gdg-garage/achievement-atlas-api/internal/store"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	CookieName    = "auth_token"
	TokenDuration = 7 * 24 * time.Hour

	pendingPrefix = "pending:"
	pendingTTL    = 10 * time.Minute
)

type AuthHandler struct {
	oauthConfig *oauth2.Config
	userInfo    *resty.Client
	db          *gorm.DB
	store       store.Store
	cfg         *config.Config
}

func NewAuthHandler(cfg *config.Config, db *gorm.DB, st store.Store) *AuthHandler {
	return &AuthHandler{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.BnetClientID,
			ClientSecret: cfg.BnetClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			Scopes:       []string{"wow.profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.OAuthAuthorizeURL,
				TokenURL:  cfg.OAuthTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfo: resty.New().SetTimeout(cfg.UpstreamTimeout),
		db:       db,
		store:    st,
		cfg:      cfg,
	}
}

type pendingLogin struct {
	Verifier  string    `json:"verifier"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	pending := pendingLogin{Verifier: verifier, CreatedAt: time.Now().UTC()}
	if err := store.PutJSON(r.Context(), h.store, pendingPrefix+state, pending, pendingTTL); err != nil {
		log.Error().Err(err).Msg("failed to store pending login")
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	authURL := h.oauthConfig.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *AuthHandler) loginError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.cfg.AppOrigin+"/#/login-error?error="+url.QueryEscape(reason), http.StatusFound)
}

func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		h.loginError(w, r, reason)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		h.loginError(w, r, "missing_params")
		return
	}

	pending, err := store.GetJSON[pendingLogin](ctx, h.store, pendingPrefix+state)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Msg("failed to load pending login")
		}
		h.loginError(w, r, "invalid_state")
		return
	}
	if err := h.store.Delete(ctx, pendingPrefix+state); err != nil {
		log.Warn().Err(err).Msg("failed to drop pending login")
	}

	token, err := h.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(pending.Verifier))
	if err != nil {
		log.Warn().Err(err).Msg("token exchange failed")
		h.loginError(w, r, "token_exchange_failed")
		return
	}

	var info struct {
		Sub       string `json:"sub"`
		Battletag string `json:"battletag"`
	}
	resp, err := h.userInfo.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		ForceContentType("application/json").
		SetResult(&info).
		Get(h.cfg.OAuthUserInfoURL)
	if err != nil || resp.IsError() || info.Sub == "" {
		log.Warn().Err(err).Msg("userinfo lookup failed")
		h.loginError(w, r, "userinfo_failed")
		return
	}

	var user models.User
	if err := h.db.WithContext(ctx).FirstOrInit(&user, models.User{BattleNetID: info.Sub}).Error; err != nil {
		h.loginError(w, r, "database_error")
		return
	}
	user.Battletag = info.Battletag
	user.AccessToken = token.AccessToken
	user.RefreshToken = token.RefreshToken
	user.TokenExpiresAt = token.Expiry

	if err := h.db.WithContext(ctx).Save(&user).Error; err != nil {
		log.Error().Err(err).Msg("failed to save user")
		h.loginError(w, r, "database_error")
		return
	}

	jwtToken, err := h.GenerateToken(user.ID)
	if err != nil {
		h.loginError(w, r, "session_failed")
		return
	}

	http.SetCookie(w, h.sessionCookie(jwtToken, TokenDuration))
	http.Redirect(w, r, h.cfg.AppOrigin, http.StatusFound)
}

func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessionCookie("", -1))
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true}`))
}

func (h *AuthHandler) sessionCookie(value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    value,
		HttpOnly: true,
		Secure:   strings.HasPrefix(h.cfg.OAuthRedirectURL, "https://"),
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	if maxAge < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(maxAge.Seconds())
		c.Expires = time.Now().Add(maxAge)
	}
	return c
}

func (h *AuthHandler) GenerateToken(userID uint) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(TokenDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

// ParseToken validates a session token and returns its user id and expiry.
func (h *AuthHandler) ParseToken(tokenString string) (uint, time.Time, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, time.Time{}, apperr.Unauthorized("Invalid session")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, time.Time{}, apperr.Unauthorized("Invalid session")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, time.Time{}, apperr.Unauthorized("Invalid token claims")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0, time.Time{}, apperr.Unauthorized("Invalid token claims")
	}
	return uint(userID), exp.Time, nil
}

// Authorize returns the user id AuthMiddleware put into ctx, falling back to
// parsing the raw Cookie header when the request did not pass through it.
func (h *AuthHandler) Authorize(ctx context.Context, cookieHeader string) (uint, error) {
	if userID, ok := ctx.Value(UserIDKey).(uint); ok {
		return userID, nil
	}
	cookies, err := http.ParseCookie(cookieHeader)
	if err != nil {
		return 0, apperr.Unauthorized("Not logged in")
	}
	for _, c := range cookies {
		if c.Name == CookieName && c.Value != "" {
			userID, _, err := h.ParseToken(c.Value)
			return userID, err
		}
	}
	return 0, apperr.Unauthorized("Not logged in")
}

// CheckAdmin compares key against the configured admin token. An unset
// admin token rejects everyone.
func (h *AuthHandler) CheckAdmin(key string) error {
	if h.cfg.AdminToken == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.cfg.AdminToken)) != 1 {
		return apperr.Unauthorized("Admin key required")
	}
	return nil
}

// User loads the signed-in user.
func (h *AuthHandler) User(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("Unknown user")
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return &user, nil
}

type AuthInput struct {
	Cookie string `header:"Cookie"`
}

type MeResponse struct {
	Body struct {
		LoggedIn  bool   `json:"loggedIn"`
		Battletag string `json:"battletag,omitempty"`
	}
}

func (h *AuthHandler) HandleMe(ctx context.Context, input *AuthInput) (*MeResponse, error) {
	resp := &MeResponse{}
	userID, err := h.Authorize(ctx, input.Cookie)
	if err != nil {
		return resp, nil
	}
	user, err := h.User(ctx, userID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeUnauthorized {
			return resp, nil
		}
		return nil, err
	}
	resp.Body.LoggedIn = true
	resp.Body.Battletag = user.Battletag
	return resp, nil
}
