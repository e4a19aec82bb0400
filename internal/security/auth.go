package security

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextKeyUserID is the gin context key for the authenticated user ID.
	ContextKeyUserID = "userID"
	// ContextKeyIdentity is the gin context key for the resolved *Identity.
	ContextKeyIdentity = "identity"

	// TokenCookie is the cookie the account service stores session tokens in.
	TokenCookie = "jwt"
	// TokenQueryParam carries the token on WebSocket upgrades, where browsers
	// cannot set headers.
	TokenQueryParam = "token"
	// UserIDHeader names the caller directly. Accepted in testing mode only.
	UserIDHeader = "X-User-ID"
)

// Identity holds the resolved caller identity.
type Identity struct {
	UserID   string
	Username string
	Email    string
}

// chatClaims are the claims in tokens minted by the account service.
type chatClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenResolver resolves bearer tokens to caller identities. It is
// initialized once at startup and shared by the HTTP and WebSocket routes.
type TokenResolver struct {
	verifier    *oidc.IDTokenVerifier
	jwtSecret   []byte
	testingMode bool
}

// NewTokenResolver creates a TokenResolver from the application config. It
// performs one-time OIDC provider discovery if OIDCIssuer is configured.
func NewTokenResolver(cfg *config.Config) *TokenResolver {
	var verifier *oidc.IDTokenVerifier
	oidcIssuer := cfg.OIDCIssuer

	if oidcIssuer != "" {
		ctx := context.Background()
		expectedIssuer := oidcIssuer
		discoveryURL := cfg.OIDCDiscoveryURL
		if discoveryURL != "" && discoveryURL != oidcIssuer {
			// NewProvider fetches from its issuer arg, so pass the discovery URL
			// there and accept the mismatched issuer in the discovery document.
			ctx = oidc.InsecureIssuerURLContext(ctx, oidcIssuer)
			oidcIssuer = discoveryURL
		}
		provider, err := oidc.NewProvider(ctx, oidcIssuer)
		if err != nil {
			log.Error("Failed to initialize OIDC provider", "issuer", oidcIssuer, "err", err)
		} else {
			// Tokens carry the external issuer, so verify against it rather
			// than the issuer reported by the discovery document.
			var providerClaims struct {
				JWKSURI string `json:"jwks_uri"`
			}
			if expectedIssuer != oidcIssuer {
				if err := provider.Claims(&providerClaims); err == nil && providerClaims.JWKSURI != "" {
					keySet := oidc.NewRemoteKeySet(ctx, providerClaims.JWKSURI)
					verifier = oidc.NewVerifier(expectedIssuer, keySet, &oidc.Config{SkipClientIDCheck: true})
				}
			}
			if verifier == nil {
				verifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
			}
			log.Info("OIDC auth enabled", "issuer", expectedIssuer)
		}
	}

	var secret []byte
	if cfg.JWTSecret != "" {
		secret = []byte(cfg.JWTSecret)
		log.Info("HS256 token auth enabled")
	}

	return &TokenResolver{
		verifier:    verifier,
		jwtSecret:   secret,
		testingMode: cfg.Mode == config.ModeTesting,
	}
}

var (
	errMissingToken    = errors.New("missing token")
	errInvalidJWT      = errors.New("invalid JWT")
	errMissingIdentity = errors.New("JWT missing identity claims")
	errNoVerifier      = errors.New("no token verifier configured")
)

// Resolve resolves a raw token into a caller Identity. userIDHeader is the
// value of the X-User-ID header and is only honoured in testing mode.
func (r *TokenResolver) Resolve(ctx context.Context, token, userIDHeader string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		if hdr := strings.TrimSpace(userIDHeader); r.testingMode && hdr != "" {
			return &Identity{UserID: hdr}, nil
		}
		return nil, errMissingToken
	}

	if strings.Count(token, ".") < 2 {
		// Opaque tokens name the user directly in testing mode.
		if r.testingMode {
			return &Identity{UserID: token}, nil
		}
		return nil, errInvalidJWT
	}

	if r.jwtSecret != nil && signingAlg(token) == jwt.SigningMethodHS256.Alg() {
		return r.resolveHS256(token)
	}
	if r.verifier != nil {
		return r.resolveOIDC(ctx, token)
	}
	return nil, errNoVerifier
}

func signingAlg(token string) string {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	alg, _ := parsed.Header["alg"].(string)
	return alg
}

func (r *TokenResolver) resolveHS256(token string) (*Identity, error) {
	claims := &chatClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Join(errInvalidJWT, err)
	}
	id := &Identity{UserID: claims.UserID, Username: claims.Username, Email: claims.Email}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if id.UserID == "" {
		return nil, errMissingIdentity
	}
	return id, nil
}

func (r *TokenResolver) resolveOIDC(ctx context.Context, token string) (*Identity, error) {
	idToken, err := r.verifier.Verify(ctx, token)
	if err != nil {
		return nil, errors.Join(errInvalidJWT, err)
	}
	// Prefer "preferred_username", then "upn", then fall back to "sub".
	var claims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		UPN               string `json:"upn"`
		Email             string `json:"email"`
		Name              string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Join(errInvalidJWT, err)
	}
	id := &Identity{UserID: claims.PreferredUsername, Username: claims.Name, Email: claims.Email}
	if id.UserID == "" {
		id.UserID = claims.UPN
	}
	if id.UserID == "" {
		id.UserID = claims.Sub
	}
	if id.UserID == "" {
		return nil, errMissingIdentity
	}
	if id.Username == "" {
		id.Username = id.UserID
	}
	return id, nil
}

// --- Gin HTTP middleware ---

// GetUserID returns the authenticated user ID from the gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// GetIdentity returns the resolved identity from the gin context.
func GetIdentity(c *gin.Context) *Identity {
	v, _ := c.Get(ContextKeyIdentity)
	id, _ := v.(*Identity)
	return id
}

// RequestToken returns the caller's token from the Authorization header, the
// session cookie or the token query parameter, in that order.
func RequestToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
		return ""
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie != "" {
		return cookie
	}
	return c.Query(TokenQueryParam)
}

// AuthMiddleware returns a gin middleware that resolves the caller identity
// using the provided TokenResolver.
func AuthMiddleware(resolver *TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth := c.GetHeader("Authorization"); auth != "" && !strings.HasPrefix(auth, "Bearer ") {
			log.Info("Auth rejected: invalid Authorization header; expected Bearer token", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid Authorization header; expected Bearer token"})
			return
		}

		id, err := resolver.Resolve(c.Request.Context(), RequestToken(c), c.GetHeader(UserIDHeader))
		if err != nil {
			log.Info("Auth rejected", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized - " + err.Error()})
			return
		}

		c.Set(ContextKeyUserID, id.UserID)
		c.Set(ContextKeyIdentity, id)
		c.Next()
	}
}
