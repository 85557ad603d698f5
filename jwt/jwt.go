package jwt

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/indexbridge/indexbridge/config"
)

// Auth verifies and issues Ed25519-signed service tokens.
type Auth struct {
	issuer     string
	audience   string
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
	tokenTTL   int
}

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
}

// New creates an authenticator from the auth configuration. The public key
// is required for verification; the private key is optional and only
// needed for issuing tokens.
func New(cfg config.AuthConfig) (*Auth, error) {
	auth := &Auth{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		tokenTTL: cfg.TokenTTL,
	}
	if auth.tokenTTL == 0 {
		auth.tokenTTL = 300
	}

	if cfg.PublicKeyPath != "" {
		publicKey, err := loadPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load public key: %w", err)
		}
		auth.publicKey = publicKey
		log.WithField("path", cfg.PublicKeyPath).Info("Loaded Ed25519 public key")
	}

	if cfg.PrivateKeyPath != "" {
		privateKey, err := loadPrivateKey(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}
		auth.privateKey = privateKey
		log.WithField("path", cfg.PrivateKeyPath).Info("Loaded Ed25519 private key")
	}

	return auth, nil
}

// NewWithKeyPair creates an authenticator from in-memory keys.
func NewWithKeyPair(issuer, audience string, publicKey ed25519.PublicKey, privateKey ed25519.PrivateKey, tokenTTL int) *Auth {
	if tokenTTL == 0 {
		tokenTTL = 300
	}
	return &Auth{
		issuer:     issuer,
		audience:   audience,
		publicKey:  publicKey,
		privateKey: privateKey,
		tokenTTL:   tokenTTL,
	}
}

// loadPublicKey loads an Ed25519 public key from a PEM file.
func loadPublicKey(path string) (ed25519.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an Ed25519 public key")
	}
	return edPub, nil
}

// loadPrivateKey loads an Ed25519 private key from a PEM file.
func loadPrivateKey(path string) (ed25519.PrivateKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	edPriv, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an Ed25519 private key")
	}
	return edPriv, nil
}

// GenerateToken issues a token for the given audience, defaulting to the
// configured one.
func (a *Auth) GenerateToken(targetAudience string) (string, error) {
	if a.privateKey == nil {
		return "", fmt.Errorf("private key not loaded, cannot generate tokens")
	}
	if targetAudience == "" {
		targetAudience = a.audience
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{targetAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(a.tokenTTL) * time.Second)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tokenString, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyToken verifies signature, audience and expiry.
func (a *Auth) VerifyToken(tokenString string) (*Claims, error) {
	if a.publicKey == nil {
		return nil, fmt.Errorf("public key not loaded, cannot verify tokens")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	audienceValid := false
	for _, aud := range claims.Audience {
		if aud == a.audience {
			audienceValid = true
			break
		}
	}
	if !audienceValid {
		return nil, fmt.Errorf("invalid audience: expected %s, got %v", a.audience, claims.Audience)
	}

	return claims, nil
}

// Middleware creates a gin middleware enforcing a valid bearer token.
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			log.WithFields(log.Fields{
				"ip":     c.ClientIP(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Missing or malformed Authorization header")

			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Missing or invalid Authorization header",
			})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := a.VerifyToken(tokenString)
		if err != nil {
			log.WithFields(log.Fields{
				"ip":    c.ClientIP(),
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			}).Warn("JWT verification failed")

			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": fmt.Sprintf("Invalid token: %s", err.Error()),
			})
			c.Abort()
			return
		}

		c.Set("jwt_claims", claims)
		c.Set("jwt_issuer", claims.Issuer)
		c.Next()
	}
}
