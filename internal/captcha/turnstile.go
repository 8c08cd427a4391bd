package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"greendrake/chambers/internal/config"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ITurnstileVerifier defines the interface for verifying Cloudflare Turnstile tokens.
type ITurnstileVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
	GenerateHumanToken(userID, ip, fingerprint, spaSession string, ttl time.Duration) (string, error)
	ValidateHumanToken(tokenString, ip, fingerprint, spaSession string) bool
}

// CloudflareResponse is the expected structure from the siteverify endpoint.
type CloudflareResponse struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	Action      string   `json:"action"`
	CData       string   `json:"cdata"`
}

// humanTokenIssuer keeps X-C-T tokens from being accepted as session tokens
// even though both are signed with the JWT secret.
const humanTokenIssuer = "chambers-captcha"

// turnstileVerifier implements ITurnstileVerifier.
type turnstileVerifier struct {
	cfg        *config.Config
	httpClient *http.Client
}

// ErrNotConfigured is returned by Verify when no secret key is set outside
// mock mode.
var ErrNotConfigured = errors.New("turnstile secret key not configured")

// NewTurnstileVerifier creates a new Turnstile verifier.
func NewTurnstileVerifier(cfg *config.Config) ITurnstileVerifier {
	if cfg.CloudflareTurnstileSecretKey == "" && !cfg.MockServices {
		log.Warn().Msg("turnstile secret key not configured, captcha challenges will be refused")
	}
	return &turnstileVerifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Verify calls the Cloudflare siteverify endpoint.
func (v *turnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if v.cfg.CloudflareTurnstileSecretKey == "" {
		// Only mock deployments run without a secret.
		if v.cfg.MockServices {
			return true, nil
		}
		return false, ErrNotConfigured
	}

	formData := map[string]string{
		"secret":   v.cfg.CloudflareTurnstileSecretKey,
		"response": token,
	}
	if remoteIP != "" {
		formData["remoteip"] = remoteIP
	}

	jsonData, _ := json.Marshal(formData)
	req, err := http.NewRequestWithContext(ctx, "POST", v.cfg.CloudflareSiteVerifyURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return false, fmt.Errorf("failed to create turnstile request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to contact turnstile service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read turnstile response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("body", string(body)).Msg("turnstile siteverify returned non-OK status")
		return false, fmt.Errorf("turnstile verification failed with status %d", resp.StatusCode)
	}

	var cfResp CloudflareResponse
	if err := json.Unmarshal(body, &cfResp); err != nil {
		return false, fmt.Errorf("failed to parse turnstile response: %w", err)
	}

	if !cfResp.Success {
		log.Debug().Strs("error_codes", cfResp.ErrorCodes).Msg("turnstile verification unsuccessful")
	}

	return cfResp.Success, nil
}

// HumanTokenClaims defines the structure for the X-C-T token. It binds a
// solved challenge to the client it was solved from.
type HumanTokenClaims struct {
	UserID      string `json:"uid,omitempty"`
	IP          string `json:"ip"`
	Fingerprint string `json:"bfp"`
	SPASession  string `json:"spa"`
	jwt.RegisteredClaims
}

// GenerateHumanToken creates a signed token confirming successful captcha validation.
func (v *turnstileVerifier) GenerateHumanToken(userID, ip, fingerprint, spaSession string, ttl time.Duration) (string, error) {
	expirationTime := time.Now().Add(ttl)
	claims := &HumanTokenClaims{
		UserID:      userID,
		IP:          ip,
		Fingerprint: fingerprint,
		SPASession:  spaSession,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    humanTokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(v.cfg.JwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign human token: %w", err)
	}
	return tokenString, nil
}

// ValidateHumanToken validates the X-C-T token against current request details.
func (v *turnstileVerifier) ValidateHumanToken(tokenString, ip, fingerprint, spaSession string) bool {
	claims := &HumanTokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.cfg.JwtSecret), nil
	})

	if err != nil || !token.Valid || claims.Issuer != humanTokenIssuer {
		return false
	}
	if claims.IP != ip || claims.Fingerprint != fingerprint || claims.SPASession != spaSession {
		log.Debug().Str("ip", ip).Str("token_ip", claims.IP).Msg("X-C-T token bound to a different client")
		return false
	}
	return true
}
