package drive

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// DefaultScopes match the folder/upload surface the gateway touches.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/drive.metadata.readonly",
}

var ErrInvalidServiceAccount = errors.New("invalid service account")

type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

func LoadServiceAccount(data []byte) (ServiceAccount, error) {
	var account ServiceAccount
	if err := json.Unmarshal(data, &account); err != nil {
		return ServiceAccount{}, fmt.Errorf("parse service account: %w", err)
	}
	if account.ClientEmail == "" || account.PrivateKey == "" {
		return ServiceAccount{}, ErrInvalidServiceAccount
	}
	if account.TokenURI == "" {
		account.TokenURI = "https://oauth2.googleapis.com/token"
	}
	return account, nil
}

func (a ServiceAccount) rsaKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(a.PrivateKey))
	if block == nil {
		return nil, ErrInvalidServiceAccount
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrInvalidServiceAccount
	}
	return rsaKey, nil
}

// TokenSource exchanges a signed JWT-bearer assertion for a short-lived
// access token and caches it until shortly before expiry.
type TokenSource struct {
	Account ServiceAccount
	Scopes  []string
	HTTP    *http.Client
	Now     func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewTokenSource(account ServiceAccount) *TokenSource {
	return &TokenSource{
		Account: account,
		Scopes:  DefaultScopes,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (ts *TokenSource) now() time.Time {
	if ts.Now != nil {
		return ts.Now()
	}
	return time.Now()
}

func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expiry.Add(-time.Minute)) {
		return ts.token, nil
	}

	key, err := ts.Account.rsaKey()
	if err != nil {
		return "", err
	}

	issued := ts.now()
	claims := jwt.MapClaims{
		"iss":   ts.Account.ClientEmail,
		"scope": strings.Join(ts.Scopes, " "),
		"aud":   ts.Account.TokenURI,
		"iat":   issued.Unix(),
		"exp":   issued.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.Account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := ts.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("token exchange: status %d: %s", res.StatusCode, snippet)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("token exchange: empty access token")
	}

	ts.token = payload.AccessToken
	ts.expiry = issued.Add(time.Duration(payload.ExpiresIn) * time.Second)
	return ts.token, nil
}
