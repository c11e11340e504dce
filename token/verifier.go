package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	consoleerrors "github.com/jrsteele09/retail-console/internal/errors"
)

const (
	DefaultVerifyPath  = "auth/token/verify/"
	DefaultRefreshPath = "auth/token/refresh/"
	DefaultObtainPath  = "auth/token/"
)

// Connectivity reports whether the remote API is reachable
type Connectivity interface {
	Online() bool
}

// Endpoints are absolute URLs of the remote auth endpoints
type Endpoints struct {
	Verify  string
	Refresh string
	Obtain  string
}

// EndpointsFor joins the default auth paths to an API base URL
func EndpointsFor(baseURL string) Endpoints {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return Endpoints{}
	}
	join := func(p string) string {
		ref, _ := url.Parse(p)
		return base.ResolveReference(ref).String()
	}
	return Endpoints{
		Verify:  join(DefaultVerifyPath),
		Refresh: join(DefaultRefreshPath),
		Obtain:  join(DefaultObtainPath),
	}
}

// Verifier decides whether the stored token pair is usable, refreshing it when needed.
type Verifier struct {
	endpoints    Endpoints
	http         *http.Client
	connectivity Connectivity
	keySet       KeySet
}

type VerifierOption func(*Verifier)

func WithHTTPClient(hc *http.Client) VerifierOption {
	return func(v *Verifier) {
		v.http = hc
	}
}

// WithKeySet adds a local signature check before remote verification
func WithKeySet(ks KeySet) VerifierOption {
	return func(v *Verifier) {
		v.keySet = ks
	}
}

func NewVerifier(endpoints Endpoints, connectivity Connectivity, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		endpoints:    endpoints,
		http:         &http.Client{Timeout: 15 * time.Second},
		connectivity: connectivity,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// CheckToken reports whether store holds a usable session. It never returns an error:
// offline it answers false without touching the tokens; otherwise it verifies the access
// token, falls back to a refresh, and clears both tokens when neither works.
func (v *Verifier) CheckToken(ctx context.Context, store Store) bool {
	if v.connectivity != nil && !v.connectivity.Online() {
		recordCheck("offline")
		return false
	}

	access, hasAccess := store.GetAccessToken()
	refresh, hasRefresh := store.GetRefreshToken()
	if !hasAccess && !hasRefresh {
		store.RemoveTokens()
		recordCheck("absent")
		return false
	}

	if hasAccess && v.accessUsable(ctx, access) {
		recordCheck("verified")
		return true
	}

	if !hasRefresh {
		store.RemoveTokens()
		recordCheck("rejected")
		return false
	}

	pair, err := v.refresh(ctx, refresh)
	if err != nil {
		if ctx.Err() != nil {
			// The caller went away; an aborted refresh says nothing about the tokens
			return false
		}
		log.Warn().Err(err).Msg("Verifier.CheckToken: refresh failed")
		store.RemoveTokens()
		recordCheck("rejected")
		return false
	}

	store.SetTokens(pair.Access, pair.Refresh)
	recordCheck("refreshed")
	return true
}

func (v *Verifier) accessUsable(ctx context.Context, access string) bool {
	if !WellFormed(access) {
		return false
	}
	if v.keySet != nil {
		if _, err := v.keySet.VerifySignature(ctx, access); err != nil {
			log.Debug().Err(err).Msg("Verifier: access token signature rejected")
			return false
		}
	}

	status, _, err := v.post(ctx, v.endpoints.Verify, map[string]string{"access": access})
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Verifier: verify request failed")
		return false
	case status == http.StatusUnauthorized:
		return false
	case status >= 200 && status < 300:
		return true
	default:
		log.Warn().Int("status", status).Msg("Verifier: unexpected verify status")
		return false
	}
}

func (v *Verifier) refresh(ctx context.Context, refresh string) (Pair, error) {
	status, body, err := v.post(ctx, v.endpoints.Refresh, map[string]string{"refresh": refresh})
	if err != nil {
		return Pair{}, err
	}
	if status < 200 || status >= 300 {
		return Pair{}, fmt.Errorf("refresh status %d: %w", status, consoleerrors.ErrInvalidRefreshToken)
	}
	var pair Pair
	if err := json.Unmarshal(body, &pair); err != nil {
		return Pair{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if pair.Access == "" {
		return Pair{}, fmt.Errorf("refresh response without access token: %w", consoleerrors.ErrInvalidRefreshToken)
	}
	return pair, nil
}

// Login exchanges credentials for a token pair and stores it
func (v *Verifier) Login(ctx context.Context, store Store, username, password string) error {
	status, body, err := v.post(ctx, v.endpoints.Obtain, map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return consoleerrors.Wrapf(consoleerrors.ErrOffline, "Verifier.Login: %v", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusBadRequest {
		return consoleerrors.ErrInvalidCredentials
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("Verifier.Login: unexpected status %d", status)
	}
	var pair Pair
	if err := json.Unmarshal(body, &pair); err != nil || pair.Access == "" || pair.Refresh == "" {
		return fmt.Errorf("Verifier.Login: malformed token response")
	}
	store.SetTokens(pair.Access, pair.Refresh)
	return nil
}

func (v *Verifier) post(ctx context.Context, endpoint string, payload any) (int, []byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := v.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
