// This file implements Google's device and web OAuth2 flows (§6.1).
// Google supports OIDC discovery, so both flows validate the ID token
// returned by Google's token endpoint through coreos/go-oidc: the web
// flow after exchanging an authorization code, the device flow after
// exchanging a device code. The UserInfo endpoint is not called.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	apperrors "github.com/modplane/server/internal/errors"
	"github.com/modplane/server/internal/logger"
	"github.com/modplane/server/internal/models"
)

const googleDeviceCodeURL = "https://oauth2.googleapis.com/device/code"

// GoogleProvider drives Google's device-authorization and web
// authorization-code flows and turns either into a local session.
type GoogleProvider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	gate         *Gate
	httpClient   *http.Client
}

func NewGoogleProvider(ctx context.Context, clientID, clientSecret, redirectURL string, gate *Gate) (*GoogleProvider, error) {
	issuer, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("auth: google oidc discovery: %w", err)
	}
	return &GoogleProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier:   issuer.Verifier(&oidc.Config{ClientID: clientID}),
		gate:       gate,
		httpClient: http.DefaultClient,
	}, nil
}

// Register wires the Google OAuth routes.
func (g *GoogleProvider) Register(rg gin.IRouter) {
	rg.POST("/oauth/google/device", g.StartDevice)
	rg.POST("/oauth/google/device/poll", g.PollDevice)
	rg.GET("/oauth/google/web", g.StartWeb)
	rg.GET("/oauth/google/web/callback", g.WebCallback)
}

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// StartDevice begins the device-authorization flow: the client displays
// UserCode/VerificationURL to the user and begins polling PollDevice.
func (g *GoogleProvider) StartDevice(c *gin.Context) {
	form := url.Values{
		"client_id": {g.oauth2Config.ClientID},
		"scope":     {strings.Join(g.oauth2Config.Scopes, " ")},
	}
	resp, err := g.httpClient.PostForm(googleDeviceCodeURL, form)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	defer resp.Body.Close()

	var dc deviceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&dc); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	c.JSON(http.StatusOK, dc)
}

// PollDevice exchanges a device code for a token once the user has
// approved the request out of band. Status mapping per §6.1:
// authorization_pending -> 428, slow_down -> 429, invalid_device_code -> 400.
func (g *GoogleProvider) PollDevice(c *gin.Context) {
	var req struct {
		DeviceCode string `json:"deviceCode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_device_code"})
		return
	}

	form := url.Values{
		"client_id":     {g.oauth2Config.ClientID},
		"client_secret": {g.oauth2Config.ClientSecret},
		"device_code":   {req.DeviceCode},
		"grant_type":    {"urn:ietf:params:oauth:grant-type:device_code"},
	}
	resp, err := g.httpClient.PostForm(g.oauth2Config.Endpoint.TokenURL, form)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	defer resp.Body.Close()

	var body struct {
		Error       string `json:"error"`
		AccessToken string `json:"access_token"`
		IDToken     string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}

	switch body.Error {
	case "authorization_pending":
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": "authorization_pending"})
		return
	case "slow_down":
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "slow_down"})
		return
	case "invalid_device_code", "expired_token", "access_denied":
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_device_code"})
		return
	}

	g.completeSignIn(c, body.IDToken)
}

// StartWeb redirects the browser into Google's authorization-code flow.
func (g *GoogleProvider) StartWeb(c *gin.Context) {
	state := c.Query("state")
	c.Redirect(http.StatusFound, g.oauth2Config.AuthCodeURL(state))
}

// WebCallback exchanges the returned code and validates the ID token.
func (g *GoogleProvider) WebCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		apperrors.AbortWithError(c, apperrors.New("missingCode", http.StatusBadRequest, "missing authorization code"))
		return
	}

	token, err := g.oauth2Config.Exchange(c.Request.Context(), code)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.New("oauthExchangeFailed", http.StatusBadGateway, "token exchange failed"))
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	g.completeSignIn(c, rawIDToken)
}

func (g *GoogleProvider) completeSignIn(c *gin.Context, rawIDToken string) {
	ctx := c.Request.Context()
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.New("invalidIDToken", http.StatusUnauthorized, "could not verify google id token"))
		return
	}

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}

	user, err := g.gate.database.FindByOAuthIdentity(ctx, "google", claims.Subject)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	if user == nil {
		user, err = provisionOAuthUser(ctx, g.gate, "google", claims.Subject, claims.Email)
		if err != nil {
			logger.Security().Error().Err(err).Msg("google sign-in: provisioning failed")
			apperrors.AbortWithError(c, apperrors.Internal())
			return
		}
	}

	issueSessionResponse(c, g.gate, user)
}

// provisionOAuthUser creates a local account for a first-time OAuth
// sign-in. Local password fields are left empty: this account can never
// log in via /auth/login, only via the same provider.
func provisionOAuthUser(ctx context.Context, gate *Gate, provider, providerID, email string) (*models.User, error) {
	username := fmt.Sprintf("%s_%s", provider, providerID)
	u, err := gate.database.CreateUser(ctx, username, email, "", "")
	if err != nil {
		return nil, err
	}
	if err := gate.database.UpsertOAuthIdentity(ctx, u.ID, provider, providerID); err != nil {
		return nil, err
	}
	return u, nil
}

func issueSessionResponse(c *gin.Context, gate *Gate, user *models.User) {
	token, expiresAt, err := gate.tokens.Issue(user.ID, user.Username, c.ClientIP())
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	claims, _ := gate.tokens.Verify(token)
	_ = gate.sessions.Track(c.Request.Context(), claims.ID, user.ID, user.Username, time.Until(expiresAt))

	c.JSON(http.StatusOK, gin.H{"ok": true, "user": gin.H{"id": user.ID, "username": user.Username, "token": token}})
}
