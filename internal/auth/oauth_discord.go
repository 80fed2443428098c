// Discord has no OIDC discovery document, so unlike GoogleProvider this
// flow is a bare oauth2.Config against Discord's documented endpoints,
// followed by a UserInfo fetch against discord.com/api/users/@me.
package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	apperrors "github.com/modplane/server/internal/errors"
	"github.com/modplane/server/internal/logger"
)

var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/api/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

const discordUserInfoURL = "https://discord.com/api/users/@me"

// DiscordProvider drives Discord's web authorization-code flow.
type DiscordProvider struct {
	oauth2Config *oauth2.Config
	gate         *Gate
	httpClient   *http.Client
}

func NewDiscordProvider(clientID, clientSecret, redirectURL string, gate *Gate) *DiscordProvider {
	return &DiscordProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     discordEndpoint,
			Scopes:       []string{"identify", "email"},
		},
		gate:       gate,
		httpClient: http.DefaultClient,
	}
}

// Register wires the Discord OAuth routes.
func (d *DiscordProvider) Register(rg gin.IRouter) {
	rg.GET("/oauth/discord/web", d.StartWeb)
	rg.GET("/oauth/discord/web/callback", d.WebCallback)
}

// StartWeb redirects the browser into Discord's authorization-code flow.
func (d *DiscordProvider) StartWeb(c *gin.Context) {
	state := c.Query("state")
	c.Redirect(http.StatusFound, d.oauth2Config.AuthCodeURL(state))
}

type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// WebCallback exchanges the code and fetches the Discord user profile.
func (d *DiscordProvider) WebCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		apperrors.AbortWithError(c, apperrors.New("missingCode", http.StatusBadRequest, "missing authorization code"))
		return
	}

	ctx := c.Request.Context()
	token, err := d.oauth2Config.Exchange(ctx, code)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.New("oauthExchangeFailed", http.StatusBadGateway, "token exchange failed"))
		return
	}

	profile, err := d.fetchUser(ctx, token)
	if err != nil {
		logger.Security().Error().Err(err).Msg("discord sign-in: profile fetch failed")
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}

	user, err := d.gate.database.FindByOAuthIdentity(ctx, "discord", profile.ID)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Internal())
		return
	}
	if user == nil {
		user, err = provisionOAuthUser(ctx, d.gate, "discord", profile.ID, profile.Email)
		if err != nil {
			logger.Security().Error().Err(err).Msg("discord sign-in: provisioning failed")
			apperrors.AbortWithError(c, apperrors.Internal())
			return
		}
	}

	issueSessionResponse(c, d.gate, user)
}

func (d *DiscordProvider) fetchUser(ctx context.Context, token *oauth2.Token) (*discordUser, error) {
	client := d.oauth2Config.Client(ctx, token)
	resp, err := client.Get(discordUserInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var u discordUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}
