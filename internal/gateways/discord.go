package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/Concordium/concordium-web3id/internal/core/ports"
	client "github.com/Concordium/concordium-web3id/pkg/http"
)

const discordAPIBase = "https://discord.com/api/v10"

// DiscordDirectory resolves current Discord usernames through the bot API.
// Discord users rename freely, so the stored username goes stale and reads
// fetch the current one.
type DiscordDirectory struct {
	botToken string
	baseURL  string
	client   *client.Client
}

// NewDiscordDirectory builds a directory authenticated with the given bot
// token.
func NewDiscordDirectory(botToken string, timeout time.Duration) ports.SocialDirectory {
	return &DiscordDirectory{
		botToken: botToken,
		baseURL:  discordAPIBase,
		client: client.NewClient(http.Client{
			Timeout: timeout,
			Transport: &retryablehttp.RoundTripper{
				Client: retryablehttp.NewClient(),
			},
		}),
	}
}

// Username returns the current username of the given Discord user id.
func (d *DiscordDirectory) Username(ctx context.Context, id string) (string, error) {
	url := fmt.Sprintf("%s/users/%s", d.baseURL, id)
	headers := map[string]string{"Authorization": "Bot " + d.botToken}
	status, body, err := d.client.Get(ctx, url, headers)
	if err != nil {
		return "", errors.Wrap(err, "calling discord api")
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("discord api returned status %d for user %s", status, id)
	}
	var user struct {
		Username      string `json:"username"`
		Discriminator string `json:"discriminator"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return "", errors.Wrap(err, "decoding discord user")
	}
	// Legacy accounts still carry a non-zero discriminator.
	if user.Discriminator != "" && user.Discriminator != "0" {
		return user.Username + "#" + user.Discriminator, nil
	}
	return user.Username, nil
}
