package wallet

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SaveURL returns an "Add to Google Wallet" link for the customer's pass. The
// link embeds a savetowallet JWT signed with the service-account key.
func (c *Client) SaveURL(code string) (string, error) {
	if c.creds == nil {
		return "", ErrNoCredentials
	}
	origins := c.origins
	if origins == nil {
		origins = []string{}
	}
	claims := jwt.MapClaims{
		"iss":     c.creds.ClientEmail,
		"aud":     "google",
		"typ":     "savetowallet",
		"iat":     c.now().Unix(),
		"origins": origins,
		"payload": map[string]any{
			"loyaltyObjects": []map[string]string{{"id": c.ObjectID(code)}},
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.creds.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign save jwt: %w", err)
	}
	return c.saveURLBase + signed, nil
}
