package backend

import (
	"context"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Login returns the session token issued by the backend.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var token string
	body := loginRequest{Username: username, Password: password}
	if err := c.post(ctx, "login", c.rootURL("/user/login", nil), body, &token); err != nil {
		return "", err
	}
	if token == "" {
		return "", &Error{Kind: KindEmpty, Op: "login"}
	}
	return token, nil
}

func (c *Client) Register(ctx context.Context, username, password, email string) (User, error) {
	var u User
	body := registerRequest{Username: username, Password: password, Email: email}
	if err := c.post(ctx, "register", c.rootURL("/user/register", nil), body, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (c *Client) Favorites(ctx context.Context) ([]string, error) {
	out := []string{}
	if err := c.get(ctx, "list favorites", c.apiURL("/favorites/list", nil), &out); err != nil {
		return nil, err
	}
	return normalizeSymbols(out), nil
}

func (c *Client) AddFavorite(ctx context.Context, symbol string) error {
	return c.post(ctx, "add favorite", c.apiURL("/favorites/"+url.PathEscape(symbol), nil), nil, nil)
}

func (c *Client) RemoveFavorite(ctx context.Context, symbol string) error {
	return c.delete(ctx, "remove favorite", c.apiURL("/favorites/"+url.PathEscape(symbol), nil))
}

type Asset struct {
	ID           int64           `json:"id"`
	Symbol       string          `json:"symbol"`
	Amount       decimal.Decimal `json:"amount"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	TotalValue   decimal.Decimal `json:"totalValue"`
}

type AssetInput struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
	Cost   decimal.Decimal `json:"cost"`
}

func (c *Client) Assets(ctx context.Context) ([]Asset, error) {
	out := []Asset{}
	if err := c.get(ctx, "list assets", c.apiURL("/assets", nil), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SaveAsset(ctx context.Context, in AssetInput) error {
	return c.post(ctx, "save asset", c.apiURL("/assets", nil), in, nil)
}

func (c *Client) DeleteAsset(ctx context.Context, id int64) error {
	return c.delete(ctx, "delete asset", c.apiURL("/assets/"+strconv.FormatInt(id, 10), nil))
}
