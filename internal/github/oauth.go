package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/and27/pcengine/internal/config"
	"github.com/and27/pcengine/internal/domain"
)

const (
	stateKeyPrefix = "pcengine:oauth:state:"
	stateTTL       = 600 * time.Second
)

// Scopes requested when connecting an account.
var Scopes = []string{"read:user", "repo"}

// ErrInvalidState is returned for unknown, expired or replayed OAuth states.
var ErrInvalidState = errors.New("oauth state expired or unknown")

// StateStore binds OAuth states to the user who started the flow. Each
// state can be consumed once.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client) StateStore {
	return StateStore{client: client, ttl: stateTTL}
}

func (s StateStore) key(state string) string {
	return stateKeyPrefix + state
}

// Issue creates a new state for userID.
func (s StateStore) Issue(ctx context.Context, userID string) (string, error) {
	state := uuid.NewString()
	if err := s.client.Set(ctx, s.key(state), userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return state, nil
}

// Consume returns the user bound to state and deletes it.
func (s StateStore) Consume(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}
	userID, err := s.client.GetDel(ctx, s.key(state)).Result()
	if err == redis.Nil {
		return "", ErrInvalidState
	}
	if err != nil {
		return "", fmt.Errorf("failed to read oauth state: %w", err)
	}
	return userID, nil
}

// OAuth runs the authorization-code flow against GitHub.
type OAuth struct {
	Config     *oauth2.Config
	States     StateStore
	APIBaseURL string
	HTTPClient *http.Client
}

func NewOAuth(cfg config.GitHub, states StateStore) *OAuth {
	return &OAuth{
		Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     githuboauth.Endpoint,
		},
		States:     states,
		APIBaseURL: cfg.APIBaseURL,
	}
}

// AuthCodeURL starts a connection for userID and returns the URL the user
// must visit.
func (o *OAuth) AuthCodeURL(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", domain.ErrUnauthenticated
	}
	state, err := o.States.Issue(ctx, userID)
	if err != nil {
		return "", err
	}
	return o.Config.AuthCodeURL(state), nil
}

// Exchange completes the flow started by AuthCodeURL.
func (o *OAuth) Exchange(ctx context.Context, state, code string) (domain.GitHubConnection, error) {
	userID, err := o.States.Consume(ctx, state)
	if err != nil {
		return domain.GitHubConnection{}, err
	}
	if code == "" {
		return domain.GitHubConnection{}, domain.Invalid("code", "authorization code required")
	}
	if o.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.HTTPClient)
	}
	tok, err := o.Config.Exchange(ctx, code)
	if err != nil {
		return domain.GitHubConnection{}, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	client, err := newAPI(ctx, o.HTTPClient, o.APIBaseURL, tok.AccessToken)
	if err != nil {
		return domain.GitHubConnection{}, err
	}
	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return domain.GitHubConnection{}, fmt.Errorf("failed to fetch github user: %w", err)
	}
	scope, _ := tok.Extra("scope").(string)
	return domain.GitHubConnection{
		UserID:       userID,
		GitHubUserID: user.GetID(),
		GitHubLogin:  user.GetLogin(),
		AccessToken:  tok.AccessToken,
		Scope:        scope,
	}, nil
}
