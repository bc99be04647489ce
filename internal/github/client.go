package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/logging"
)

const reposPerPage = 100

// Client lists repositories on behalf of a user token.
type Client struct {
	// BaseURL overrides the API root, e.g. for GitHub Enterprise or tests.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
	MaxRetries uint64
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		BaseURL:         baseURL,
		Logger:          logging.OrNop(logger),
		MaxRetries:      3,
		InitialInterval: time.Second,
	}
}

// api builds a go-github client authenticated with token.
func (c *Client) api(ctx context.Context, token string) (*gh.Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("github token not set")
	}
	return newAPI(ctx, c.HTTPClient, c.BaseURL, token)
}

func newAPI(ctx context.Context, base *http.Client, baseURL, token string) (*gh.Client, error) {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := gh.NewClient(oauth2.NewClient(ctx, ts))
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		client.BaseURL = u
	}
	return client, nil
}

// ListRepos returns every repository the token's owner can see, most
// recently pushed first.
func (c *Client) ListRepos(ctx context.Context, token string) ([]domain.DraftImport, error) {
	client, err := c.api(ctx, token)
	if err != nil {
		return nil, err
	}
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Sort:        "pushed",
		ListOptions: gh.ListOptions{PerPage: reposPerPage},
	}
	var out []domain.DraftImport
	for {
		var (
			page []*gh.Repository
			resp *gh.Response
		)
		err := c.retry(ctx, func() (*gh.Response, error) {
			var err error
			page, resp, err = client.Repositories.ListByAuthenticatedUser(ctx, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			out = append(out, toDraftImport(r))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	c.log().Debug("listed github repositories", zap.Int("count", len(out)))
	return out, nil
}

func toDraftImport(r *gh.Repository) domain.DraftImport {
	d := domain.DraftImport{
		GitHubRepoID:  r.GetID(),
		FullName:      r.GetFullName(),
		HTMLURL:       r.GetHTMLURL(),
		Description:   r.Description,
		Visibility:    "public",
		DefaultBranch: r.GetDefaultBranch(),
		Topics:        r.Topics,
	}
	if r.GetPrivate() || r.GetVisibility() == "private" {
		d.Visibility = "private"
	}
	if r.PushedAt != nil {
		pushed := r.PushedAt.UTC().Format(time.RFC3339)
		d.PushedAt = &pushed
	}
	return d
}

// retry runs op with exponential backoff. Client errors other than rate
// limits are not retried.
func (c *Client) retry(ctx context.Context, op func() (*gh.Response, error)) error {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	b.MaxElapsedTime = 2 * time.Minute
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.MaxRetries), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		resp, err := op()
		if err == nil {
			return nil
		}
		if !retryable(resp, err) {
			return backoff.Permanent(err)
		}
		c.log().Warn("github request failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, policy)
}

func retryable(resp *gh.Response, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode >= http.StatusInternalServerError
}

func (c *Client) log() *zap.Logger {
	return logging.OrNop(c.Logger)
}
