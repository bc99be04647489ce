package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/and27/pcengine/internal/config"
)

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(srv.URL, nil)
	c.InitialInterval = time.Millisecond
	return c
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestListReposFollowsPages(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user/repos", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "pushed", r.URL.Query().Get("sort"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id":2,"full_name":"me/secret","html_url":"https://github.com/me/secret","private":true,"default_branch":"dev"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/user/repos?page=2>; rel="next"`, srv.URL))
		fmt.Fprint(w, `[{"id":1,"full_name":"me/book","html_url":"https://github.com/me/book","description":"a book","private":false,"default_branch":"main","pushed_at":"2024-01-02T03:04:05Z","topics":["writing"]}]`)
	}))
	defer srv.Close()

	repos, err := newTestClient(srv).ListRepos(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, repos, 2)

	assert.Equal(t, int64(1), repos[0].GitHubRepoID)
	assert.Equal(t, "public", repos[0].Visibility)
	require.NotNil(t, repos[0].Description)
	assert.Equal(t, "a book", *repos[0].Description)
	require.NotNil(t, repos[0].PushedAt)
	assert.Equal(t, "2024-01-02T03:04:05Z", *repos[0].PushedAt)
	assert.Equal(t, []string{"writing"}, repos[0].Topics)

	assert.Equal(t, "private", repos[1].Visibility)
	assert.Equal(t, "dev", repos[1].DefaultBranch)
}

func TestListReposRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	repos, err := newTestClient(srv).ListRepos(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, repos)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListReposDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Bad credentials"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListRepos(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestListReposRequiresToken(t *testing.T) {
	_, err := NewClient("", nil).ListRepos(context.Background(), " ")
	assert.Error(t, err)
}

func TestStateStoreConsumesOnce(t *testing.T) {
	client, mr := setupRedis(t)
	store := NewStateStore(client)
	ctx := context.Background()

	state, err := store.Issue(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, stateTTL, mr.TTL(stateKeyPrefix+state))

	userID, err := store.Consume(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = store.Consume(ctx, state)
	assert.ErrorIs(t, err, ErrInvalidState)

	expiring, err := store.Issue(ctx, "u1")
	require.NoError(t, err)
	mr.FastForward(stateTTL + time.Second)
	_, err = store.Consume(ctx, expiring)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOAuthFlow(t *testing.T) {
	client, _ := setupRedis(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login/oauth/access_token":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "the-code", r.Form.Get("code"))
			fmt.Fprint(w, `{"access_token":"gho_abc","token_type":"bearer","scope":"read:user,repo"}`)
		case "/user":
			assert.Equal(t, "Bearer gho_abc", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"id":77,"login":"octo"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o := NewOAuth(config.GitHub{ClientID: "cid", ClientSecret: "secret", APIBaseURL: srv.URL}, NewStateStore(client))
	o.Config.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	ctx := context.Background()

	authURL, err := o.AuthCodeURL(ctx, "u1")
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "cid", u.Query().Get("client_id"))
	assert.Equal(t, "read:user repo", u.Query().Get("scope"))
	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	conn, err := o.Exchange(ctx, state, "the-code")
	require.NoError(t, err)
	assert.Equal(t, "u1", conn.UserID)
	assert.Equal(t, int64(77), conn.GitHubUserID)
	assert.Equal(t, "octo", conn.GitHubLogin)
	assert.Equal(t, "gho_abc", conn.AccessToken)
	assert.Equal(t, "read:user,repo", conn.Scope)

	_, err = o.Exchange(ctx, state, "the-code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAuthCodeURLRequiresUser(t *testing.T) {
	client, _ := setupRedis(t)
	o := NewOAuth(config.GitHub{ClientID: "cid"}, NewStateStore(client))
	_, err := o.AuthCodeURL(context.Background(), "")
	assert.Error(t, err)
}
