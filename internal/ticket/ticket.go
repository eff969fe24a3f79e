// Package ticket wraps the GitHub API operations the handlers need:
// reading and writing pull-request comments, fetching review bodies,
// re-requesting reviewers, and resolving commit messages.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	jwt "github.com/golang-jwt/jwt/v4"
	gh "github.com/google/go-github/v68/github"

	"github.com/threadkeeper/threadkeeper/internal/retry"
)

// Comment is an issue comment on a pull request.
type Comment struct {
	ID        int64
	Body      string
	User      string
	CreatedAt time.Time
}

// Client is a typed GitHub API client wrapping go-github.
type Client struct {
	gh           *gh.Client
	retryBackoff []time.Duration
}

// Option configures a Client.
type Option func(*clientConfig)

// AppCredentials holds GitHub App authentication parameters.
type AppCredentials struct {
	ClientID       string
	InstallationID int64
	PrivateKeyPath string
}

type clientConfig struct {
	baseURL      string
	retryBackoff []time.Duration
	app          *AppCredentials
}

// readKeyFile is a variable for testing; defaults to os.ReadFile.
var readKeyFile = os.ReadFile

// WithBaseURL overrides the GitHub API base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithRetryBackoff overrides the default retry backoff delays.
func WithRetryBackoff(delays ...time.Duration) Option {
	return func(c *clientConfig) { c.retryBackoff = delays }
}

// WithAppAuth configures GitHub App authentication using a Client ID,
// installation ID, and private key file. When set, token is ignored.
func WithAppAuth(app AppCredentials) Option {
	return func(c *clientConfig) { c.app = &app }
}

// New creates a GitHub API client. When WithAppAuth is provided, the client
// authenticates as a GitHub App installation (token parameter is ignored).
// Otherwise it authenticates with the given personal access token.
func New(token string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}

	var client *gh.Client

	if cfg.app != nil {
		httpClient, err := newAppHTTPClient(cfg.app, cfg.baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub App auth: %w", err)
		}
		client = gh.NewClient(httpClient)
	} else {
		client = gh.NewClient(nil).WithAuthToken(token)
	}
	if cfg.baseURL != "" {
		client, _ = client.WithEnterpriseURLs(cfg.baseURL, cfg.baseURL)
	}

	return &Client{gh: client, retryBackoff: cfg.retryBackoff}, nil
}

// newAppHTTPClient creates an http.Client with a GitHub App installation
// transport that uses Client ID (string) as the JWT issuer.
func newAppHTTPClient(app *AppCredentials, baseURL string) (*http.Client, error) {
	keyPath := expandHome(app.PrivateKeyPath)
	keyData, err := readKeyFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key %s: %w", app.PrivateKeyPath, err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	signer := &clientIDSigner{
		clientID: app.ClientID,
		method:   jwt.SigningMethodRS256,
		key:      key,
	}

	atr, err := ghinstallation.NewAppsTransportWithOptions(
		http.DefaultTransport, 0, // appID unused — our signer overrides the issuer
		ghinstallation.WithSigner(signer),
	)
	if err != nil {
		return nil, fmt.Errorf("creating apps transport: %w", err)
	}
	if baseURL != "" {
		atr.BaseURL = baseURL
	}

	itr := ghinstallation.NewFromAppsTransport(atr, app.InstallationID)
	if baseURL != "" {
		itr.BaseURL = baseURL
	}

	return &http.Client{Transport: itr}, nil
}

// clientIDSigner implements ghinstallation.Signer using a string Client ID
// as the JWT issuer instead of a numeric App ID.
type clientIDSigner struct {
	clientID string
	method   jwt.SigningMethod
	key      any
}

func (s *clientIDSigner) Sign(claims jwt.Claims) (string, error) {
	if rc, ok := claims.(*jwt.RegisteredClaims); ok {
		rc.Issuer = s.clientID
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.key)
}

// ListComments returns all issue comments on the given pull request.
func (c *Client) ListComments(ctx context.Context, owner, repo string, number int) ([]Comment, error) {
	return retry.DoVal(ctx, func() ([]Comment, error) {
		var all []Comment
		opts := &gh.IssueListCommentsOptions{
			ListOptions: gh.ListOptions{PerPage: 100},
		}
		for {
			comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
			if err != nil {
				return nil, classifyErr(fmt.Errorf("listing PR comments: %w", err))
			}
			for _, ic := range comments {
				all = append(all, commentFromGH(ic))
			}
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
		return all, nil
	}, c.retryOpts()...)
}

// CreateComment posts an issue comment on the pull request.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) (Comment, error) {
	return retry.DoVal(ctx, func() (Comment, error) {
		ic, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &gh.IssueComment{
			Body: gh.Ptr(body),
		})
		if err != nil {
			return Comment{}, classifyErr(fmt.Errorf("creating PR comment: %w", err))
		}
		return commentFromGH(ic), nil
	}, c.retryOpts()...)
}

// GetReviewBody fetches the body text of a single review, for events whose
// payload omits it.
func (c *Client) GetReviewBody(ctx context.Context, owner, repo string, number int, reviewID int64) (string, error) {
	return retry.DoVal(ctx, func() (string, error) {
		review, _, err := c.gh.PullRequests.GetReview(ctx, owner, repo, number, reviewID)
		if err != nil {
			return "", classifyErr(fmt.Errorf("fetching review %d: %w", reviewID, err))
		}
		return review.GetBody(), nil
	}, c.retryOpts()...)
}

// RequestReviewers re-requests a review from the given logins.
func (c *Client) RequestReviewers(ctx context.Context, owner, repo string, number int, logins []string) error {
	if len(logins) == 0 {
		return nil
	}
	return retry.Do(ctx, func() error {
		_, _, err := c.gh.PullRequests.RequestReviewers(ctx, owner, repo, number, gh.ReviewersRequest{
			Reviewers: logins,
		})
		if err != nil {
			return classifyErr(fmt.Errorf("requesting reviewers: %w", err))
		}
		return nil
	}, c.retryOpts()...)
}

// GetCommitMessage fetches the full message of a commit (e.g. the merge
// commit of a just-merged pull request).
func (c *Client) GetCommitMessage(ctx context.Context, owner, repo, sha string) (string, error) {
	return retry.DoVal(ctx, func() (string, error) {
		commit, _, err := c.gh.Git.GetCommit(ctx, owner, repo, sha)
		if err != nil {
			return "", classifyErr(fmt.Errorf("fetching commit %s: %w", sha, err))
		}
		return commit.GetMessage(), nil
	}, c.retryOpts()...)
}

func commentFromGH(ic *gh.IssueComment) Comment {
	return Comment{
		ID:        ic.GetID(),
		Body:      ic.GetBody(),
		User:      ic.GetUser().GetLogin(),
		CreatedAt: ic.GetCreatedAt().Time,
	}
}

// retryOpts returns the retry options for this client.
func (c *Client) retryOpts() []retry.Option {
	if len(c.retryBackoff) > 0 {
		return []retry.Option{retry.WithBackoff(c.retryBackoff...)}
	}
	return nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// classifyErr wraps a go-github error as permanent if it's a client error
// (4xx), and leaves it retryable for server errors (5xx) and network errors.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		if ghErr.Response.StatusCode >= 400 && ghErr.Response.StatusCode < 500 {
			return retry.Permanent(err)
		}
	}
	return err
}
