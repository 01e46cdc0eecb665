package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/melih/aetherhost/internal/core/domain"
)

// DefaultTimeout bounds a single request when the caller's context has no deadline.
const DefaultTimeout = 60 * time.Second

// Client talks to the AetherHost HTTP API.
type Client struct {
	baseURL string
	http    *fiber.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request upper bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fiber.Client{
			UserAgent:   "aetherhost-client",
			JSONEncoder: json.Marshal,
			JSONDecoder: json.Unmarshal,
		},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type execRequest struct {
	Command string `json:"command"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	agent := c.http.Post(c.baseURL + "/auth/login")
	agent.JSON(loginRequest{Email: email, Password: password})

	var resp loginResponse
	if err := c.do(ctx, agent, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", domain.NewExecError(domain.ErrTransport, 0, "login response carried no token", nil)
	}
	return resp.AccessToken, nil
}

// ListContainers returns the caller's containers.
func (c *Client) ListContainers(ctx context.Context, token string) ([]domain.Container, error) {
	agent := c.http.Get(c.baseURL + "/compute/list")
	agent.Set(fiber.HeaderAuthorization, "Bearer "+token)

	var containers []domain.Container
	if err := c.do(ctx, agent, &containers); err != nil {
		return nil, err
	}
	return containers, nil
}

// Exec runs command inside containerID through POST /compute/exec/{id}.
func (c *Client) Exec(ctx context.Context, token, containerID, command string) (domain.ExecResult, error) {
	agent := c.http.Post(c.baseURL + "/compute/exec/" + url.PathEscape(containerID))
	agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	agent.JSON(execRequest{Command: command})

	var res domain.ExecResult
	if err := c.do(ctx, agent, &res); err != nil {
		return domain.ExecResult{}, err
	}
	return res, nil
}

type agentResult struct {
	code int
	body []byte
	errs []error
}

// do sends the request on its own goroutine so ctx can abandon it. The
// fasthttp agent has no context support; an abandoned response is dropped.
func (c *Client) do(ctx context.Context, agent *fiber.Agent, out any) error {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if timeout <= 0 {
		fiber.ReleaseAgent(agent)
		return domain.NewExecError(domain.ErrTimeout, 0, "deadline already passed", ctx.Err())
	}
	agent.Timeout(timeout)
	agent.Set(fiber.HeaderXRequestID, uuid.NewString())

	done := make(chan agentResult, 1)
	go func() {
		code, body, errs := agent.Bytes()
		done <- agentResult{code: code, body: body, errs: errs}
	}()

	var res agentResult
	select {
	case res = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.NewExecError(domain.ErrTimeout, 0, "request deadline exceeded", ctx.Err())
		}
		return domain.NewExecError(domain.ErrTransport, 0, "request cancelled", ctx.Err())
	}

	if len(res.errs) > 0 {
		err := errors.Join(res.errs...)
		if errors.Is(err, fasthttp.ErrTimeout) {
			return domain.NewExecError(domain.ErrTimeout, 0, fmt.Sprintf("no response within %s", timeout), err)
		}
		return domain.NewExecError(domain.ErrTransport, 0, "request failed", err)
	}

	if res.code < 200 || res.code > 299 {
		return statusError(res.code, res.body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return domain.NewExecError(domain.ErrTransport, res.code, "malformed response body", err)
	}
	return nil
}

func statusError(code int, body []byte) error {
	message := fmt.Sprintf("status %d", code)
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		message = e.Error
	}
	kind := domain.ErrTransport
	if code == fiber.StatusUnauthorized || code == fiber.StatusForbidden {
		kind = domain.ErrAuth
	}
	return domain.NewExecError(kind, code, message, nil)
}
