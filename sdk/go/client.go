package homicosdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is a minimal homico HTTP API client for the hiring endpoints.
type Client struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
	RetryCount  int

	http *resty.Client
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://localhost:8080/v1.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Job represents the API job model (partial).
type Job struct {
	ID            string   `json:"id"`
	DisplayNumber int64    `json:"display_number"`
	ClientID      string   `json:"client_id"`
	Title         string   `json:"title"`
	Category      string   `json:"category"`
	Budget        *float64 `json:"budget,omitempty"`
	JobType       string   `json:"job_type"`
	Status        string   `json:"status"`
	HiredProID    *string  `json:"hired_pro_id,omitempty"`
	InvitedPros   []string `json:"invited_pros,omitempty"`
	DeclinedPros  []string `json:"declined_pros,omitempty"`
	ProposalCount int      `json:"proposal_count"`
	ExpiresAt     string   `json:"expires_at"`
}

// NewJob is the payload for CreateJob.
type NewJob struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Budget      *float64 `json:"budget,omitempty"`
	JobType     string   `json:"job_type,omitempty"`
	InvitedPros []string `json:"invited_pros,omitempty"`
}

// Proposal represents a professional's bid.
type Proposal struct {
	ID                    string  `json:"id"`
	JobID                 string  `json:"job_id"`
	ProID                 string  `json:"pro_id"`
	CoverLetter           string  `json:"cover_letter"`
	ProposedPrice         float64 `json:"proposed_price"`
	EstimatedDuration     int     `json:"estimated_duration"`
	EstimatedDurationUnit string  `json:"estimated_duration_unit"`
	Status                string  `json:"status"`
	HiringChoice          *string `json:"hiring_choice,omitempty"`
	ContactRevealed       bool    `json:"contact_revealed"`
}

// NewProposal is the payload for SubmitProposal.
type NewProposal struct {
	CoverLetter           string  `json:"cover_letter"`
	ProposedPrice         float64 `json:"proposed_price"`
	EstimatedDuration     int     `json:"estimated_duration"`
	EstimatedDurationUnit string  `json:"estimated_duration_unit"`
}

// Tracking represents the post-hire project state.
type Tracking struct {
	ID                string  `json:"id"`
	JobID             string  `json:"job_id"`
	ClientID          string  `json:"client_id"`
	ProID             string  `json:"pro_id"`
	CurrentStage      string  `json:"current_stage"`
	Progress          int     `json:"progress"`
	CompletedAt       *string `json:"completed_at,omitempty"`
	ClientConfirmedAt *string `json:"client_confirmed_at,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsConflict reports whether err is a 409, e.g. a direct request taken by
// another professional.
func IsConflict(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusConflict
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) CreateJob(ctx context.Context, in NewJob) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, "jobs", in, &resp)
	return resp, err
}

func (c *Client) GetJob(ctx context.Context, jobID string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(jobID), nil, &resp)
	return resp, err
}

// ListJobs returns the caller's jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, status string, limit int) ([]Job, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := "jobs"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Job
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) CancelJob(ctx context.Context, jobID, reason string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, "jobs/"+url.PathEscape(jobID)+"/cancel", map[string]string{"reason": reason}, &resp)
	return resp, err
}

func (c *Client) SubmitProposal(ctx context.Context, jobID string, in NewProposal) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, "jobs/"+url.PathEscape(jobID)+"/proposals", in, &resp)
	return resp, err
}

func (c *Client) ListProposals(ctx context.Context, jobID string) ([]Proposal, error) {
	var resp []Proposal
	err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(jobID)+"/proposals", nil, &resp)
	return resp, err
}

// Shortlist marks a proposal with the client's hiring choice: "homico" or "direct".
func (c *Client) Shortlist(ctx context.Context, proposalID, choice string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, "proposals/"+url.PathEscape(proposalID)+"/shortlist", map[string]string{"hiring_choice": choice}, &resp)
	return resp, err
}

// Accept hires the professional behind the proposal.
func (c *Client) Accept(ctx context.Context, proposalID string) (Proposal, Tracking, error) {
	var resp struct {
		Proposal Proposal `json:"proposal"`
		Tracking Tracking `json:"tracking"`
	}
	err := c.do(ctx, http.MethodPost, "proposals/"+url.PathEscape(proposalID)+"/accept", nil, &resp)
	return resp.Proposal, resp.Tracking, err
}

func (c *Client) Reject(ctx context.Context, proposalID string) (Proposal, error) {
	return c.proposalAction(ctx, proposalID, "reject")
}

func (c *Client) Withdraw(ctx context.Context, proposalID string) (Proposal, error) {
	return c.proposalAction(ctx, proposalID, "withdraw")
}

func (c *Client) proposalAction(ctx context.Context, proposalID, action string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, "proposals/"+url.PathEscape(proposalID)+"/"+action, nil, &resp)
	return resp, err
}

// AcceptDirectRequest claims a direct request. Losing a race returns an
// error for which IsConflict is true.
func (c *Client) AcceptDirectRequest(ctx context.Context, jobID string) (Tracking, error) {
	var resp Tracking
	err := c.do(ctx, http.MethodPost, "jobs/"+url.PathEscape(jobID)+"/direct/accept", nil, &resp)
	return resp, err
}

func (c *Client) DeclineDirectRequest(ctx context.Context, jobID string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, "jobs/"+url.PathEscape(jobID)+"/direct/decline", nil, &resp)
	return resp, err
}

func (c *Client) Tracking(ctx context.Context, jobID string) (Tracking, error) {
	var resp Tracking
	err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(jobID)+"/tracking", nil, &resp)
	return resp, err
}

func (c *Client) UpdateStage(ctx context.Context, jobID, stage, note string, images []string) (Tracking, error) {
	body := map[string]any{"stage": stage}
	if note != "" {
		body["note"] = note
	}
	if len(images) > 0 {
		body["images"] = images
	}
	var resp Tracking
	err := c.do(ctx, http.MethodPost, "jobs/"+url.PathEscape(jobID)+"/tracking/stage", body, &resp)
	return resp, err
}

func (c *Client) ConfirmCompletion(ctx context.Context, jobID string) (Tracking, error) {
	var resp Tracking
	err := c.do(ctx, http.MethodPost, "jobs/"+url.PathEscape(jobID)+"/tracking/confirm", nil, &resp)
	return resp, err
}

func (c *Client) client() *resty.Client {
	if c.http == nil {
		c.http = resty.New().
			SetTimeout(c.Timeout).
			SetRetryCount(c.RetryCount).
			SetHeader("Content-Type", "application/json").
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return r != nil && r.StatusCode() >= 500
			})
	}
	return c.http
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	req := c.client().R().SetContext(ctx).SetError(&errorEnvelope{})
	if c.BearerToken != "" {
		req.SetAuthToken(c.BearerToken)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, c.base()+"/"+strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return err
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
		if env, ok := resp.Error().(*errorEnvelope); ok {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
