package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"homico/internal/domain"
	"homico/internal/engine"
	"homico/internal/engine/auth"
	"homico/internal/repo"
	"homico/internal/sweep"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// Sweep is used by POST /admin/sweep; nil runs the sweep directly.
	Sweep  *sweep.Scheduler
	Logger *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"cannot accept proposal in status withdrawn"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"entity\":\"proposal\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the homico API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sweeper := cfg.Sweep
	if sweeper == nil {
		sweeper = sweep.New(cfg.Engine, logger)
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("homico API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerJobs(group, cfg.Engine)
	registerDirect(group, cfg.Engine)
	registerProposals(group, cfg.Engine)
	registerTracking(group, cfg.Engine)
	registerAdmin(group, cfg.Engine, sweeper, logger)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"action": fe.Action})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var ise engine.InvalidStateError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), map[string]any{
			"entity": ise.Entity,
			"status": ise.Status,
		})
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrInvalidInput) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>homico API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;. Tokens carry sub and role claims.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*statusOutput, error) {
		return &statusOutput{Body: StatusResponse{Status: "ok"}}, nil
	})
}

type jobOutput struct {
	Body domain.Job `json:"body"`
}

type jobsOutput struct {
	Body []domain.Job `json:"body"`
}

type proposalOutput struct {
	Body domain.Proposal `json:"body"`
}

type proposalsOutput struct {
	Body []domain.Proposal `json:"body"`
}

type trackingOutput struct {
	Body domain.ProjectTracking `json:"body"`
}

type statusOutput struct {
	Body StatusResponse `json:"body"`
}

type countOutput struct {
	Body CountResponse `json:"body"`
}

type jobPath struct {
	JobID string `path:"job_id"`
}

type proposalPath struct {
	ID string `path:"id"`
}

var (
	readErrors  = []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound}
	writeErrors = []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusInternalServerError,
	}
)

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/jobs",
		Summary:       "Post a job",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateJobRequest `json:"body"`
	}) (*jobOutput, error) {
		clientID, err := requireRole(ctx, "create job", auth.RoleClient)
		if err != nil {
			return nil, handleError(err)
		}
		jobType := domain.JobType(input.Body.JobType)
		if jobType == "" {
			jobType = domain.JobTypeMarketplace
		}
		job, err := e.CreateJob(ctx, engine.JobCreateOptions{
			ClientID:    clientID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Category:    input.Body.Category,
			Budget:      input.Body.Budget,
			JobType:     jobType,
			InvitedPros: input.Body.InvitedPros,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List the caller's jobs",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"open,in_progress,completed,cancelled,expired"`
		Limit  int    `query:"limit"`
	}) (*jobsOutput, error) {
		clientID, err := requireRole(ctx, "list jobs", auth.RoleClient)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListJobs(ctx, repo.JobFilters{
			ClientID: clientID,
			Status:   domain.JobStatus(input.Status),
			Limit:    normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &jobsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get job",
		Errors:      readErrors,
	}, func(ctx context.Context, input *jobPath) (*jobOutput, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		job, err := e.GetJob(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/cancel",
		Summary:     "Cancel job",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		JobID string            `path:"job_id"`
		Body  *CancelJobRequest `json:"body,omitempty"`
	}) (*jobOutput, error) {
		clientID, err := requireRole(ctx, "cancel job", auth.RoleClient)
		if err != nil {
			return nil, handleError(err)
		}
		var reason string
		if input.Body != nil {
			reason = input.Body.Reason
		}
		job, err := e.CancelJob(ctx, input.JobID, clientID, reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "renew-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/renew",
		Summary:     "Reopen an expired job",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *jobPath) (*jobOutput, error) {
		clientID, err := requireRole(ctx, "renew job", auth.RoleClient)
		if err != nil {
			return nil, handleError(err)
		}
		job, err := e.RenewJob(ctx, input.JobID, clientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "record-job-view",
		Method:        http.MethodPost,
		Path:          "/jobs/{job_id}/view",
		Summary:       "Count a job view",
		DefaultStatus: http.StatusNoContent,
		Errors:        readErrors,
	}, func(ctx context.Context, input *jobPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RecordJobView(ctx, input.JobID, userID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "invite-pros",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/invites",
		Summary:     "Invite professionals to a direct request",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		JobID string            `path:"job_id"`
		Body  InviteProsRequest `json:"body"`
	}) (*jobOutput, error) {
		clientID, err := requireRole(ctx, "invite professionals", auth.RoleClient)
		if err != nil {
			return nil, handleError(err)
		}
		job, err := e.InvitePros(ctx, input.JobID, clientID, input.Body.ProIDs)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: job}, nil
	})
}

func registerDirect(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "accept-direct-request",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/direct/accept",
		Summary:     "Accept a direct request",
		Description: "The first invited professional to accept is hired; later callers get 409 conflict.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *jobPath) (*trackingOutput, error) {
		proID, err := requireRole(ctx, "accept direct request", auth.RolePro)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.AcceptDirectRequest(ctx, input.JobID, proID)
		if err != nil {
			return nil, handleError(err)
		}
		return &trackingOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decline-direct-request",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/direct/decline",
		Summary:     "Decline a direct request",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *jobPath) (*jobOutput, error) {
		proID, err := requireRole(ctx, "decline direct request", auth.RolePro)
		if err != nil {
			return nil, handleError(err)
		}
		job, err := e.DeclineDirectRequest(ctx, input.JobID, proID)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: job}, nil
	})
}

func registerProposals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-proposal",
		Method:        http.MethodPost,
		Path:          "/jobs/{job_id}/proposals",
		Summary:       "Submit a proposal",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		JobID string                `path:"job_id"`
		Body  SubmitProposalRequest `json:"body"`
	}) (*proposalOutput, error) {
		proID, err := requireRole(ctx, "submit proposal", auth.RolePro)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := e.SubmitProposal(ctx, engine.ProposalSubmitOptions{
			JobID:                 input.JobID,
			ProID:                 proID,
			CoverLetter:           input.Body.CoverLetter,
			ProposedPrice:         input.Body.ProposedPrice,
			EstimatedDuration:     input.Body.EstimatedDuration,
			EstimatedDurationUnit: input.Body.EstimatedDurationUnit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &proposalOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-proposals",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}/proposals",
		Summary:     "List proposals for a job",
		Description: "The job owner sees every proposal; a professional sees only their own.",
		Errors:      readErrors,
	}, func(ctx context.Context, input *jobPath) (*proposalsOutput, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProposals(ctx, input.JobID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &proposalsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-proposals-viewed",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/proposals/viewed",
		Summary:     "Mark a job's proposals as seen by the client",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *jobPath) (*countOutput, error) {
		clientID, err := requireRole(ctx, "mark proposals viewed", auth.RoleClient)
		if err != nil {
			return nil, handleError(err)
		}
		n, err := e.MarkProposalsViewed(ctx, input.JobID, clientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &countOutput{Body: CountResponse{Updated: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-proposal",
		Method:      http.MethodGet,
		Path:        "/proposals/{id}",
		Summary:     "Get proposal",
		Errors:      readErrors,
	}, func(ctx context.Context, input *proposalPath) (*proposalOutput, error) {
		p, err := principalProposal(ctx, e, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &proposalOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "shortlist-proposal",
		Method:      http.MethodPost,
		Path:        "/proposals/{id}/shortlist",
		Summary:     "Shortlist a proposal with a hiring choice",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body ShortlistRequest `json:"body"`
	}) (*proposalOutput, error) {
		clientID, err := requireRole(ctx, "shortlist proposal", auth.RoleClient)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := e.Shortlist(ctx, input.ID, clientID, domain.HiringChoice(input.Body.HiringChoice))
		if err != nil {
			return nil, handleError(err)
		}
		return &proposalOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-proposal",
		Method:      http.MethodPost,
		Path:        "/proposals/{id}/accept",
		Summary:     "Hire the professional behind a proposal",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *proposalPath) (*struct {
		Body AcceptResponse `json:"body"`
	}, error) {
		clientID, err := requireRole(ctx, "accept proposal", auth.RoleClient)
		if err != nil {
			return nil, handleError(err)
		}
		p, t, err := e.Accept(ctx, input.ID, clientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AcceptResponse `json:"body"`
		}{Body: AcceptResponse{Proposal: p, Tracking: t}}, nil
	})

	clientActions := []struct {
		id, path, summary, action string
		fn                        func(context.Context, string, string) (domain.Proposal, error)
	}{
		{"reject-proposal", "/proposals/{id}/reject", "Reject a proposal", "reject proposal", e.Reject},
		{"revert-proposal", "/proposals/{id}/revert", "Return a proposal to pending", "revert proposal", e.RevertToPending},
		{"reveal-proposal-contact", "/proposals/{id}/reveal-contact", "Reveal the professional's contact", "reveal contact", e.RevealContact},
	}
	for _, a := range clientActions {
		huma.Register(api, huma.Operation{
			OperationID: a.id,
			Method:      http.MethodPost,
			Path:        a.path,
			Summary:     a.summary,
			Errors:      writeErrors,
		}, func(ctx context.Context, input *proposalPath) (*proposalOutput, error) {
			clientID, err := requireRole(ctx, a.action, auth.RoleClient)
			if err != nil {
				return nil, handleError(err)
			}
			p, err := a.fn(ctx, input.ID, clientID)
			if err != nil {
				return nil, handleError(err)
			}
			return &proposalOutput{Body: p}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "withdraw-proposal",
		Method:      http.MethodPost,
		Path:        "/proposals/{id}/withdraw",
		Summary:     "Withdraw a proposal",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *proposalPath) (*proposalOutput, error) {
		proID, err := requireRole(ctx, "withdraw proposal", auth.RolePro)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := e.Withdraw(ctx, input.ID, proID)
		if err != nil {
			return nil, handleError(err)
		}
		return &proposalOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "mark-proposal-viewed",
		Method:        http.MethodPost,
		Path:          "/proposals/{id}/viewed",
		Summary:       "Mark a proposal's latest update as seen by the professional",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *proposalPath) (*struct{}, error) {
		proID, err := requireRole(ctx, "mark proposal viewed", auth.RolePro)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.MarkProposalViewedByPro(ctx, input.ID, proID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

// principalProposal loads a proposal visible to the caller: its author,
// the job owner, or an admin.
func principalProposal(ctx context.Context, e engine.Engine, id string) (domain.Proposal, error) {
	p, ok := principalFromContext(ctx)
	if !ok {
		return domain.Proposal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	prop, err := e.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	if p.Role == auth.RoleAdmin || prop.ProID == p.UserID {
		return prop, nil
	}
	job, err := e.GetJob(ctx, prop.JobID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := auth.RequireOwner("view proposal", p.UserID, job.ClientID); err != nil {
		return domain.Proposal{}, err
	}
	return prop, nil
}

func registerTracking(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-tracking",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}/tracking",
		Summary:     "Get project tracking",
		Errors:      readErrors,
	}, func(ctx context.Context, input *jobPath) (*trackingOutput, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTracking(ctx, input.JobID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &trackingOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/tracking/stage",
		Summary:     "Move the project to another stage",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		JobID string       `path:"job_id"`
		Body  StageRequest `json:"body"`
	}) (*trackingOutput, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stage, err := domain.ParseStage(input.Body.Stage)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		t, err := e.UpdateStage(ctx, engine.StageUpdateOptions{
			JobID:  input.JobID,
			UserID: userID,
			Stage:  stage,
			Note:   input.Body.Note,
			Images: input.Body.Images,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &trackingOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-progress",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/tracking/progress",
		Summary:     "Report progress",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		JobID string          `path:"job_id"`
		Body  ProgressRequest `json:"body"`
	}) (*trackingOutput, error) {
		proID, err := requireRole(ctx, "update progress", auth.RolePro)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.UpdateProgress(ctx, input.JobID, proID, input.Body.Progress)
		if err != nil {
			return nil, handleError(err)
		}
		return &trackingOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-completion",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/tracking/confirm",
		Summary:     "Confirm the professional's completion claim",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *jobPath) (*trackingOutput, error) {
		clientID, err := requireRole(ctx, "confirm completion", auth.RoleClient)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.ConfirmCompletion(ctx, input.JobID, clientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &trackingOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-message",
		Method:        http.MethodPost,
		Path:          "/jobs/{job_id}/tracking/messages",
		Summary:       "Post a project message",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		JobID string         `path:"job_id"`
		Body  MessageRequest `json:"body"`
	}) (*struct {
		Body domain.HistoryEvent `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		h, err := e.PostMessage(ctx, input.JobID, userID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HistoryEvent `json:"body"`
		}{Body: h}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-history",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}/tracking/history",
		Summary:     "Project timeline",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body []domain.HistoryEvent `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListHistory(ctx, input.JobID, userID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.HistoryEvent `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "mark-feature-viewed",
		Method:        http.MethodPost,
		Path:          "/jobs/{job_id}/tracking/viewed",
		Summary:       "Mark a timeline feature as read",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		JobID string        `path:"job_id"`
		Body  ViewedRequest `json:"body"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.MarkViewed(ctx, input.JobID, userID, domain.Feature(input.Body.Feature)); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unread-counts",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}/tracking/unread",
		Summary:     "Unread counts per timeline feature",
		Errors:      readErrors,
	}, func(ctx context.Context, input *jobPath) (*struct {
		Body domain.UnreadCounts `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		counts, err := e.UnreadCounts(ctx, input.JobID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UnreadCounts `json:"body"`
		}{Body: counts}, nil
	})
}

func registerAdmin(api huma.API, e engine.Engine, sweeper *sweep.Scheduler, logger *slog.Logger) {
	huma.Register(api, huma.Operation{
		OperationID: "run-sweep",
		Method:      http.MethodPost,
		Path:        "/admin/sweep",
		Summary:     "Expire stale open jobs now",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SweepResponse `json:"body"`
	}, error) {
		if _, err := requireRole(ctx, "run sweep", auth.RoleAdmin); err != nil {
			return nil, handleError(err)
		}
		res := sweeper.RunOnce(ctx)
		if res.Error != "" {
			logger.ErrorContext(ctx, "admin sweep failed", "error", res.Error)
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", "sweep failed", map[string]any{"error": res.Error})
		}
		return &struct {
			Body SweepResponse `json:"body"`
		}{Body: SweepResponse{Expired: res.Expired}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sweep-status",
		Method:      http.MethodGet,
		Path:        "/admin/sweep",
		Summary:     "Last expiration sweep run",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SweepStatusResponse `json:"body"`
	}, error) {
		if _, err := requireRole(ctx, "read sweep status", auth.RoleAdmin); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SweepStatusResponse `json:"body"`
		}{Body: SweepStatusResponse{Running: sweeper.Running(), Last: sweeper.Last()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "set-pro-verification",
		Method:        http.MethodPost,
		Path:          "/admin/pros/{pro_id}/verification",
		Summary:       "Set a professional's verification status",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProID string              `path:"pro_id"`
		Body  VerificationRequest `json:"body"`
	}) (*struct{}, error) {
		adminID, err := requireRole(ctx, "set verification", auth.RoleAdmin)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.SetProVerification(ctx, input.ProID, input.Body.Status, adminID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/admin/events",
		Summary:     "Latest change events",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		JobID string `query:"job_id"`
		Type  string `query:"type"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, err := requireRole(ctx, "list events", auth.RoleAdmin); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.JobID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}
