package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/engine"
	"github.com/and27/pcengine/internal/github"
	"github.com/and27/pcengine/internal/logging"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// OAuth is nil when the GitHub connection flow is not configured.
	OAuth  *github.OAuth
	Logger *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"active_cap_reached"`
	Message string         `json:"message" example:"active project limit reached"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"next_action\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// out wraps a response body for huma.
type out[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *out[T] {
	return &out[T]{Body: v}
}

type handlers struct {
	engine engine.Engine
	oauth  *github.OAuth
	logger *zap.Logger
}

// New returns an HTTP handler exposing the pcengine API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := logging.OrNop(cfg.Logger)
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are plain bad requests.
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
	router.Handle("/metrics", promhttp.Handler())
	hcfg := huma.DefaultConfig("pcengine API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{engine: cfg.Engine, oauth: cfg.OAuth, logger: logger}
	registerDocs(router, basePath)
	registerHealth(group)
	h.registerProjects(group)
	h.registerActions(group)
	h.registerReview(group)
	h.registerDrafts(group)
	h.registerGitHub(group)
	h.registerEvents(group)
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

// handleError maps domain errors onto the HTTP taxonomy.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	var te *domain.InvalidTransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"action": te.Action.String(),
			"status": string(te.Status),
		})
	}
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	case errors.Is(err, domain.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrActiveCapReached):
		return newAPIError(http.StatusConflict, "active_cap_reached", err.Error(), nil)
	case errors.Is(err, domain.ErrConcurrentModification):
		return newAPIError(http.StatusConflict, "concurrent_modification", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyConverted):
		return newAPIError(http.StatusConflict, "already_converted", err.Error(), nil)
	case errors.Is(err, github.ErrInvalidState):
		return newAPIError(http.StatusBadRequest, "invalid_state", err.Error(), nil)
	case errors.Is(err, engine.ErrGitHubNotConfigured):
		return newAPIError(http.StatusServiceUnavailable, "github_not_configured", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

// fail maps err and logs anything that is not a client error.
func (h handlers) fail(err error) huma.StatusError {
	se := handleError(err)
	if se.GetStatus() >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	return se
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
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
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

func operations(item *huma.PathItem) []*huma.Operation {
	var ops []*huma.Operation
	for _, op := range []*huma.Operation{
		item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
	} {
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops
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
	public := map[string]bool{
		path.Join(basePath, "health"):          true,
		path.Join(basePath, "github/callback"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if public[route] {
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
    <title>pcengine API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt;.
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
	}, func(ctx context.Context, _ *struct{}) (*out[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

var (
	writeErrors = []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusInternalServerError,
	}
	readErrors = []int{http.StatusUnauthorized, http.StatusNotFound}
)

func (h handlers) registerProjects(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/config",
		Summary:     "Effective lifecycle configuration",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*out[ConfigResponse], error) {
		return reply(configResponse(e, h.oauth != nil)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*out[domain.Project], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, actorID, input.Body.input())
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,frozen,archived"`
	}) (*out[[]domain.Project], error) {
		items, err := e.ListProjects(ctx, input.Status)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*out[domain.Project], error) {
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project fields",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*out[domain.Project], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, actorID, input.ProjectID, input.Body.input())
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete archived project",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Delete(ctx, actorID, input.ProjectID); err != nil {
			return nil, h.fail(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-snapshots",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/snapshots",
		Summary:     "List project snapshots",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*out[[]domain.ProjectSnapshot], error) {
		items, err := e.Snapshots(ctx, input.ProjectID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/decisions",
		Summary:     "List override decisions touching a project",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*out[[]domain.OverrideDecision], error) {
		items, err := e.Decisions(ctx, input.ProjectID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(nonNilSlice(items)), nil
	})
}

func (h handlers) registerActions(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID: "apply-action",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/actions/{action}",
		Summary:     "Launch, freeze, archive or finish a project",
		Description: "Freeze and finish require a snapshot body with a summary.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Action    string                `path:"action" enum:"launch,freeze,archive,finish"`
		Body      *engine.SnapshotInput `json:"body" required:"false"`
	}) (*out[domain.Project], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		action, err := domain.ParseAction(input.Action)
		if err != nil {
			return nil, h.fail(err)
		}
		p, err := e.Apply(ctx, actorID, input.ProjectID, action, input.Body)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "restart-project",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/restart",
		Summary:       "Restart an archived project as a new frozen project",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"project_id"`
		Body      RestartRequest `json:"body"`
	}) (*out[domain.Project], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Restart(ctx, actorID, input.ProjectID, input.Body.NextAction)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "override-active-cap",
		Method:      http.MethodPost,
		Path:        "/override",
		Summary:     "Freeze one active project and launch a frozen one",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Body engine.OverrideInput `json:"body"`
	}) (*out[domain.OverrideResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Override(ctx, actorID, input.Body)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(res), nil
	})
}

func (h handlers) registerReview(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID: "review-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/review",
		Summary:     "Review an active project",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      engine.ReviewInput `json:"body"`
	}) (*out[domain.Project], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Review(ctx, actorID, input.ProjectID, input.Body)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-queue",
		Method:      http.MethodGet,
		Path:        "/review-queue",
		Summary:     "Active projects due for review",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Project], error) {
		items, err := e.ReviewQueue(ctx)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(nonNilSlice(items)), nil
	})
}

func (h handlers) registerDrafts(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID: "list-drafts",
		Method:      http.MethodGet,
		Path:        "/drafts",
		Summary:     "List the caller's repository drafts",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.RepoDraft], error) {
		items, err := e.ListDrafts(ctx, userFromContext(ctx))
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-drafts",
		Method:      http.MethodPost,
		Path:        "/drafts",
		Summary:     "Import repository drafts",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Body ImportDraftsRequest `json:"body"`
	}) (*out[ImportDraftsResponse], error) {
		n, err := e.ImportDrafts(ctx, userFromContext(ctx), input.Body.Drafts)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(ImportDraftsResponse{Imported: n}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-github-drafts",
		Method:      http.MethodPost,
		Path:        "/drafts/import-github",
		Summary:     "Import drafts from the connected GitHub account",
		Errors:      append(writeErrors, http.StatusServiceUnavailable),
	}, func(ctx context.Context, _ *struct{}) (*out[ImportDraftsResponse], error) {
		n, err := e.ImportFromGitHub(ctx, userFromContext(ctx))
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(ImportDraftsResponse{Imported: n}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-draft",
		Method:      http.MethodGet,
		Path:        "/drafts/{draft_id}",
		Summary:     "Get draft",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		DraftID string `path:"draft_id"`
	}) (*out[domain.RepoDraft], error) {
		d, err := e.GetDraft(ctx, userFromContext(ctx), input.DraftID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "convert-draft",
		Method:        http.MethodPost,
		Path:          "/drafts/{draft_id}/convert",
		Summary:       "Convert a draft into a frozen project",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		DraftID string                   `path:"draft_id"`
		Body    engine.ConvertDraftInput `json:"body"`
	}) (*out[ConvertDraftResponse], error) {
		id, err := e.ConvertDraft(ctx, userFromContext(ctx), input.DraftID, input.Body)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(ConvertDraftResponse{ProjectID: id}), nil
	})
}

func (h handlers) registerGitHub(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID: "github-connection",
		Method:      http.MethodGet,
		Path:        "/github/connection",
		Summary:     "GitHub connection state",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*out[domain.ConnectionState], error) {
		state, err := e.ConnectionState(ctx, userFromContext(ctx))
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(state), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "github-connect",
		Method:      http.MethodPost,
		Path:        "/github/connect",
		Summary:     "Start the GitHub OAuth flow",
		Errors:      []int{http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*out[ConnectResponse], error) {
		if h.oauth == nil {
			return nil, h.fail(engine.ErrGitHubNotConfigured)
		}
		u, err := h.oauth.AuthCodeURL(ctx, userFromContext(ctx).UserID)
		if err != nil {
			return nil, h.fail(err)
		}
		return reply(ConnectResponse{AuthorizeURL: u}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "github-callback",
		Method:      http.MethodGet,
		Path:        "/github/callback",
		Summary:     "Complete the GitHub OAuth flow",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		State string `query:"state"`
		Code  string `query:"code"`
	}) (*out[domain.ConnectionState], error) {
		if h.oauth == nil {
			return nil, h.fail(engine.ErrGitHubNotConfigured)
		}
		conn, err := h.oauth.Exchange(ctx, input.State, input.Code)
		if err != nil {
			return nil, h.fail(err)
		}
		if err := e.Connect(ctx, conn); err != nil {
			return nil, h.fail(err)
		}
		h.logger.Info("github account connected", zap.String("user_id", conn.UserID), zap.String("login", conn.GitHubLogin))
		return reply(domain.ConnectionState{Connected: true, GitHubLogin: &conn.GitHubLogin}), nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events after a cursor",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		After     int64  `query:"after" minimum:"0"`
		Limit     int    `query:"limit" default:"100" minimum:"1" maximum:"500"`
		ProjectID string `query:"project_id"`
	}) (*out[EventsResponse], error) {
		items, err := e.ListEvents(ctx, input.ProjectID, input.After, input.Limit)
		if err != nil {
			return nil, h.fail(err)
		}
		resp := EventsResponse{Items: nonNilSlice(items)}
		if len(items) > 0 && len(items) == input.Limit {
			resp.NextCursor = items[len(items)-1].ID
		}
		return reply(resp), nil
	})
}
