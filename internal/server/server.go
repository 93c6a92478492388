package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"teamportal/internal/engine"
	"teamportal/internal/engine/auth"
	"teamportal/internal/repo"
)

const DefaultBasePath = "/functions/v1"

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

// apiError is the error envelope every function returns.
type apiError struct {
	status  int
	Message string         `json:"error" example:"Missing required fields: task_id, old_status, new_status"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// New returns an HTTP handler exposing the task functions.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")
	log := cfg.Logger
	if log == nil {
		log = cfg.Engine.Logger()
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		// Malformed bodies are the caller's fault, same as our own validation.
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(accessLog(log))
	router.Use(middleware.Recoverer)
	router.Use(newAuthMiddleware(basePath, cfg.Auth))

	hcfg := huma.DefaultConfig("Team Portal Task Functions", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	hcfg.SchemasPath = ""
	hcfg.CreateHooks = nil
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerSyncTaskStatus(group, cfg.Engine)
	registerProcessOverdue(group, cfg.Engine)
	registerAnalytics(group, cfg.Engine)
	registerBulk(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, message string, details map[string]any) huma.StatusError {
	return &apiError{status: status, Message: message, Details: details}
}

// handleError maps engine errors onto HTTP statuses. fallback is the
// message shown for unexpected failures.
func handleError(err error, fallback string) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, ve.Message, details)
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "Forbidden: "+fe.Error(), map[string]any{"user_id": fe.ActorID})
	}
	var nf engine.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, nf.Error(), map[string]any{"id": nf.ID})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not found", nil)
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, ce.Message, map[string]any{"task_id": ce.TaskID})
	}
	return newAPIError(http.StatusInternalServerError, fallback, map[string]any{"error": err.Error()})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	ref := "#/components/schemas/ApiError"
	if oas.Components != nil && oas.Components.Schemas != nil {
		if s := oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError"); s != nil && s.Ref != "" {
			ref = s.Ref
		}
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Post} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: &huma.Schema{Ref: ref}},
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
	healthPath := path.Join(basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Post} {
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

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSyncTaskStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "sync-task-status",
		Method:      http.MethodPost,
		Path:        "/sync-task-status",
		Summary:     "Roll a child's status change up to its ancestors",
		Tags:        []string{"tasks"},
	}, func(ctx context.Context, input *SyncTaskStatusInput) (*SyncTaskStatusOutput, error) {
		res, err := e.SyncTaskStatus(ctx, engine.SyncStatusInput{
			TaskID:    input.Body.TaskID,
			OldStatus: input.Body.OldStatus,
			NewStatus: input.Body.NewStatus,
		})
		if err != nil {
			return nil, handleError(err, "Failed to sync task status")
		}
		return &SyncTaskStatusOutput{Body: syncResponse(res)}, nil
	})
}

func registerProcessOverdue(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "process-overdue-tasks",
		Method:      http.MethodPost,
		Path:        "/process-overdue-tasks",
		Summary:     "Notify, escalate and reprioritize overdue tasks",
		Tags:        []string{"jobs"},
	}, func(ctx context.Context, _ *struct{}) (*ProcessOverdueOutput, error) {
		res, err := e.ProcessOverdueTasks(ctx)
		if err != nil {
			return nil, handleError(err, "Failed to process overdue tasks")
		}
		return &ProcessOverdueOutput{Body: overdueResponse(res)}, nil
	})
}

func registerAnalytics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "calculate-task-analytics",
		Method:      http.MethodPost,
		Path:        "/calculate-task-analytics",
		Summary:     "Aggregate task metrics",
		Tags:        []string{"jobs"},
	}, func(ctx context.Context, _ *struct{}) (*AnalyticsOutput, error) {
		res, err := e.CalculateAnalytics(ctx)
		if err != nil {
			return nil, handleError(err, "Failed to calculate analytics")
		}
		return &AnalyticsOutput{Body: AnalyticsResponse{Success: true, Analytics: res}}, nil
	})
}

func registerBulk(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "bulk-task-operations",
		Method:      http.MethodPost,
		Path:        "/bulk-task-operations",
		Summary:     "Apply one change to many tasks",
		Description: "Requires the acting user to hold the superadmin role.",
		Tags:        []string{"tasks"},
	}, func(ctx context.Context, input *BulkTaskOperationsInput) (*BulkTaskOperationsOutput, error) {
		userID := input.Body.UserID
		if userID == "" {
			if p, ok := principalFromContext(ctx); ok {
				userID = p.ActorID
			}
		}
		res, err := e.BulkOperation(ctx, engine.BulkInput{
			Operation:    input.Body.Operation,
			TaskIDs:      input.Body.TaskIDs,
			Status:       input.Body.Status,
			AssignedToID: input.Body.AssignedToID,
			Priority:     input.Body.Priority,
			UserID:       userID,
		})
		if err != nil {
			return nil, handleError(err, "Bulk operation failed")
		}
		return &BulkTaskOperationsOutput{Body: bulkResponse(res)}, nil
	})
}
