package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/transport"
)

// LoadOpenAPIRouter parses and validates an OpenAPI document and builds a
// route matcher for it.
func LoadOpenAPIRouter(doc []byte) (routers.Router, error) {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(doc)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := spec.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return legacy.NewRouter(spec)
}

// ValidateRequests rejects requests whose parameters or body do not match the
// documented operation. Paths the document does not describe pass through.
// Authentication is enforced by the merchant middleware, not here.
func ValidateRequests(router routers.Router, logger *slog.Logger) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(logger)
	opts := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    opts,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				base.HandleServiceError(w, internal.NewBadRequestError(requestErrorMessage(err)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestErrorMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return fmt.Sprintf("invalid parameter %s: %s", reqErr.Parameter.Name, reqErr.Reason)
		}
		if reqErr.RequestBody != nil {
			if reqErr.Err != nil {
				return fmt.Sprintf("invalid request body: %v", reqErr.Err)
			}
			return "invalid request body"
		}
		if reqErr.Reason != "" {
			return reqErr.Reason
		}
	}
	return "invalid request"
}
