package swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/frahmantamala/paygate/api"
)

const SpecPath = "/openapi.yml"

// Handler serves the Swagger UI pointed at SpecPath.
func Handler() http.Handler {
	return httpSwagger.Handler(httpSwagger.URL(SpecPath))
}

// SpecHandler serves the embedded OpenAPI document.
func SpecHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(api.OpenAPI)
}
