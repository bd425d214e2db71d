package api

import (
	_ "embed"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

//go:embed openapi.json
var openAPIDocument []byte

// getOpenAPISpec serves the API description. The document is validated once
// on first request so a malformed edit fails loudly instead of shipping a
// broken contract.
func (s *Server) getOpenAPISpec(c echo.Context) error {
	if err := validateOpenAPIDocument(); err != nil {
		log.Error().Err(err).Msg("OpenAPI document failed validation")
		return echo.NewHTTPError(http.StatusInternalServerError, "API description unavailable")
	}
	return c.Blob(http.StatusOK, "application/json", openAPIDocument)
}

var openAPIValidated bool

func validateOpenAPIDocument() error {
	if openAPIValidated {
		return nil
	}
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return err
	}
	if err := doc.Validate(loader.Context); err != nil {
		return err
	}
	openAPIValidated = true
	return nil
}
