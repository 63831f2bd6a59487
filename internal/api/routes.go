package api

import (
	"net/http"

	"github.com/JaimeStill/reconify/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, runtime *Runtime) {
	routes.Register(
		mux,
		domain.Documents.Handler().Routes(),
		domain.Uploads.Handler().Routes(),
		newStorageHandler(runtime.Storage, runtime.Logger).routes(),
	)
}
