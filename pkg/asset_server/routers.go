package asset_server

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"

	"github.com/vfx-pipeline/asset-server/pkg/asset_server/auth"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/handler"
	problem "github.com/vfx-pipeline/asset-server/pkg/asset_server/helpers/problem"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/middleware"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/models"
)

var notFoundResponse = fizz.Response(
	"404",
	"Not Found",
	nil,
	nil,
	nil,
)

var errorHookOnce sync.Once

// RegisterErrorHook installs the tonic hook translating binding failures and
// problem.APIError values to their JSON bodies. Safe to call repeatedly.
func RegisterErrorHook() {
	errorHookOnce.Do(func() {
		tonic.SetErrorHook(func(c *gin.Context, err error) (int, interface{}) {
			var be tonic.BindError
			if errors.As(err, &be) || isValidationErr(err) {
				invalids := invalidParamsFromBinding(err, models.UpsertAssetInput{})
				apiErr := problem.NewBadRequest("body", "invalid input", invalids...)
				return apiErr.Status, apiErr
			}

			if apiErr, ok := err.(problem.APIError); ok {
				return apiErr.Status, apiErr
			}

			internal := problem.NewInternalServerError(err.Error())
			return internal.Status, internal
		})
	})
}

func isValidationErr(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

func invalidParamsFromBinding(err error, sample any) []problem.InvalidParam {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []problem.InvalidParam{{Name: "body", Reason: err.Error()}}
	}

	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	out := make([]problem.InvalidParam, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if tag := f.Tag.Get("json"); tag != "" && tag != "-" {
				name = strings.Split(tag, ",")[0]
			}
		}
		out = append(out, problem.InvalidParam{Name: name, Reason: fe.Error()})
	}
	return out
}

// NewRouter wires the REST surface under /api. Role gates follow the
// endpoint table: read endpoints need viewer, mutations editor, hard deletes
// admin; stats, download and package are open.
func NewRouter(serverVersion string, controller *handler.AssetsAPIController, ks *auth.Keystore, jwtSecret string) *fizz.Fizz {
	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(APIVersionMiddleware(serverVersion))
	f := fizz.NewFromEngine(g)

	info := &openapi.Info{
		Title:       "Web Asset Server API",
		Description: "Asset catalogue for published pipeline deliverables",
		Version:     serverVersion,
	}

	root := f.Group("/api", "Asset API", "Asset catalogue routes")

	// open endpoints
	root.GET("/stats",
		[]fizz.OperationOption{fizz.Summary("Liveness and version")},
		tonic.Handler(controller.Stats, 200),
	)
	root.GET("/assets/:id/download", []fizz.OperationOption{
		fizz.Summary("Stream one stored file"),
		notFoundResponse,
	}, controller.Download)
	root.GET("/assets/:id/package", []fizz.OperationOption{
		fizz.Summary("Zip one version's files plus metadata.json"),
		notFoundResponse,
	}, controller.Package)

	// read endpoints
	read := root.Group("", "Read", "Catalogue reads", middleware.RequireRole(ks, jwtSecret, auth.RoleViewer))
	read.GET("/assets",
		[]fizz.OperationOption{fizz.Summary("List assets")},
		tonic.Handler(controller.ListAssets, 200),
	)
	read.GET("/assets/:id",
		[]fizz.OperationOption{fizz.Summary("Full asset detail"), notFoundResponse},
		tonic.Handler(controller.RetrieveAsset, 200),
	)
	read.GET("/changes",
		[]fizz.OperationOption{fizz.Summary("Change-log tail for polling consumers")},
		tonic.Handler(controller.ListChanges, 200),
	)
	read.POST("/assets/:id/comment",
		[]fizz.OperationOption{fizz.Summary("Append a comment")},
		tonic.Handler(controller.AddComment, 200),
	)

	// write endpoints
	write := root.Group("", "Write", "Catalogue mutations", middleware.RequireRole(ks, jwtSecret, auth.RoleEditor))
	write.POST("/assets",
		[]fizz.OperationOption{fizz.Summary("Upsert asset and version")},
		tonic.Handler(controller.UpsertAsset, 200),
	)
	write.POST("/upload", []fizz.OperationOption{
		fizz.Summary("Multipart file upload"),
	}, controller.Upload)
	write.PATCH("/assets/:id",
		[]fizz.OperationOption{fizz.Summary("Partial update (whitelisted fields)"), notFoundResponse},
		tonic.Handler(controller.UpdateAsset, 200),
	)
	write.POST("/assets/:id/status",
		[]fizz.OperationOption{fizz.Summary("Set lifecycle status")},
		tonic.Handler(controller.SetStatus, 200),
	)
	write.POST("/assets/:id/versions/:version/archive",
		[]fizz.OperationOption{fizz.Summary("Soft-delete one version")},
		tonic.Handler(controller.ArchiveVersion, 200),
	)

	// destructive endpoints
	admin := root.Group("", "Admin", "Hard deletes", middleware.RequireRole(ks, jwtSecret, auth.RoleAdmin))
	admin.DELETE("/assets/:id/versions/:version",
		[]fizz.OperationOption{fizz.Summary("Hard delete one version")},
		tonic.Handler(controller.DeleteVersion, 200),
	)
	admin.DELETE("/assets/:id",
		[]fizz.OperationOption{fizz.Summary("Hard delete an asset")},
		tonic.Handler(controller.DeleteAsset, 200),
	)

	f.GET("/api/openapi.json", []fizz.OperationOption{}, f.OpenAPI(info, "json"))

	return f
}

type apiVersionWriter struct {
	gin.ResponseWriter
	version string
}

func (w *apiVersionWriter) WriteHeader(code int) {
	if code >= 200 && code < 300 {
		w.Header().Set("API-Version", w.version)
	}
	w.ResponseWriter.WriteHeader(code)
}

// APIVersionMiddleware stamps successful responses with the server version.
func APIVersionMiddleware(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &apiVersionWriter{c.Writer, version}
		c.Next()
	}
}
