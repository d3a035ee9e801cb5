package api

import (
	"net/http"

	"github.com/fulldump/box"
	"github.com/fulldump/box/boxopenapi"

	"github.com/fulldump/annotationstore/api/apidirectories"
	"github.com/fulldump/annotationstore/service"
)

const healthMessage = "STORAGE server alive."

func Build(s service.Servicer, version string, tokens []string) *box.B {

	b := box.NewBox()

	healthCheck := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(healthMessage))
	}
	b.Resource("/health_check").WithActions(box.Get(healthCheck).WithName("healthCheck"))
	b.Resource("/health_check/").WithActions(box.Get(healthCheck).WithName("healthCheck"))

	b.Resource("/release").
		WithActions(box.Get(func() string {
			return version
		}))

	backup, restore := apidirectories.BuildBulk(b.R)
	for _, r := range []*box.R{apidirectories.BuildDirectories(b.R), backup, restore} {
		r.WithInterceptors(
			Authenticate(tokens),
			apidirectories.InjectServicer(s),
		)
	}

	spec := boxopenapi.Spec(b)
	spec.Info.Title = "Annotation store"
	spec.Info.Description = "Stores the page annotations of paginated documents, one zip archive per document."
	b.Resource("/openapi.json").
		WithActions(box.Get(func(r *http.Request) any {

			spec.Servers = []boxopenapi.Server{
				{
					Url: "https://" + r.Host,
				},
				{
					Url: "http://" + r.Host,
				},
			}

			return spec
		}))

	return b
}
