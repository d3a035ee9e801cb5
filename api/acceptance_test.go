package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"

	"github.com/fulldump/annotationstore/database"
	"github.com/fulldump/annotationstore/service"
)

func newTestDatabase(t *testing.T) *database.Database {

	dir := t.TempDir()
	documents := filepath.Join(dir, "documents")
	biff.AssertNil(os.MkdirAll(documents, 0755))
	biff.AssertNil(os.WriteFile(filepath.Join(documents, service.AcceptanceDocument), []byte("%PDF-1.4"), 0666))

	return database.NewDatabase(&database.Config{
		DocumentsDir:   documents,
		AnnotationsDir: filepath.Join(dir, "annotations"),
		LockTimeout:    5 * time.Second,
	})
}

func TestAcceptance(t *testing.T) {

	biff.Alternative("Setup", func(a *biff.A) {

		db := newTestDatabase(t)

		biff.AssertNil(db.Load())
		biff.AssertEqual(db.GetStatus(), database.StatusOperating)

		s := service.NewService(db)

		b := Build(s, "test", []string{"my-token"})
		b.WithInterceptors(
			PrettyErrorInterceptor,
			RecoverFromPanic,
			InterceptorUnavailable(db),
		)

		api := apitest.NewWithHandler(Cors(b))

		service.Acceptance(a, func(method, path string) *apitest.Request {
			return api.Request(method, path).WithHeader("Authorization", "my-token")
		})

	})
}
