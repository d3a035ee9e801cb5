package apidirectories

import (
	"github.com/fulldump/box"
)

// BuildDirectories mounts the document routes below r. Literal resources are
// declared before `{view}` so they win the match.
func BuildDirectories(r *box.R) *box.R {

	directories := r.Resource("/directories").
		WithActions(
			box.Get(listDirectories),
		)
	r.Resource("/directories/").
		WithActions(
			box.Get(listDirectories),
		)

	r.Resource("/directories/{document}").
		WithActions(
			box.Get(getDirectory),
		)

	r.Resource("/directories/{document}/download_directory").
		WithActions(
			box.Get(downloadDirectory),
		)

	r.Resource("/directories/{document}/replace_directory").
		WithActions(
			box.Put(replaceDirectory),
		)

	r.Resource("/directories/{document}/{view}/annotation").
		WithActions(
			box.Get(getAnnotation),
			box.Put(saveAnnotation),
		)

	r.Resource("/directories/{document}/{view}/image").
		WithActions(
			box.Get(getImage),
		)

	return directories
}

// BuildBulk mounts whole store backup and restore below r.
func BuildBulk(r *box.R) (backup, restore *box.R) {

	backup = r.Resource("/backup").
		WithActions(
			box.Get(backupAll),
		)

	restore = r.Resource("/restore").
		WithActions(
			box.Put(restoreAll),
		)

	return
}
