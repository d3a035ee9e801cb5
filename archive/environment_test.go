package archive

import (
	"os"
)

func Environment(f func(root string)) {
	root, err := os.MkdirTemp("", "annotationstore-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(root)

	f(root)
}
