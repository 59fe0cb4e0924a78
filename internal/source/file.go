package source

import (
	"os"

	"github.com/joseph-ayodele/doctext/internal/extract"
)

// ReadFile reads a local path into a LocalFile input. Read failures are IO errors.
func ReadFile(path, declaredMime string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Input{}, extract.NewError(extract.KindIO, "read "+path, err)
	}
	return LocalFile(data, declaredMime), nil
}
