package definition

import (
	"embed"
	"io/fs"

	"github.com/goliatone/go-formwizard/pkg/model"
)

//go:embed defaults/*.yaml
var embeddedDefaults embed.FS

// EmbeddedFS returns the bundled product definitions (KYC onboarding,
// personal loan and credit card).
func EmbeddedFS() fs.FS {
	sub, err := fs.Sub(embeddedDefaults, "defaults")
	if err != nil {
		return embeddedDefaults
	}
	return sub
}

// Defaults loads the bundled definitions.
func Defaults(decorators ...model.Decorator) (*Registry, error) {
	return LoadFS(EmbeddedFS(), decorators...)
}
