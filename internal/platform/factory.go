package platform

import (
	"github.com/aretw0/silt/pkg/model"
)

// New builds a model registry on top of a freshly initialized
// repository. The URI argument is adapter-specific (a directory path
// for 'fs').
func New(uri string, opts ...Option) (*model.Registry, error) {
	repo, err := Init(uri, opts...)
	if err != nil {
		return nil, err
	}

	// Parse options again for the registry-level settings.
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	regOpts := []model.RegistryOption{
		model.WithGlobalOptions(o.globals),
	}
	if o.logger != nil {
		regOpts = append(regOpts, model.WithLogger(o.logger))
	}

	return model.NewRegistry(repo, regOpts...), nil
}
