package configtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type sinkSettings struct {
	URI    string `yaml:"uri,omitempty"`
	Region string `yaml:"region"`
}

type BaseSettings struct {
	Name string `yaml:"name,omitempty"`
	Port int
}

type rootSettings struct {
	BaseSettings `yaml:",inline"`

	Enabled  bool                     `yaml:"enabled"`
	Sinks    map[string]*sinkSettings `yaml:"sinks,omitempty"`
	Fallback []sinkSettings           `yaml:"fallback,omitempty"`
	Required string                   `yaml:"required" config:"allowempty"`
	Ignored  string                   `yaml:"-"`
	internal string
}

func TestCheckYAMLTags(t *testing.T) {
	err := CheckYAMLTags(rootSettings{})
	require.Error(t, err)

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	// inline fields are reported at the parent level
	require.Contains(t, errs[0].Error(), "port (configtest.BaseSettings.Port)")
	require.Contains(t, errs[1].Error(), "sinks.region")

	require.NoError(t, CheckYAMLTags("s3://bucket"))
	require.NoError(t, CheckYAMLTags(nil))
}
