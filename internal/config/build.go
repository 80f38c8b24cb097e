package config

// Package identity.
const (
	Name    = "sculptor"
	Version = "0.0.8"
)

// Feature is an optional capability bundle. Each lives in its own package,
// so importing the package is what enables the feature.
type Feature struct {
	Name    string
	Package string
	Deps    []string // third-party modules the package pulls in
}

// Features lists the optional capabilities in declaration order.
var Features = []Feature{
	{
		Name:    "project_info",
		Package: "sculptor/internal/projectdirs",
		Deps:    []string{"github.com/adrg/xdg"},
	},
	{
		Name:    "file_io",
		Package: "sculptor/internal/fileio",
		Deps: []string{
			"github.com/pelletier/go-toml/v2",
			"gopkg.in/yaml.v3",
			"github.com/google/go-cmp",
		},
	},
	{
		Name:    "sha_snap",
		Package: "sculptor/internal/shasnap",
		Deps:    []string{"golang.org/x/sync"},
	},
}

// FeatureByName looks a feature up by name.
func FeatureByName(name string) (Feature, bool) {
	for _, f := range Features {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}
