// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/crucible-dev/crucible/internal/logging"
)

// Config is the full operator configuration, loaded from struct defaults,
// an optional YAML file and CRUCIBLE__ environment variables.
type Config struct {
	// Workers bounds the number of concurrent reconciles per controller.
	Workers int `koanf:"workers"`

	// OperatorNamespace is the namespace the operator itself runs in. Bootstrap
	// objects (VDI config, provisioning manifests) are read from here.
	OperatorNamespace string `koanf:"operatorNamespace"`

	Logging logging.Config `koanf:"logging"`

	CRD         CRDConfig         `koanf:"crd"`
	Identity    IdentityConfig    `koanf:"identity"`
	GitHost     GitHostConfig     `koanf:"gitHost"`
	Storage     StorageConfig     `koanf:"storage"`
	Cluster     ClusterConfig     `koanf:"cluster"`
	Provisioner ProvisionerConfig `koanf:"provisioner"`
}

// CRD installation modes.
const (
	// CRDModeManage makes the operator apply the generated CRDs at startup.
	CRDModeManage = "manage"
	// CRDModeExternal expects CRDs to be installed out of band, e.g. by the
	// crdgen CLI.
	CRDModeExternal = "external"
)

// CRDConfig controls how the generated CustomResourceDefinitions reach the cluster.
type CRDConfig struct {
	// Mode is CRDModeManage or CRDModeExternal.
	Mode string `koanf:"mode"`
	// Force reapplies CRDs even when the generated schema hash is unchanged.
	Force bool `koanf:"force"`
}

// IdentityConfig holds the connection settings for the OIDC identity provider
// admin API. The password is expected to arrive through the environment
// (CRUCIBLE__IDENTITY__PASSWORD) from a mounted Secret.
type IdentityConfig struct {
	Enabled  bool          `koanf:"enabled"`
	URL      string        `koanf:"url"`
	Realm    string        `koanf:"realm"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	Timeout  time.Duration `koanf:"timeout"`
	// InsecureSkipVerify disables TLS certificate verification. Development only.
	InsecureSkipVerify bool `koanf:"insecureSkipVerify"`
}

// GitHostConfig holds the connection settings for the git hosting service
// admin API.
type GitHostConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	// Token is a personal access token with admin scope. When empty, Username
	// and Password are used with basic auth.
	Token              string        `koanf:"token"`
	Username           string        `koanf:"username"`
	Password           string        `koanf:"password"`
	Timeout            time.Duration `koanf:"timeout"`
	ReadyProbeInterval time.Duration `koanf:"readyProbeInterval"`
	ReadyProbeTimeout  time.Duration `koanf:"readyProbeTimeout"`
	InsecureSkipVerify bool          `koanf:"insecureSkipVerify"`
}

// StorageConfig supplies the operator-default layer of the storage resolution
// chain plus the size ceiling applied to every resolved volume.
type StorageConfig struct {
	// DefaultSize is used when neither the instance nor the project configures
	// a size. Empty means "no default": provisioning is skipped.
	DefaultSize string `koanf:"defaultSize"`
	// MaxSize caps every resolved size. Empty means no ceiling.
	MaxSize      string `koanf:"maxSize"`
	DefaultClass string `koanf:"defaultClass"`
}

// ClusterConfig covers the cluster-resource defaults applied to every project
// namespace.
type ClusterConfig struct {
	// InfraNamespaces is the allow-list of infrastructure namespaces that
	// project isolation policies keep reachable (DNS, hub, backend, operator,
	// identity provider).
	InfraNamespaces []string `koanf:"infraNamespaces"`
	// ClusterCIDRs are excluded from the world-egress rule so that "open
	// internet" never includes in-cluster addresses.
	ClusterCIDRs []string `koanf:"clusterCIDRs"`

	Hub HubConfig `koanf:"hub"`

	// BootstrapConfigMap is the name of the ConfigMap copied from the operator
	// namespace into a project namespace the first time a VDI starts there.
	BootstrapConfigMap string `koanf:"bootstrapConfigMap"`

	Quota      QuotaDefaults      `koanf:"quota"`
	LimitRange LimitRangeDefaults `koanf:"limitRange"`
}

// HubConfig identifies the workspace hub whose spawner service account is
// granted access to every project namespace.
type HubConfig struct {
	Namespace      string `koanf:"namespace"`
	ServiceAccount string `koanf:"serviceAccount"`
	ClusterRole    string `koanf:"clusterRole"`
}

// QuotaDefaults are the ResourceQuota values for project namespaces without an
// explicit override.
type QuotaDefaults struct {
	RequestsCPU    string `koanf:"requestsCpu"`
	RequestsMemory string `koanf:"requestsMemory"`
	LimitsCPU      string `koanf:"limitsCpu"`
	LimitsMemory   string `koanf:"limitsMemory"`
	Pods           string `koanf:"pods"`
	Services       string `koanf:"services"`
	PVCs           string `koanf:"pvcs"`
}

// LimitRangeDefaults are the per-container defaults for project namespaces.
type LimitRangeDefaults struct {
	DefaultCPU           string `koanf:"defaultCpu"`
	DefaultMemory        string `koanf:"defaultMemory"`
	DefaultRequestCPU    string `koanf:"defaultRequestCpu"`
	DefaultRequestMemory string `koanf:"defaultRequestMemory"`
}

// ProvisionerConfig controls the ConfigMap-driven project provisioning plugin.
type ProvisionerConfig struct {
	Enabled bool `koanf:"enabled"`
	// ConfigMapName is the manifest ConfigMap watched in the operator namespace.
	ConfigMapName string `koanf:"configMapName"`
}

// Default returns the built-in configuration, the lowest-priority layer of
// the loader.
func Default() Config {
	return Config{
		Workers:           4,
		OperatorNamespace: "crucible-system",
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		CRD: CRDConfig{
			Mode: CRDModeManage,
		},
		Identity: IdentityConfig{
			Enabled: true,
			Realm:   "crucible",
			Timeout: 10 * time.Second,
		},
		GitHost: GitHostConfig{
			Timeout:            10 * time.Second,
			ReadyProbeInterval: 5 * time.Second,
			ReadyProbeTimeout:  300 * time.Second,
		},
		Storage: StorageConfig{
			DefaultSize: "10Gi",
			MaxSize:     "100Gi",
		},
		Cluster: ClusterConfig{
			InfraNamespaces:    []string{"kube-system", "workspace-hub", "crucible-system"},
			ClusterCIDRs:       []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
			BootstrapConfigMap: "vdi-bootstrap",
			Hub: HubConfig{
				Namespace:      "workspace-hub",
				ServiceAccount: "hub",
				ClusterRole:    "crucible-workspace-spawner",
			},
			Quota: QuotaDefaults{
				RequestsCPU:    "4",
				RequestsMemory: "8Gi",
				LimitsCPU:      "8",
				LimitsMemory:   "16Gi",
				Pods:           "10",
				Services:       "10",
				PVCs:           "10",
			},
			LimitRange: LimitRangeDefaults{
				DefaultCPU:           "1",
				DefaultMemory:        "2Gi",
				DefaultRequestCPU:    "250m",
				DefaultRequestMemory: "512Mi",
			},
		},
		Provisioner: ProvisionerConfig{
			ConfigMapName: "crucible-projects",
		},
	}
}

// Validate implements Validator.
func (c *Config) Validate() error {
	var errs ValidationErrors

	root := NewPath("config")

	if err := MustBeInRange(root.Child("workers"), c.Workers, 1, 64); err != nil {
		errs = append(errs, err)
	}
	if err := MustNotBeEmpty(root.Child("operatorNamespace"), c.OperatorNamespace); err != nil {
		errs = append(errs, err)
	}
	if err := MustBeOneOf(root.Child("crd").Child("mode"), c.CRD.Mode, []string{CRDModeManage, CRDModeExternal}); err != nil {
		errs = append(errs, err)
	}

	if c.Identity.Enabled {
		idPath := root.Child("identity")
		if err := MustNotBeEmpty(idPath.Child("url"), c.Identity.URL); err != nil {
			errs = append(errs, err)
		}
		if err := MustNotBeEmpty(idPath.Child("realm"), c.Identity.Realm); err != nil {
			errs = append(errs, err)
		}
		if err := MustNotBeEmpty(idPath.Child("username"), c.Identity.Username); err != nil {
			errs = append(errs, err)
		}
		if err := MustBeGreaterThan(idPath.Child("timeout"), c.Identity.Timeout, 0); err != nil {
			errs = append(errs, err)
		}
	}

	if c.GitHost.Enabled {
		ghPath := root.Child("gitHost")
		if err := MustNotBeEmpty(ghPath.Child("url"), c.GitHost.URL); err != nil {
			errs = append(errs, err)
		}
		if c.GitHost.Token == "" && c.GitHost.Username == "" {
			errs = append(errs, Invalid(ghPath, "either token or username/password must be set"))
		}
		if err := MustBeGreaterThan(ghPath.Child("readyProbeInterval"), c.GitHost.ReadyProbeInterval, 0); err != nil {
			errs = append(errs, err)
		}
	}

	stPath := root.Child("storage")
	if err := mustParseQuantity(stPath.Child("defaultSize"), c.Storage.DefaultSize); err != nil {
		errs = append(errs, err)
	}
	if err := mustParseQuantity(stPath.Child("maxSize"), c.Storage.MaxSize); err != nil {
		errs = append(errs, err)
	}

	return errs.OrNil()
}

// mustParseQuantity validates an optional Kubernetes quantity string.
func mustParseQuantity(path *Path, value string) *FieldError {
	if value == "" {
		return nil
	}
	if _, err := resource.ParseQuantity(value); err != nil {
		return Invalid(path, "must be a valid quantity (e.g. 10Gi)")
	}
	return nil
}
