package secrets

import "github.com/Strob0t/LeaseForge/internal/config"

// ConfigLoader re-reads the full configuration hierarchy from yamlPath and
// exposes its secret fields. Validation runs on every load, so a rotated
// JWT secret that is too short is rejected and the old one kept.
func ConfigLoader(yamlPath string) Loader {
	return func() (map[string]string, error) {
		cfg, err := config.LoadFrom(yamlPath)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			KeyJWTSecret: cfg.Auth.JWTSecret,
		}, nil
	}
}
