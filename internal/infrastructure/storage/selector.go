// Package storage selects and opens the storage backend of every port.
package storage

import (
	"fmt"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/config"
)

// Family names a storage backend
type Family string

// Storage families
const (
	Postgres Family = "postgres"
	Redis    Family = "redis"
	SQLite   Family = "sqlite"
	Memory   Family = "memory"
)

// FallbackFamily is used when no detector matches
const FallbackFamily = Postgres

// Families lists the known families
var Families = []Family{Postgres, Redis, SQLite, Memory}

// ParseFamily validates a family name
func ParseFamily(name string) (Family, error) {
	for _, f := range Families {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown storage family %q", name)
}

// Port names one persistence need of the authorization core
type Port string

// Storage ports. Token ports are named after their token kind.
const (
	AccessTokenPort       = Port(domain.AccessTokenKind)
	RefreshTokenPort      = Port(domain.RefreshTokenKind)
	AuthorizationCodePort = Port(domain.AuthorizationCodeKind)
	ClientPort            Port = "client"
)

// Ports lists every port in binding order
var Ports = []Port{AccessTokenPort, RefreshTokenPort, AuthorizationCodePort, ClientPort}

// Detector decides a family from configuration alone
type Detector func(cfg *config.Config) (Family, bool)

// Detectors are evaluated in order; the first match wins
var Detectors = []Detector{
	explicitFamily,
	postgresConfigured,
	redisConfigured,
	sqliteConfigured,
}

func explicitFamily(cfg *config.Config) (Family, bool) {
	if cfg.OAuth2.Storage == "" {
		return "", false
	}
	return Family(cfg.OAuth2.Storage), true
}

func postgresConfigured(cfg *config.Config) (Family, bool) {
	return Postgres, cfg.DatabaseURL != "" || cfg.DBHost != ""
}

func redisConfigured(cfg *config.Config) (Family, bool) {
	return Redis, cfg.Redis.Address != ""
}

func sqliteConfigured(cfg *config.Config) (Family, bool) {
	return SQLite, cfg.SQLitePath != ""
}

// Plan binds every port to a family
type Plan struct {
	// Default is the detected family
	Default Family
	Ports   map[Port]Family
}

// Family returns the family bound to port
func (p Plan) Family(port Port) Family {
	if f, ok := p.Ports[port]; ok {
		return f
	}
	return p.Default
}

// Families returns the distinct families the plan needs, in port order
func (p Plan) Families() []Family {
	seen := make(map[Family]bool)
	var families []Family
	for _, port := range Ports {
		f := p.Family(port)
		if !seen[f] {
			seen[f] = true
			families = append(families, f)
		}
	}
	return families
}

// Resolve computes the plan: per-port override, then detected family, then fallback
func Resolve(cfg *config.Config) (Plan, error) {
	return ResolveWith(cfg, Detectors)
}

// ResolveWith is Resolve with a custom detector list
func ResolveWith(cfg *config.Config, detectors []Detector) (Plan, error) {
	family := FallbackFamily
	for _, detect := range detectors {
		if f, ok := detect(cfg); ok {
			family = f
			break
		}
	}
	if _, err := ParseFamily(string(family)); err != nil {
		return Plan{}, fmt.Errorf("OAUTH2_STORAGE: %w", err)
	}

	plan := Plan{Default: family, Ports: make(map[Port]Family, len(Ports))}
	overrides := map[Port]string{
		AccessTokenPort:       cfg.OAuth2.AccessTokenStorage,
		RefreshTokenPort:      cfg.OAuth2.RefreshTokenStorage,
		AuthorizationCodePort: cfg.OAuth2.AuthorizationCodeStorage,
		ClientPort:            cfg.OAuth2.ClientStorage,
	}
	for _, port := range Ports {
		name := overrides[port]
		if name == "" {
			plan.Ports[port] = family
			continue
		}
		f, err := ParseFamily(name)
		if err != nil {
			return Plan{}, fmt.Errorf("%s storage override: %w", port, err)
		}
		plan.Ports[port] = f
	}

	return plan, nil
}
