package core

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewService_DefaultConfig(t *testing.T) {
	svc, err := NewService(Config{}, WithIngestStore(newMemoryIngestStore()), WithLinker(fieldLinker{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "ingest" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.Webhook.ProviderID != "brightdata" {
		t.Fatalf("expected default provider, got %q", cfg.Webhook.ProviderID)
	}
	if len(cfg.Linker.Correlation) != 2 || cfg.Linker.Correlation[0] != "job_id" {
		t.Fatalf("expected default correlation expressions, got %v", cfg.Linker.Correlation)
	}
	if svc.Logger() == nil {
		t.Fatalf("expected default logger")
	}
}

func TestNewService_RequiresStoreAndLinker(t *testing.T) {
	if _, err := NewService(Config{}, WithLinker(fieldLinker{})); err == nil {
		t.Fatalf("expected error without ingest store")
	}
	if _, err := NewService(Config{}, WithIngestStore(newMemoryIngestStore())); err == nil {
		t.Fatalf("expected error without linker")
	}
}

func TestNewService_RuntimeOverridesLoadedConfig(t *testing.T) {
	loader := StaticConfigLoader(map[string]any{
		"service_name": "from-file",
		"webhook": map[string]any{
			"secret":     "file-secret",
			"rate_burst": 7,
		},
		"store": map[string]any{
			"dialect": "sqlite",
		},
	})
	svc, err := NewService(Config{ServiceName: "from-runtime"},
		WithIngestStore(newMemoryIngestStore()),
		WithLinker(fieldLinker{}),
		WithConfigProvider(NewCfgxConfigProvider(loader)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime service name to win, got %q", cfg.ServiceName)
	}
	if cfg.Webhook.Secret != "file-secret" {
		t.Fatalf("expected file secret, got %q", cfg.Webhook.Secret)
	}
	if cfg.Webhook.RateBurst != 7 {
		t.Fatalf("expected file rate burst, got %d", cfg.Webhook.RateBurst)
	}
	if cfg.Store.Dialect != "sqlite" {
		t.Fatalf("expected file dialect, got %q", cfg.Store.Dialect)
	}
	if cfg.Webhook.SignatureHeader != "X-Brightdata-Signature" {
		t.Fatalf("expected default signature header to survive, got %q", cfg.Webhook.SignatureHeader)
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	resolved := DefaultConfig()
	resolved.ServiceName = "resolved"

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithIngestStore(newMemoryIngestStore()),
		WithLinker(fieldLinker{}),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
		WithErrorMapper(customMapper),
		WithConfigProvider(&fixedConfigProvider{cfg: DefaultConfig()}),
		WithOptionsResolver(&fixedOptionsResolver{cfg: resolved}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Config().ServiceName != "resolved" {
		t.Fatalf("expected resolver output, got %q", svc.Config().ServiceName)
	}
	_, err = svc.GetJob(context.Background(), "job_1")
	if err == nil {
		t.Fatalf("expected error without job store")
	}
}

func TestConfigValidate_RejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Dialect = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid dialect error")
	}

	cfg = DefaultConfig()
	cfg.Outbox.InitialBackoff = "soon"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid duration error")
	}

	cfg = DefaultConfig()
	cfg.Webhook.SignatureEncoding = "rot13"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid signature encoding error")
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
}
