package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/catalpa-io/mnemo/pkg/adapter"
	"github.com/catalpa-io/mnemo/pkg/policy"
	"github.com/catalpa-io/mnemo/pkg/repository"
	"github.com/catalpa-io/mnemo/pkg/usecase/memory"
	"github.com/catalpa-io/mnemo/pkg/utils/logging"
)

// config holds configuration values
type config struct {
	configFile string

	// Index
	gatewayURL string
	rootCID    string

	// Blob store backend
	store       string
	storachaURL string
	agentKey    string
	proof       string
	bucket      string
	localDir    string

	// Embedder
	geminiProject  string
	geminiLocation string
	embeddingDims  int64

	// Policy
	policyDir string

	// Logging
	logLevel  string
	logFormat string
}

// fileConfig is the optional YAML config file, merged beneath flags and env.
type fileConfig struct {
	GatewayURL     string `yaml:"gateway_url"`
	RootCID        string `yaml:"root_cid"`
	Store          string `yaml:"store"`
	StorachaURL    string `yaml:"storacha_url"`
	AgentKey       string `yaml:"agent_key"`
	Proof          string `yaml:"proof"`
	Bucket         string `yaml:"bucket"`
	LocalDir       string `yaml:"local_dir"`
	GeminiProject  string `yaml:"gemini_project"`
	GeminiLocation string `yaml:"gemini_location"`
	PolicyDir      string `yaml:"policy_dir"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML config file",
			Sources:     cli.EnvVars("MNEMO_CONFIG"),
			Destination: &cfg.configFile,
		},
		&cli.StringFlag{
			Name:        "gateway-url",
			Usage:       "Content gateway base URL",
			Sources:     cli.EnvVars("MNEMO_GATEWAY_URL"),
			Destination: &cfg.gatewayURL,
		},
		&cli.StringFlag{
			Name:        "root-cid",
			Usage:       "Starting root index CID (e.g. another party's published history)",
			Sources:     cli.EnvVars("MNEMO_ROOT_CID"),
			Destination: &cfg.rootCID,
		},
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Blob store backend: storacha, gcs or local",
			Value:       "storacha",
			Sources:     cli.EnvVars("MNEMO_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "storacha-url",
			Usage:       "Storage bridge endpoint",
			Sources:     cli.EnvVars("MNEMO_STORACHA_URL"),
			Destination: &cfg.storachaURL,
		},
		&cli.StringFlag{
			Name:        "agent-key",
			Usage:       "Agent signing key for storage writes",
			Sources:     cli.EnvVars("MNEMO_AGENT_KEY"),
			Destination: &cfg.agentKey,
		},
		&cli.StringFlag{
			Name:        "proof",
			Usage:       "Delegation proof authorizing storage writes",
			Sources:     cli.EnvVars("MNEMO_DELEGATION_PROOF"),
			Destination: &cfg.proof,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket (store=gcs)",
			Sources:     cli.EnvVars("MNEMO_GCS_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "local-dir",
			Usage:       "Local store directory (store=local)",
			Sources:     cli.EnvVars("MNEMO_LOCAL_DIR"),
			Destination: &cfg.localDir,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies gating writes",
			Sources:     cli.EnvVars("MNEMO_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("MNEMO_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("MNEMO_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// embedFlags returns flags for embedding-related configuration
func embedFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini embeddings",
			Sources:     cli.EnvVars("MNEMO_GEMINI_PROJECT"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("MNEMO_GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.IntFlag{
			Name:        "embedding-dimensions",
			Usage:       "Output dimensionality of embedding vectors",
			Value:       128,
			Sources:     cli.EnvVars("MNEMO_EMBEDDING_DIMENSIONS"),
			Destination: &cfg.embeddingDims,
		},
	}
}

// setup merges the config file, builds the logger and attaches it to the
// context. Call once at the start of every command action.
func (cfg *config) setup(ctx context.Context, c *cli.Command) (context.Context, error) {
	if err := cfg.mergeFile(c.IsSet); err != nil {
		return nil, err
	}

	logger := logging.New(cfg.logLevel, cfg.logFormat, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// mergeFile merges the YAML config file beneath flags and env: a value
// explicitly given on the command line or via environment always wins; file
// values fill the gaps. Flags with defaults need isSet to tell an explicit
// value apart from the default.
func (cfg *config) mergeFile(isSet func(name string) bool) error {
	if cfg.configFile == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.configFile)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configFile))
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configFile))
	}

	merge := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	merge(&cfg.gatewayURL, file.GatewayURL)
	merge(&cfg.rootCID, file.RootCID)
	merge(&cfg.storachaURL, file.StorachaURL)
	merge(&cfg.agentKey, file.AgentKey)
	merge(&cfg.proof, file.Proof)
	merge(&cfg.bucket, file.Bucket)
	merge(&cfg.localDir, file.LocalDir)
	merge(&cfg.geminiProject, file.GeminiProject)
	merge(&cfg.geminiLocation, file.GeminiLocation)
	merge(&cfg.policyDir, file.PolicyDir)
	if file.Store != "" && !isSet("store") {
		cfg.store = file.Store
	}
	if file.LogLevel != "" && !isSet("log-level") {
		cfg.logLevel = file.LogLevel
	}
	if file.LogFormat != "" && !isSet("log-format") {
		cfg.logFormat = file.LogFormat
	}
	return nil
}

// newStore creates the blob store and gateway for the configured backend.
// Configuration errors are fatal here, before any write is attempted.
func (cfg *config) newStore(ctx context.Context) (adapter.BlobStore, adapter.Gateway, error) {
	switch cfg.store {
	case "local":
		if cfg.localDir == "" {
			return nil, nil, goerr.New("local-dir is required for the local store")
		}
		store, err := adapter.NewLocalStore(cfg.localDir)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	case "gcs":
		store, err := adapter.NewGCSStore(ctx, cfg.bucket)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	case "storacha":
		store, err := adapter.NewStoracha(cfg.storachaURL, cfg.agentKey, cfg.proof)
		if err != nil {
			return nil, nil, err
		}
		return store, adapter.NewGateway(cfg.gatewayURL), nil

	default:
		return nil, nil, goerr.New("unknown store backend", goerr.V("store", cfg.store))
	}
}

// newIndex creates the repository index for the configured identity
func (cfg *config) newIndex(ctx context.Context) (*repository.Index, error) {
	store, gateway, err := cfg.newStore(ctx)
	if err != nil {
		return nil, err
	}

	var opts []repository.Option
	if cfg.rootCID != "" {
		opts = append(opts, repository.WithRootCID(cfg.rootCID))
	}
	return repository.New(store, gateway, opts...), nil
}

// newEmbedder creates the Gemini embedder, or nil when not configured
func (cfg *config) newEmbedder(ctx context.Context) (adapter.Embedder, error) {
	if cfg.geminiProject == "" {
		return nil, nil
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithDimensions(int32(cfg.embeddingDims)))
}

// newUseCase assembles the memory usecase with policy gate and embedder
func (cfg *config) newUseCase(ctx context.Context) (*memory.UseCase, error) {
	repo, err := cfg.newIndex(ctx)
	if err != nil {
		return nil, err
	}

	gate, err := policy.Load(ctx, cfg.policyDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load write policy")
	}

	opts := []memory.Option{memory.WithPolicy(gate)}

	embedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	if embedder != nil {
		opts = append(opts, memory.WithEmbedder(embedder))
	}

	return memory.New(repo, opts...), nil
}
