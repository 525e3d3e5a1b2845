// Command seedcollections bootstraps Qdrant collections from a YAML
// manifest for local and development setups. Production deployments
// provision collections out of band; this is a convenience helper, not
// a dependency of the ingestion driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"vectoringest/internal/config"
	"vectoringest/internal/obslog"
	"vectoringest/internal/vectorstore"
)

// CollectionManifest describes one collection to ensure exists.
type CollectionManifest struct {
	Name      string `yaml:"name"`
	Dimension int    `yaml:"dimension"`
	Distance  string `yaml:"distance"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("seedcollections failed")
	}
}

func run() error {
	manifestPath := flag.String("manifest", "collections.yaml", "path to a YAML list of collections to ensure")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	obslog.Init(cfg.LogPath, cfg.LogLevel)

	raw, err := os.ReadFile(*manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest %q: %w", *manifestPath, err)
	}
	var manifests []CollectionManifest
	if err := yaml.Unmarshal(raw, &manifests); err != nil {
		return fmt.Errorf("parse manifest %q: %w", *manifestPath, err)
	}

	ctx := context.Background()
	client, err := vectorstore.NewQdrantClient(cfg.Qdrant)
	if err != nil {
		return fmt.Errorf("build vector store client: %w", err)
	}
	defer client.Close()

	for _, m := range manifests {
		if err := client.EnsureCollection(ctx, m.Name, m.Dimension, vectorstore.Distance(m.Distance)); err != nil {
			return fmt.Errorf("ensure collection %q: %w", m.Name, err)
		}
		log.Info().Str("collection", m.Name).Int("dimension", m.Dimension).Str("distance", m.Distance).Msg("collection ensured")
	}
	return nil
}
