// Package app assembles the import pipeline from configuration for the
// gateway and the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/backend"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/config"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/db"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/hydrate"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/importer"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/parse"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/storage"
	syncx "github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/sync"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/taxonomy"
)

type Pipeline struct {
	Importer *importer.Importer
	DB       *sql.DB
	Blobs    *storage.FSStore // nil with the remote backend
	Events   *syncx.EventRepo
}

func (p *Pipeline) Close() error {
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}

// Build opens the local database (always used for the event log) and wires
// catalog, repository and image store for cfg.Backend.
func Build(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Pipeline, error) {
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	p := &Pipeline{DB: dbh, Events: syncx.NewEventRepo(dbh)}

	var (
		catalog taxonomy.Catalog
		repo    question.Repository
		images  hydrate.Uploader
	)
	switch cfg.Backend {
	case config.BackendRemote:
		if cfg.BackendURL == "" {
			dbh.Close()
			return nil, fmt.Errorf("BACKEND_URL required for the remote backend")
		}
		c := backend.New(backend.Config{
			BaseURL:      cfg.BackendURL,
			TokenURL:     cfg.BackendTokenURL,
			ClientID:     cfg.BackendClientID,
			ClientSecret: cfg.BackendClientSecret,
			Timeout:      30 * time.Second,
			MaxRetries:   cfg.UploadMaxRetries,
		}, log.WithField("component", "backend"))
		catalog, repo, images = c, c, c
	case config.BackendLocal, "":
		blobs, err := storage.NewFSStore(cfg.BlobBasePath)
		if err != nil {
			dbh.Close()
			return nil, fmt.Errorf("blob store: %w", err)
		}
		p.Blobs = blobs
		catalog = taxonomy.NewSQLCatalog(dbh)
		repo = question.NewSQLStore(dbh)
		images = storage.NewImageStore(blobs, cfg.AssetsBaseURL, cfg.UploadMaxRetries, log.WithField("component", "images"))
	default:
		dbh.Close()
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	im := importer.New(
		parse.NewExtractor(log.WithField("component", "parse")),
		taxonomy.NewReconciler(catalog, log.WithField("component", "taxonomy"), cfg.UncategorizedName),
		hydrate.New(images, log.WithField("component", "hydrate")),
		repo,
		log.WithField("component", "importer"),
	)
	im.Events = p.Events
	p.Importer = im
	return p, nil
}
