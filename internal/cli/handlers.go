package cli

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BartekS5/movielens-etl/internal/config"
	"github.com/BartekS5/movielens-etl/internal/etl"
	"github.com/BartekS5/movielens-etl/internal/metrics"
	"github.com/BartekS5/movielens-etl/internal/server"
	"github.com/BartekS5/movielens-etl/pkg/database"
	"github.com/BartekS5/movielens-etl/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
)

// defaultRecorder registers the ETL collectors with the default registry on
// first use.
var defaultRecorder = sync.OnceValue(func() *metrics.Recorder {
	return metrics.NewRecorder(prometheus.DefaultRegisterer)
})

// app holds the stores and the orchestrator built from one configuration.
type app struct {
	cfg          *config.Config
	db           *sql.DB
	mongo        *mongo.Client
	objects      etl.ObjectStore
	loader       *etl.SQLLoader
	orchestrator *etl.Orchestrator
}

func newApp(cfg *config.Config, withMetrics bool) (*app, error) {
	dialect := cfg.Dialect()
	db, err := database.OpenSQL(dialect, cfg.DataSourceName(), cfg.Pool())
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db}
	a.objects, err = a.openObjectStore()
	if err != nil {
		a.close()
		return nil, err
	}

	a.loader = etl.NewSQLLoader(db, dialect, cfg.DB.AcquireTimeout)

	opts := etl.Options{
		BatchSize:      cfg.ETL.BatchSize,
		BatchPolicy:    etl.BatchPolicy(cfg.ETL.BatchPolicy),
		ProgressEvery:  cfg.ETL.ProgressEvery,
		ScoreMin:       cfg.ETL.ScoreMin,
		ScoreMax:       cfg.ETL.ScoreMax,
		ConnectRetries: cfg.ETL.ConnectRetries,
		RetryInterval:  cfg.ETL.RetryInterval,
	}
	if withMetrics {
		opts.Recorder = defaultRecorder()
	}
	a.orchestrator = etl.NewOrchestrator(a.objects, a.loader, opts)
	return a, nil
}

func (a *app) openObjectStore() (etl.ObjectStore, error) {
	switch a.cfg.Objects.Backend {
	case config.BackendS3:
		s3cfg := a.cfg.Objects.S3
		return etl.NewS3Store(etl.S3Options{
			Endpoint:  s3cfg.Endpoint,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			UseSSL:    s3cfg.UseSSL,
		})
	case config.BackendGridFS:
		client, err := database.ConnectMongo(a.cfg.Objects.GridFS.URI)
		if err != nil {
			return nil, err
		}
		a.mongo = client
		return etl.NewGridFSStore(client, a.cfg.Objects.GridFS.Database, a.cfg.Objects.GridFS.Bucket)
	case config.BackendDir:
		return etl.NewDirStore(a.cfg.Objects.Dir.Root), nil
	default:
		return nil, errors.Errorf("unsupported object store backend %q", a.cfg.Objects.Backend)
	}
}

func (a *app) close() {
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongo.Disconnect(ctx); err != nil {
			logger.Warnf("Closing MongoDB client: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warnf("Closing database pool: %v", err)
		}
	}
}

func runETL(ctx context.Context, cfg *config.Config, out io.Writer) error {
	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	stats := a.orchestrator.RunFullETL(ctx)
	printStats(out, stats)
	if !stats.Succeeded() {
		return errors.Errorf("ETL run %s failed: %s", stats.RunID, stats.ErrorMessage)
	}
	return nil
}

func runCheck(ctx context.Context, cfg *config.Config, out io.Writer) error {
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	objectsErr := a.objects.CheckConnection(ctx)
	dbOK := a.loader.CheckConnection(ctx)
	printCheck(out, cfg, objectsErr, dbOK)

	if objectsErr != nil || !dbOK {
		return errors.New("connectivity check failed")
	}
	return nil
}

func runCounts(ctx context.Context, cfg *config.Config, out io.Writer) error {
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	counts, err := a.orchestrator.Summary(ctx)
	if err != nil {
		return err
	}
	printCounts(out, counts)
	return nil
}

func runInitDB(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.loader.EnsureSchema(ctx, cfg.ETL.ScoreMin, cfg.ETL.ScoreMax); err != nil {
		return err
	}
	logger.Infof("Schema ready on %s", a.loader.Dialect.Name)
	return nil
}

func runSeed(ctx context.Context, cfg *config.Config, sourceDir string) error {
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	writer, ok := a.objects.(etl.ObjectWriter)
	if !ok {
		return errors.Errorf("object store backend %q is read-only", cfg.Objects.Backend)
	}
	if s3store, ok := a.objects.(*etl.S3Store); ok {
		if err := s3store.EnsureBucket(ctx); err != nil {
			return err
		}
	}

	for _, f := range seedFiles {
		data, err := os.ReadFile(filepath.Join(sourceDir, f.File))
		if err != nil {
			return errors.Wrapf(err, "reading %s", f.File)
		}
		if err := writer.PutObject(ctx, f.Key, data); err != nil {
			return err
		}
		logger.Infof("Uploaded %s (%d bytes) to %s", f.File, len(data), f.Key)
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server.New(a.orchestrator, a.objects, a.loader, prometheus.DefaultGatherer).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
