package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jmcleod/portalauth/client"
	"github.com/jmcleod/portalauth/config"
	"github.com/jmcleod/portalauth/session"
	"github.com/jmcleod/portalauth/storage"
	bboltstorage "github.com/jmcleod/portalauth/storage/bbolt"
	"github.com/jmcleod/portalauth/storage/memory"
	"github.com/jmcleod/portalauth/storage/postgres"
	"github.com/jmcleod/portalauth/transport"
)

// app bundles the session service for the configured realm with the
// resources backing it.
type app struct {
	svc    *session.Service
	client *client.Client
	// http authorizes ad-hoc backend requests with the stored session.
	http   *http.Client
	closer func() error
}

func newApp(c *config.Config, opts ...session.Option) (*app, error) {
	store, closer, err := openStore(c)
	if err != nil {
		return nil, err
	}

	cl := client.New(c.APIURL, client.WithTimeout(c.RequestTimeout))
	opts = append([]session.Option{
		session.WithLogger(slog.Default()),
		session.WithPollInterval(c.PollInterval),
		session.WithProfileFetcher(cl),
	}, opts...)

	svc := session.NewService(c.Realm, store, cl, opts...)
	return &app{
		svc:    svc,
		client: cl,
		http:   transport.NewClient(svc, c.RequestTimeout),
		closer: closer,
	}, nil
}

func (a *app) Close() error {
	a.svc.Close()
	return a.closer()
}

func openStore(c *config.Config) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	var (
		store  storage.Store
		closer = noop
	)
	switch c.Store {
	case config.StoreNone:
		return storage.Unavailable(), noop, nil
	case config.StoreMemory:
		store = memory.New()
	case config.StoreBBolt:
		if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		db, err := bboltstorage.Open(c.DBPath(), &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session storage: %w", err)
		}
		store, closer = db, db.Close
	case config.StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), c.RequestTimeout)
		defer cancel()
		pg, err := postgres.Open(ctx, c.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session storage: %w", err)
		}
		store, closer = pg, pg.Close
	default:
		return nil, nil, fmt.Errorf("unknown store %q", c.Store)
	}

	if c.StorePassphrase == "" {
		return store, closer, nil
	}
	sealed, err := storage.NewSealedStore(store, c.StorePassphrase)
	if err != nil {
		closer()
		return nil, nil, fmt.Errorf("unlocking session storage: %w", err)
	}
	return sealed, closer, nil
}
