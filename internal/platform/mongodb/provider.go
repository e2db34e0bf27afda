// Package mongodb owns the shared MongoDB client used by the mongo repositories.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/farmconnect/marketplace/internal/platform/config"
)

const defaultConnectTimeout = 10 * time.Second

var ErrProviderClosed = errors.New("mongodb: provider is closed")

// Provider lazily connects a MongoDB client and hands out the configured database.
type Provider struct {
	cfg config.MongoConfig

	mu     sync.Mutex
	client *mongo.Client
	closed bool
}

// NewProvider constructs a provider; no connection is made until first use.
func NewProvider(cfg config.MongoConfig) *Provider {
	return &Provider{cfg: cfg}
}

// Database returns the configured database, connecting on first use.
func (p *Provider) Database(ctx context.Context) (*mongo.Database, error) {
	client, err := p.Client(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(p.cfg.Database)
	if name == "" {
		return nil, errors.New("mongodb: database name is required")
	}
	return client.Database(name), nil
}

// Collection is shorthand for Database(ctx).Collection(name).
func (p *Provider) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := p.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// Client returns the shared client.
func (p *Provider) Client(ctx context.Context) (*mongo.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.client != nil {
		return p.client, nil
	}

	uri := strings.TrimSpace(p.cfg.URI)
	if uri == "" {
		return nil, errors.New("mongodb: uri is required")
	}
	timeout := p.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri).SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	p.client = client
	return client, nil
}

// Ping verifies the primary is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	return WrapError("ping", client.Ping(ctx, readpref.Primary()))
}

// Close disconnects the client. The provider cannot be reused afterwards.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.client == nil {
		return nil
	}
	err := p.client.Disconnect(ctx)
	p.client = nil
	return err
}
