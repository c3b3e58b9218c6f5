package typesense

import (
	"context"
	"fmt"
	"time"

	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	"github.com/zatekoja/medisync/pkg/config"
	"github.com/zatekoja/medisync/pkg/retry"
)

const (
	PlansCollection = "insurance_plans"
)

// Client represents a Typesense client
type Client struct {
	client *typesense.Client
}

// NewClient creates a new Typesense client with exponential backoff retry
func NewClient(cfg *config.TypesenseConfig) (*Client, error) {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)

	// Test connection with retry
	retryConfig := retry.DefaultConfig()
	err := retry.DoWithLog(
		context.Background(),
		retryConfig,
		"Typesense",
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := client.Health(ctx, 2*time.Second)
			return err
		},
		func(attempt int, err error, nextDelay time.Duration) {
			observability.GetLogger().Warn().Err(err).Int("attempt", attempt).Dur("next_delay", nextDelay).Msg("Typesense connection failed, retrying")
		},
	)

	if err != nil {
		return nil, fmt.Errorf("failed to connect to Typesense after retries: %w", err)
	}

	observability.GetLogger().Info().Str("url", cfg.URL).Msg("connected to Typesense")
	return &Client{client: client}, nil
}

// Wrap uses an already configured typesense client without a health check.
func Wrap(client *typesense.Client) *Client {
	return &Client{client: client}
}

// Client returns the underlying Typesense client
func (c *Client) Client() *typesense.Client {
	return c.client
}

// PlansSchema is the insurance_plans collection definition.
func PlansSchema() *api.CollectionSchema {
	return &api.CollectionSchema{
		Name: PlansCollection,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "plan_name", Type: "string"},
			{Name: "provider_name", Type: "string", Facet: pointer.True()},
			{Name: "plan_type", Type: "string", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "coverage_type", Type: "string", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "annual_limit", Type: "float", Optional: pointer.True()},
			{Name: "monthly_premium_min", Type: "float", Optional: pointer.True()},
			{Name: "outpatient_covered", Type: "bool", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "maternity_covered", Type: "bool", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "covered_conditions", Type: "string[]", Optional: pointer.True()},
			{Name: "panel_hospitals", Type: "string[]", Optional: pointer.True()},
			{Name: "min_age", Type: "int32", Optional: pointer.True()},
			{Name: "max_age", Type: "int32", Optional: pointer.True()},
			{Name: "updated_at", Type: "int64"},
		},
		DefaultSortingField: pointer.String("updated_at"),
	}
}

// InitSchema ensures the insurance_plans collection exists
func (c *Client) InitSchema(ctx context.Context) error {
	collections, err := c.client.Collections().Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve collections: %w", err)
	}

	for _, col := range collections {
		if col.Name == PlansCollection {
			return nil
		}
	}

	if _, err := c.client.Collections().Create(ctx, PlansSchema()); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	observability.GetLogger().Info().Str("collection", PlansCollection).Msg("created Typesense collection")
	return nil
}
