package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/unir/products-search/internal/domain"
	pkgkafka "github.com/unir/products-search/pkg/kafka"
	"github.com/unir/products-search/pkg/logger"
)

// Topics for product change events.
var (
	TopicProductCreated = pkgkafka.Topic("product", "created")
	TopicProductUpdated = pkgkafka.Topic("product", "updated")
	TopicProductDeleted = pkgkafka.Topic("product", "deleted")
)

const (
	AggregateTypeProduct  = "product"
	SourceProductsService = "products-service"
)

// ProductData is the payload of created and updated events.
type ProductData struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Country     string `json:"country"`
	Category    string `json:"category,omitempty"`
	Visible     bool   `json:"visible"`
}

// ProductDeletedData is the payload of a deleted event.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// Publisher sends envelopes to a topic. *pkgkafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
	PublishBatch(ctx context.Context, topic string, events []*pkgkafka.Event) error
}

// Producer publishes product change events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

func toData(p *domain.Product) ProductData {
	return ProductData{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Country:     p.Country,
		Category:    p.Category,
		Visible:     p.Visible,
	}
}

func (p *Producer) PublishProductCreated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductCreated, product.ID, toData(product))
}

func (p *Producer) PublishProductUpdated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductUpdated, product.ID, toData(product))
}

// PublishProductsUpdated sends one updated event per product in a single batch.
func (p *Producer) PublishProductsUpdated(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	events := make([]*pkgkafka.Event, 0, len(products))
	for i := range products {
		event, err := p.newEvent(ctx, TopicProductUpdated, products[i].ID, toData(&products[i]))
		if err != nil {
			return err
		}
		events = append(events, event)
	}

	if err := p.publisher.PublishBatch(ctx, TopicProductUpdated, events); err != nil {
		return fmt.Errorf("publish %s events: %w", TopicProductUpdated, err)
	}

	p.logger.DebugContext(ctx, "published product events",
		slog.String("topic", TopicProductUpdated),
		slog.Int("count", len(events)),
	)
	return nil
}

func (p *Producer) PublishProductDeleted(ctx context.Context, id string) error {
	return p.publish(ctx, TopicProductDeleted, id, ProductDeletedData{ID: id})
}

func (p *Producer) newEvent(ctx context.Context, topic, id string, data any) (*pkgkafka.Event, error) {
	event, err := pkgkafka.NewEvent(topic, id, AggregateTypeProduct, SourceProductsService, data)
	if err != nil {
		return nil, fmt.Errorf("create %s event: %w", topic, err)
	}
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		event.WithCorrelationID(cid)
	}
	return event, nil
}

func (p *Producer) publish(ctx context.Context, topic, id string, data any) error {
	event, err := p.newEvent(ctx, topic, id, data)
	if err != nil {
		return err
	}

	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published product event",
		slog.String("topic", topic),
		slog.String("product_id", id),
	)
	return nil
}

// NopPublisher drops every event. It is used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

func (NopPublisher) PublishBatch(context.Context, string, []*pkgkafka.Event) error { return nil }
