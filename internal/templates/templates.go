// Package templates manages saved order presets and loads them into the
// order ticket.
package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"orderdesk/internal/domain"
	"orderdesk/internal/metrics"
	"orderdesk/internal/order"
)

// ErrNameRequired is returned by Create for a blank template name.
var ErrNameRequired = errors.New("template name is required")

// markUsedTimeout bounds the detached lastUsedAt stamp.
const markUsedTimeout = 10 * time.Second

// Backend is the template half of the backend API.
type Backend interface {
	ListTemplates(ctx context.Context) ([]domain.OrderTemplate, error)
	CreateTemplate(ctx context.Context, draft domain.TemplateDraft) (*domain.OrderTemplate, error)
	DeleteTemplate(ctx context.Context, id int64) error
	MarkTemplateUsed(ctx context.Context, id int64) error
}

// Client wraps Backend with validation and fire-and-forget usage stamps.
type Client struct {
	backend Backend
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewClient creates a template client.
func NewClient(backend Backend, log *slog.Logger) *Client {
	return &Client{backend: backend, log: log}
}

// List returns every saved template.
func (c *Client) List(ctx context.Context) ([]domain.OrderTemplate, error) {
	list, err := c.backend.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	return list, nil
}

// Create saves draft. A blank name fails before any network call.
func (c *Client) Create(ctx context.Context, draft domain.TemplateDraft) (*domain.OrderTemplate, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	if draft.Name == "" {
		return nil, ErrNameRequired
	}
	draft.Symbol = strings.ToUpper(strings.TrimSpace(draft.Symbol))

	t, err := c.backend.CreateTemplate(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("creating template %q: %w", draft.Name, err)
	}
	c.log.Info("template created", "id", t.ID, "name", t.Name)
	return t, nil
}

// Delete removes the template with the given id.
func (c *Client) Delete(ctx context.Context, id int64) error {
	if err := c.backend.DeleteTemplate(ctx, id); err != nil {
		return fmt.Errorf("deleting template %d: %w", id, err)
	}
	c.log.Info("template deleted", "id", id)
	return nil
}

// MarkUsed stamps lastUsedAt in the background. It never blocks and never
// reports failure to the caller; failures are logged.
func (c *Client) MarkUsed(id int64) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), markUsedTimeout)
		defer cancel()

		if err := c.backend.MarkTemplateUsed(ctx, id); err != nil {
			metrics.IncTemplateUseFailure()
			c.log.Warn("marking template used", "id", id, "error", err)
		}
	}()
}

// Wait blocks until outstanding MarkUsed calls finish.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Apply overwrites the template-owned fields of form. Fields the template
// leaves empty are cleared rather than kept.
func Apply(form *order.FormState, t domain.OrderTemplate) {
	form.Symbol = t.Symbol
	form.Side = t.Side
	form.Quantity = strconv.Itoa(t.Quantity)
	form.OrderType = t.OrderType
	form.LimitPrice = ""
	if t.LimitPrice != nil {
		form.LimitPrice = order.FormatPrice(*t.LimitPrice)
	}
}
