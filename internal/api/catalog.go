package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hero-arena/internal/config"
	"hero-arena/internal/domain"

	"github.com/valyala/fasthttp"
)

// CatalogClient pulls the hero and composition catalogs from an optional
// upstream. When no CATALOG_URL is configured the client is disabled and the
// seeded catalog stands.
type CatalogClient struct {
	baseURL string
	client  *fasthttp.Client
}

func NewCatalogClient(cfg *config.Config) *CatalogClient {
	return &CatalogClient{
		baseURL: cfg.CatalogURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *CatalogClient) Enabled() bool {
	return c.baseURL != ""
}

func (c *CatalogClient) GetHeroes(ctx context.Context) ([]domain.Hero, error) {
	resp, err := doRequest[HeroesResponse](ctx, c, c.baseURL+"/heroes")
	if err != nil {
		return nil, err
	}

	heroes := make([]domain.Hero, len(resp.Data))
	for i, h := range resp.Data {
		heroes[i] = domain.Hero{
			ID:           h.ID,
			Name:         h.Name,
			Role:         h.Role,
			BaseStrength: h.BaseStrength,
		}
	}
	return heroes, nil
}

func (c *CatalogClient) GetCompositions(ctx context.Context) ([]domain.Composition, error) {
	resp, err := doRequest[CompositionsResponse](ctx, c, c.baseURL+"/compositions")
	if err != nil {
		return nil, err
	}

	comps := make([]domain.Composition, len(resp.Data))
	for i, comp := range resp.Data {
		comps[i] = domain.Composition{
			ID:      comp.ID,
			Name:    comp.Name,
			HeroIDs: comp.HeroIDs,
		}
	}
	return comps, nil
}

func doRequest[T any](ctx context.Context, client *CatalogClient, url string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("catalog API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type HeroesResponse struct {
	Data []HeroPayload `json:"data"`
}

type HeroPayload struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Role         string  `json:"role"`
	BaseStrength float64 `json:"base_strength"`
}

type CompositionsResponse struct {
	Data []CompositionPayload `json:"data"`
}

type CompositionPayload struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	HeroIDs []string `json:"hero_ids"`
}
