// Package lookup supplies display metadata for favorited items.
package lookup

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"favsync/internal/fav"
	"favsync/internal/model"
)

// HTTPLookup calls a meal-db style catalogue: GET /lookup.php?i={id}.
type HTTPLookup struct {
	client *resty.Client
}

// NewHTTPLookup creates a lookup client for baseURL.
func NewHTTPLookup(baseURL string, timeout time.Duration) *HTTPLookup {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	return &HTTPLookup{client: c}
}

type lookupResponse struct {
	Meals []struct {
		ID       string `json:"idMeal"`
		Name     string `json:"strMeal"`
		Thumb    string `json:"strMealThumb"`
		Category string `json:"strCategory"`
	} `json:"meals"`
}

// GetByID returns nil, nil when the catalogue has no item with itemID.
func (l *HTTPLookup) GetByID(ctx context.Context, itemID string) (*model.ItemSnapshot, error) {
	var body lookupResponse
	resp, err := l.client.R().
		SetContext(ctx).
		SetQueryParam("i", itemID).
		SetResult(&body).
		Get("/lookup.php")
	if err != nil {
		return nil, fmt.Errorf("lookup request: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("lookup status %d: %s", resp.StatusCode(), resp.String())
	}

	if len(body.Meals) == 0 {
		return nil, nil
	}
	m := body.Meals[0]
	return &model.ItemSnapshot{Name: m.Name, Thumbnail: m.Thumb, Category: m.Category}, nil
}

var _ fav.ItemLookup = (*HTTPLookup)(nil)
