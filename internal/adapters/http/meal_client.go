package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nutriai/mealsync/internal/domain"
	"github.com/nutriai/mealsync/internal/ports"
)

// Endpoints of the meal service, relative to the base URL.
const (
	mealsEndpoint      = "/meals"
	mealEndpoint       = "/meals/{mealID}"
	imageEndpoint      = "/meals/image"
	audioEndpoint      = "/meals/audio"
	staticPathSegment  = "/static/"
	localFileURIPrefix = "file://"
)

// AuthTokenKey is the store key the bearer token is read from.
const AuthTokenKey = "auth_token"

// MealClientConfig configures a MealClient.
type MealClientConfig struct {
	// BaseURL of the meal service, without trailing slash.
	BaseURL string

	// Token is used when the token store has no token.
	Token string

	// TokenStore, when set, is consulted for AuthTokenKey on every request
	// so a login elsewhere in the app takes effect without a restart.
	TokenStore ports.KVStore

	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

// MealClient implements ports.RemoteMealStore over the meal service REST API.
type MealClient struct {
	client  *resty.Client
	baseURL string
	token   string
	store   ports.KVStore
	logger  ports.Logger
}

// NewMealClient creates a client. cfg.HTTPClient, when set, supplies the
// transport (tests pass an httptest client).
func NewMealClient(cfg MealClientConfig, logger ports.Logger) *MealClient {
	var c *resty.Client
	if cfg.HTTPClient != nil {
		c = resty.NewWithClient(cfg.HTTPClient)
	} else {
		c = resty.New()
	}
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	c.SetHeader("Accept", "application/json")

	return &MealClient{
		client:  c,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		store:   cfg.TokenStore,
		logger:  logger,
	}
}

type createMealResponse struct {
	ID string `json:"id"`
}

type imageUploadResponse struct {
	ImagePath string `json:"image_path"`
}

type audioUploadResponse struct {
	AudioPath string `json:"audio_path"`
}

// CreateMeal uploads any local media, then upserts the meal. Posting the
// same id twice replaces the first copy.
func (c *MealClient) CreateMeal(ctx context.Context, meal domain.MealRecord) (string, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return "", err
	}
	if meal, err = c.prepareMedia(ctx, token, meal); err != nil {
		return "", err
	}

	var out createMealResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(meal).
		SetResult(&out).
		Post(c.baseURL + mealsEndpoint)
	if err != nil {
		return "", fmt.Errorf("create meal %s: %w", meal.ID, err)
	}
	if err := checkResponse("create meal", resp); err != nil {
		return "", err
	}

	if out.ID == "" {
		return meal.ID, nil
	}
	if out.ID != meal.ID {
		c.logger.Warn("service assigned a different meal id",
			ports.String("local_id", meal.ID),
			ports.String("remote_id", out.ID),
		)
	}
	return out.ID, nil
}

// UpdateMeal replaces the meal with the given id. The service upserts on
// POST /meals, so this shares the create path.
func (c *MealClient) UpdateMeal(ctx context.Context, id string, meal domain.MealRecord) error {
	meal.ID = id
	_, err := c.CreateMeal(ctx, meal)
	return err
}

// DeleteMeal removes the meal. A 404 counts as success.
func (c *MealClient) DeleteMeal(ctx context.Context, id string) error {
	token, err := c.authToken(ctx)
	if err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetPathParams(map[string]string{"mealID": id}).
		Delete(c.baseURL + mealEndpoint)
	if err != nil {
		return fmt.Errorf("delete meal %s: %w", id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		c.logger.Debug("meal already absent on delete", ports.String("id", id))
		return nil
	}
	return checkResponse("delete meal", resp)
}

// ListMeals fetches the user's meals. Media fields come back as server
// paths and are turned into URLs under the base URL's /static/ tree.
func (c *MealClient) ListMeals(ctx context.Context) ([]domain.MealRecord, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.MealRecord
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		Get(c.baseURL + mealsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	if err := checkResponse("list meals", resp); err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Image = c.publicURL(out[i].Image)
		out[i].Audio = c.publicURL(out[i].Audio)
	}
	return out, nil
}

func (c *MealClient) publicURL(p string) string {
	switch {
	case p == "",
		strings.HasPrefix(p, "http://"),
		strings.HasPrefix(p, "https://"),
		strings.HasPrefix(p, localFileURIPrefix):
		return p
	}
	return c.baseURL + staticPathSegment + strings.TrimLeft(p, "/")
}

func (c *MealClient) authToken(ctx context.Context) (string, error) {
	if c.store != nil {
		tok, ok, err := c.store.Get(ctx, AuthTokenKey)
		if err != nil {
			c.logger.Warn("failed to read auth token", ports.Err(err))
		} else if ok && tok != "" {
			return tok, nil
		}
	}
	if c.token != "" {
		return c.token, nil
	}
	return "", domain.ErrNoCredentials
}

// prepareMedia uploads file:// media and rewrites the fields to the
// returned server paths. URLs under /static/ are reduced to the path the
// service stores.
func (c *MealClient) prepareMedia(ctx context.Context, token string, meal domain.MealRecord) (domain.MealRecord, error) {
	if strings.HasPrefix(meal.Image, localFileURIPrefix) {
		var out imageUploadResponse
		if err := c.upload(ctx, token, imageEndpoint, "image", meal.Image, &out); err != nil {
			return meal, err
		}
		meal.Image = out.ImagePath
	} else {
		meal.Image = serverPath(meal.Image)
	}

	if strings.HasPrefix(meal.Audio, localFileURIPrefix) {
		var out audioUploadResponse
		if err := c.upload(ctx, token, audioEndpoint, "audio", meal.Audio, &out); err != nil {
			return meal, err
		}
		meal.Audio = out.AudioPath
	} else {
		meal.Audio = serverPath(meal.Audio)
	}
	return meal, nil
}

func (c *MealClient) upload(ctx context.Context, token, endpoint, field, uri string, result interface{}) error {
	path := strings.TrimPrefix(uri, localFileURIPrefix)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// The file is gone for good; retrying cannot help.
			return fmt.Errorf("upload %s: %w: local file %s missing", field, domain.ErrRejected, path)
		}
		return fmt.Errorf("upload %s: %w", field, err)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetFile(field, path).
		SetResult(result).
		Post(c.baseURL + endpoint)
	if err != nil {
		return fmt.Errorf("upload %s: %w", field, err)
	}
	return checkResponse("upload "+field, resp)
}

func serverPath(p string) string {
	if i := strings.Index(p, staticPathSegment); i >= 0 {
		return p[i+len(staticPathSegment):]
	}
	return p
}
