// Package fetcher pulls one page of articles from the mediastack news API.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/config"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/utils"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
)

var (
	ErrSourceUnavailable = errors.New("news source unavailable")
	ErrMissingAPIKey     = errors.New("news api key is not configured")
)

type NewsAPIResp struct {
	Data       *[]apiArticle `json:"data"`
	Pagination struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
		Count  int `json:"count"`
		Total  int `json:"total"`
	} `json:"pagination"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// apiArticle mirrors the API payload, where any field may be null.
type apiArticle struct {
	Author      *string `json:"author"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	URL         *string `json:"url"`
	Source      *string `json:"source"`
	Image       *string `json:"image"`
	Category    *string `json:"category"`
	Language    *string `json:"language"`
	Country     *string `json:"country"`
	PublishedAt *string `json:"published_at"`
}

func (a apiArticle) toModel() models.Article {
	return models.Article{
		Author:      deref(a.Author),
		Title:       deref(a.Title),
		Description: deref(a.Description),
		URL:         deref(a.URL),
		Source:      deref(a.Source),
		Image:       deref(a.Image),
		Category:    deref(a.Category),
		Language:    deref(a.Language),
		Country:     deref(a.Country),
		PublishedAt: deref(a.PublishedAt),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	language string
	sort     string
	limit    int
	logger   *logger.ColorfulLogger
}

func NewClient(cfg config.Config, log *logger.ColorfulLogger) (*Client, error) {
	httpClient, err := utils.NewHTTPClient(cfg.HTTPTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:     httpClient,
		baseURL:  cfg.NewsAPIURL,
		apiKey:   cfg.NewsAPIKey,
		language: cfg.Language,
		sort:     cfg.Sort,
		limit:    cfg.Limit,
		logger:   log,
	}, nil
}

// Fetch returns the most recent articles for one country, newest first.
func (c *Client) Fetch(ctx context.Context, country string) ([]models.Article, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, ErrMissingAPIKey)
	}

	params := url.Values{}
	params.Set("access_key", c.apiKey)
	params.Set("countries", country)
	params.Set("language", c.language)
	params.Set("sort", c.sort)
	params.Set("limit", strconv.Itoa(c.limit))

	c.logger.Debug("requesting %s (countries=%s, limit=%d)", c.baseURL, country, c.limit)
	body, err := utils.CreateRequest(ctx, c.http, c.baseURL, http.MethodGet, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	articles, err := parseResponse(body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("fetched %d articles for country %s", len(articles), country)
	return articles, nil
}

func parseResponse(body []byte) ([]models.Article, error) {
	var response NewsAPIResp
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: failed to parse json from news api: %v", ErrSourceUnavailable, err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%w: news api error %s: %s", ErrSourceUnavailable, response.Error.Code, response.Error.Message)
	}
	if response.Data == nil {
		return nil, fmt.Errorf("%w: response has no data field", ErrSourceUnavailable)
	}

	articles := make([]models.Article, 0, len(*response.Data))
	for _, a := range *response.Data {
		articles = append(articles, a.toModel())
	}
	return articles, nil
}
