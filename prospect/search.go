package prospect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/hazyhaar/vitrine/websafe"
)

// ErrMissingAPIKey is returned by Search when no places API key is set.
var ErrMissingAPIKey = errors.New("prospect: missing places API key")

// fieldMask limits the places response to the fields Business carries.
const fieldMask = "places.displayName,places.primaryType,places.formattedAddress," +
	"places.nationalPhoneNumber,places.websiteUri,places.rating"

type placesRequest struct {
	TextQuery      string `json:"textQuery"`
	MaxResultCount int    `json:"maxResultCount,omitempty"`
}

type placesResponse struct {
	Places []struct {
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		PrimaryType         string  `json:"primaryType"`
		FormattedAddress    string  `json:"formattedAddress"`
		NationalPhoneNumber string  `json:"nationalPhoneNumber"`
		WebsiteURI          string  `json:"websiteUri"`
		Rating              float64 `json:"rating"`
	} `json:"places"`
}

// Search runs a text search ("coiffeur" + "Lyon") against the places API
// and returns normalized businesses. Results are LRU-cached per
// query/city/limit so repeated pipeline runs don't burn API quota.
func (s *Service) Search(ctx context.Context, query, city string, limit int) ([]Business, error) {
	if s.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if limit <= 0 || limit > 20 {
		limit = 20
	}

	key := query + "|" + city + "|" + strconv.Itoa(limit)
	if hit, ok := s.cache.Get(key); ok {
		s.log.Debug("prospect: search cache hit", "query", query, "city", city)
		return slices.Clone(hit), nil
	}

	text := strings.TrimSpace(query)
	if city != "" {
		text += " " + city
	}
	body, err := json.Marshal(placesRequest{TextQuery: text, MaxResultCount: limit})
	if err != nil {
		return nil, fmt.Errorf("prospect: encode search: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("prospect: build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", s.cfg.APIKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prospect: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prospect: search returned status %d", resp.StatusCode)
	}
	data, err := websafe.LimitedReadAll(resp.Body, s.cfg.MaxBody)
	if err != nil {
		return nil, fmt.Errorf("prospect: read search response: %w", err)
	}

	var pr placesResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("prospect: decode search response: %w", err)
	}

	businesses := make([]Business, 0, len(pr.Places))
	for _, p := range pr.Places {
		if p.DisplayName.Text == "" {
			continue
		}
		businesses = append(businesses, Business{
			Name:     p.DisplayName.Text,
			Category: p.PrimaryType,
			Address:  p.FormattedAddress,
			Phone:    p.NationalPhoneNumber,
			Website:  p.WebsiteURI,
			Rating:   p.Rating,
		})
	}

	s.cache.Add(key, slices.Clone(businesses))
	s.log.Info("prospect: search complete", "query", query, "city", city, "found", len(businesses))
	return businesses, nil
}
