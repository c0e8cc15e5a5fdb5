package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"outreach_gateway/internal/transport"
)

const (
	KindApollo = "apollo"

	apolloDefaultBaseURL = "https://api.apollo.io"
	apolloDefaultPerPage = 25
	apolloMaxPerPage     = 100
)

// ApolloProvider calls the Apollo people search API.
type ApolloProvider struct {
	client  *transport.Client
	apiKey  Secret
	baseURL string
}

// NewApollo creates an Apollo client
func NewApollo(cfg Config, client *transport.Client) (PeopleSearchProvider, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	return &ApolloProvider{
		client:  client,
		apiKey:  cfg.APIKey,
		baseURL: baseURL(cfg, apolloDefaultBaseURL),
	}, nil
}

func (p *ApolloProvider) Kind() string { return KindApollo }

type apolloRequest struct {
	Keywords            string   `json:"q_keywords,omitempty"`
	PersonTitles        []string `json:"person_titles,omitempty"`
	OrganizationDomains []string `json:"q_organization_domains_list,omitempty"`
	Page                int      `json:"page"`
	PerPage             int      `json:"per_page"`
}

type apolloResponse struct {
	People []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		Title        string `json:"title"`
		Email        string `json:"email"`
		LinkedInURL  string `json:"linkedin_url"`
		Organization *struct {
			Name          string `json:"name"`
			PrimaryDomain string `json:"primary_domain"`
		} `json:"organization"`
	} `json:"people"`
	Pagination struct {
		Page         int `json:"page"`
		TotalEntries int `json:"total_entries"`
	} `json:"pagination"`
}

// Search runs one page of a people search
func (p *ApolloProvider) Search(ctx context.Context, q PeopleQuery) (*PeopleResult, error) {
	if q.Keywords == "" && len(q.Titles) == 0 && len(q.Domains) == 0 {
		return nil, fmt.Errorf("%w: keywords, titles or domains are required", ErrInvalidRequest)
	}

	page := q.Page
	if page <= 0 {
		page = 1
	}
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = apolloDefaultPerPage
	}
	if perPage > apolloMaxPerPage {
		perPage = apolloMaxPerPage
	}

	body := apolloRequest{
		Keywords:            q.Keywords,
		PersonTitles:        q.Titles,
		OrganizationDomains: q.Domains,
		Page:                page,
		PerPage:             perPage,
	}

	headers := http.Header{}
	headers.Set("X-Api-Key", p.apiKey.Reveal())
	headers.Set("Cache-Control", "no-cache")

	var out apolloResponse
	if _, err := postJSON(ctx, p.client, p.baseURL+"/v1/mixed_people/search", headers, body, &out); err != nil {
		return nil, fmt.Errorf("apollo search: %w", err)
	}

	result := &PeopleResult{
		People: make([]Person, 0, len(out.People)),
		Total:  out.Pagination.TotalEntries,
		Page:   page,
	}
	for _, hit := range out.People {
		name := hit.Name
		if name == "" {
			name = strings.TrimSpace(hit.FirstName + " " + hit.LastName)
		}
		person := Person{
			ID:          hit.ID,
			Name:        name,
			Title:       hit.Title,
			Email:       hit.Email,
			LinkedInURL: hit.LinkedInURL,
		}
		if hit.Organization != nil {
			person.Organization = hit.Organization.Name
			person.Domain = hit.Organization.PrimaryDomain
		}
		result.People = append(result.People, person)
	}

	return result, nil
}
