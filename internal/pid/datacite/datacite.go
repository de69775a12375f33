// Package datacite implements the pid.Provider interface against the
// DataCite REST API.
package datacite

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"curator/internal/pid"
	"curator/internal/record/models"
)

const (
	providerName = "datacite"
	scheme       = "doi"

	defaultTimeout = 15 * time.Second
)

// Config carries the DataCite account settings.
type Config struct {
	BaseURL  string // e.g. https://api.test.datacite.org
	Username string
	Password string
	Prefix   string // DOI prefix, e.g. 10.1234
}

// Client talks to the DataCite REST API. Suffixes are generated locally so
// allocation does not need a round trip; reservation and registration do.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) Name() string {
	return providerName
}

// Create allocates a DOI in NEW state. DataCite drafts are created lazily
// at reserve time; allocation only mints the identifier string.
func (c *Client) Create(_ context.Context, _ *models.Record) (models.PID, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return models.PID{}, pid.NewProviderError(pid.ErrorInternal,
			providerName, scheme, "", "mint doi suffix", err)
	}
	return models.PID{
		Scheme:     scheme,
		Identifier: fmt.Sprintf("%s/%s", c.cfg.Prefix, suffix),
		Provider:   providerName,
		Status:     models.PIDStatusNew,
	}, nil
}

// Reserve creates the DOI as a draft with DataCite.
func (c *Client) Reserve(ctx context.Context, p models.PID) error {
	body := doiEnvelope{Data: doiData{
		Type:       "dois",
		Attributes: doiAttributes{DOI: p.Identifier},
	}}
	return c.do(ctx, http.MethodPost, "/dois", p.Identifier, body, http.StatusCreated)
}

// Register publishes the DOI, making it resolvable.
func (c *Client) Register(ctx context.Context, req pid.RegistrationRequest) error {
	return c.submit(ctx, req, "publish")
}

// Update replaces the metadata and landing URL of a registered DOI.
func (c *Client) Update(ctx context.Context, req pid.RegistrationRequest) error {
	return c.submit(ctx, req, "")
}

func (c *Client) submit(ctx context.Context, req pid.RegistrationRequest, event string) error {
	attrs := doiAttributes{
		DOI:   req.PID.Identifier,
		Event: event,
		URL:   req.URL,
	}
	for _, rel := range req.Payload.Relations {
		attrs.RelatedIdentifiers = append(attrs.RelatedIdentifiers, relatedIdentifier{
			RelationType:          rel.Type,
			RelatedIdentifierType: "DOI",
			RelatedIdentifier:     rel.Identifier,
		})
	}
	body := doiEnvelope{Data: doiData{Type: "dois", Attributes: attrs}}
	return c.do(ctx, http.MethodPut, "/dois/"+req.PID.Identifier, req.PID.Identifier, body, http.StatusOK)
}

// Read fetches the provider's view of an identifier.
func (c *Client) Read(ctx context.Context, _, identifier string) (models.PID, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/dois/"+identifier, nil)
	if err != nil {
		return models.PID{}, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return models.PID{}, c.transportError(identifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.PID{}, c.statusError(identifier, resp.StatusCode)
	}

	var envelope doiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return models.PID{}, pid.NewProviderError(pid.ErrorBadPayload,
			providerName, scheme, identifier, "decode doi response", err)
	}
	return models.PID{
		Scheme:     scheme,
		Identifier: envelope.Data.Attributes.DOI,
		Provider:   providerName,
		Status:     stateToStatus(envelope.Data.Attributes.State),
	}, nil
}

// Discard hard-deletes a draft DOI.
func (c *Client) Discard(ctx context.Context, _, identifier string) error {
	return c.do(ctx, http.MethodDelete, "/dois/"+identifier, identifier, nil, http.StatusNoContent)
}

// Hide moves a registered DOI out of the public index without deleting it.
func (c *Client) Hide(ctx context.Context, identifier string) error {
	body := doiEnvelope{Data: doiData{
		Type:       "dois",
		Attributes: doiAttributes{DOI: identifier, Event: "hide"},
	}}
	return c.do(ctx, http.MethodPut, "/dois/"+identifier, identifier, body, http.StatusOK)
}

func (c *Client) do(ctx context.Context, method, path, identifier string, body any, wantStatus int) error {
	var buf *bytes.Buffer
	if body != nil {
		buf = &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return pid.NewProviderError(pid.ErrorInternal,
				providerName, scheme, identifier, "encode request", err)
		}
	}

	var reader *bytes.Reader
	if buf != nil {
		reader = bytes.NewReader(buf.Bytes())
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(identifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.statusError(identifier, resp.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body *bytes.Reader) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	}
	if err != nil {
		return nil, pid.NewProviderError(pid.ErrorInternal,
			providerName, scheme, "", "build request", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Content-Type", "application/vnd.api+json")
	return req, nil
}

func (c *Client) transportError(identifier string, err error) error {
	category := pid.ErrorOutage
	if errors.Is(err, context.DeadlineExceeded) {
		category = pid.ErrorTimeout
	}
	return pid.NewProviderError(category, providerName, scheme, identifier, "datacite request", err)
}

func (c *Client) statusError(identifier string, status int) error {
	var category pid.ErrorCategory
	switch {
	case status == http.StatusNotFound:
		category = pid.ErrorNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = pid.ErrorAuthentication
	case status == http.StatusTooManyRequests:
		category = pid.ErrorRateLimited
	case status >= 500:
		category = pid.ErrorOutage
	case status >= 400:
		category = pid.ErrorBadPayload
	default:
		category = pid.ErrorInternal
	}
	return pid.NewProviderError(category, providerName, scheme, identifier,
		fmt.Sprintf("unexpected status %d", status), nil)
}

func stateToStatus(state string) models.PIDStatus {
	switch state {
	case "draft":
		return models.PIDStatusNew
	case "registered":
		return models.PIDStatusReserved
	case "findable":
		return models.PIDStatusRegistered
	}
	return models.PIDStatusNew
}

// suffixAlphabet omits ambiguous characters, matching common DOI minting
// practice.
const suffixAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

func randomSuffix() (string, error) {
	const length = 8
	out := make([]byte, 0, length+1)
	for i := 0; i < length; i++ {
		if i == 4 {
			out = append(out, '-')
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(suffixAlphabet))))
		if err != nil {
			return "", err
		}
		out = append(out, suffixAlphabet[n.Int64()])
	}
	return string(out), nil
}

type doiEnvelope struct {
	Data doiData `json:"data"`
}

type doiData struct {
	Type       string        `json:"type"`
	Attributes doiAttributes `json:"attributes"`
}

type doiAttributes struct {
	DOI                string              `json:"doi"`
	Event              string              `json:"event,omitempty"`
	URL                string              `json:"url,omitempty"`
	State              string              `json:"state,omitempty"`
	RelatedIdentifiers []relatedIdentifier `json:"relatedIdentifiers,omitempty"`
}

type relatedIdentifier struct {
	RelationType          string `json:"relationType"`
	RelatedIdentifierType string `json:"relatedIdentifierType"`
	RelatedIdentifier     string `json:"relatedIdentifier"`
}
