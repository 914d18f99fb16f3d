// Package crm publishes release notes to the CRM as note engagements
// associated with a company record.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/relaynote/relaynote/internal/errors"
)

// Client creates notes via the CRM REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	now     func() time.Time
}

// NewClient creates a note publisher. baseURL is the CRM API root,
// e.g. https://api.hubapi.com.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

// notePayload is the note-creation request body: timestamp and HTML body,
// plus an association binding the note to the company.
type notePayload struct {
	Properties   noteProperties    `json:"properties"`
	Associations []noteAssociation `json:"associations"`
}

type noteProperties struct {
	Timestamp string `json:"hs_timestamp"`
	Body      string `json:"hs_note_body"`
}

type noteAssociation struct {
	To    assocTarget `json:"to"`
	Types []assocType `json:"types"`
}

type assocTarget struct {
	ID string `json:"id"`
}

type assocType struct {
	Category string `json:"associationCategory"`
	TypeID   int    `json:"associationTypeId"`
}

// noteToCompanyTypeID is the HubSpot-defined association type for
// note -> company.
const noteToCompanyTypeID = 190

// CreateNote publishes one HTML note attached to the given company.
// A 429 response maps to a RATE_LIMITED error carrying the Retry-After
// hint; any other non-2xx response maps to an UPSTREAM error.
func (c *Client) CreateNote(ctx context.Context, companyID, htmlBody string) error {
	payload := notePayload{
		Properties: noteProperties{
			Timestamp: c.now().UTC().Format(time.RFC3339),
			Body:      htmlBody,
		},
		Associations: []noteAssociation{{
			To: assocTarget{ID: companyID},
			Types: []assocType{{
				Category: "HUBSPOT_DEFINED",
				TypeID:   noteToCompanyTypeID,
			}},
		}},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.NewInternal(err)
	}

	u := fmt.Sprintf("%s/crm/v3/objects/notes", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewUpstream("crm", 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return errors.NewRateLimited(retryAfter)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return errors.NewUpstream("crm", resp.StatusCode, string(body))
	}

	return nil
}
