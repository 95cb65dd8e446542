package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PatientSummary carries the read-only display attributes of a resolved
// identity. PatientCode is non-empty exactly when the lookup found a record.
type PatientSummary struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	PatientCode     string `json:"patient_code"`
	ProfilePhotoURL string `json:"profile_photo_url,omitempty"`
}

// PendingIdentity is the outcome of a lookup. Found false is a definitive
// negative, not an error.
type PendingIdentity struct {
	Found   bool
	Patient PatientSummary
}

// Resolver turns a decoded payload or a typed key into a PendingIdentity via
// the reception lookup endpoint.
type Resolver struct {
	client    *http.Client
	lookupURL string
}

func NewResolver(lookupURL string, client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{client: client, lookupURL: lookupURL}
}

// ExtractKey pulls the lookup key out of a raw decoder payload. Payloads with
// an email:<value> marker (case-insensitive, ';' terminated) yield the value;
// anything else is used whole.
func ExtractKey(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	idx := strings.Index(lower, "email:")
	if idx < 0 {
		return raw
	}
	rest := raw[idx+len("email:"):]
	if end := strings.IndexByte(rest, ';'); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// Resolve never returns an error for "not found"; transport and server
// failures come back as ErrLookupUnavailable and are retryable by re-scanning.
func (r *Resolver) Resolve(ctx context.Context, raw string) (PendingIdentity, error) {
	key := ExtractKey(raw)

	u := r.lookupURL + "?email=" + url.QueryEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return PendingIdentity{}, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return PendingIdentity{}, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return PendingIdentity{}, fmt.Errorf("%w: status %d", ErrLookupUnavailable, resp.StatusCode)
	}

	var body struct {
		Success bool            `json:"success"`
		Patient *PatientSummary `json:"patient"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return PendingIdentity{}, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}

	if !body.Success || body.Patient == nil {
		return PendingIdentity{Found: false}, nil
	}

	return PendingIdentity{Found: true, Patient: *body.Patient}, nil
}
