package webhook

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIncompleteData means the provider sent an account payload missing a
// required field. Reported, never silently defaulted: inventing an email
// or id here would corrupt the uniqueness invariants downstream.
var ErrIncompleteData = errors.New("incomplete account payload")

// Normalize maps a verified account payload into the canonical AccountData.
// Requires id, at least one email address and an image URL. Username falls
// back to first+last (whitespace stripped, lowercased), then to a synthetic
// suffix of the id. The synthetic fallback is deterministic but only
// best-effort collision-resistant; a collision surfaces as a duplicate-key
// conflict at insert time.
func Normalize(ev *Event) (*AccountData, error) {
	d := ev.Data
	if d.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrIncompleteData)
	}
	if len(d.EmailAddresses) == 0 || d.EmailAddresses[0].EmailAddress == "" {
		return nil, fmt.Errorf("%w: missing email address", ErrIncompleteData)
	}
	if d.ImageURL == "" {
		return nil, fmt.Errorf("%w: missing image url", ErrIncompleteData)
	}

	username := d.Username
	if username == "" {
		username = strings.ToLower(stripSpace(d.FirstName + d.LastName))
	}
	if username == "" {
		username = "user_" + tail(d.ID, 6)
	}

	name := strings.TrimSpace(strings.TrimSpace(d.FirstName) + " " + strings.TrimSpace(d.LastName))
	if name == "" {
		name = username
	}

	return &AccountData{
		ExternalID: d.ID,
		Name:       name,
		Username:   username,
		Email:      d.EmailAddresses[0].EmailAddress,
		Picture:    d.ImageURL,
	}, nil
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
