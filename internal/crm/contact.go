package crm

import (
	"context"
	"net/url"

	"github.com/Ince88/prv/internal/logging"
)

// ContactInfo is the display subset of the primary contact.
type ContactInfo struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
}

// ContactResult is the outcome of a contact lookup. Found=false with a nil
// error means the email matched no contact; it is not a failure.
//
// BusinessIDs carries the business of every contact record that matched the
// email, not just the first: one email can belong to several CRM contact
// records across different organizations, and project discovery must cover
// all of them.
type ContactResult struct {
	Found       bool         `json:"found"`
	Contact     *ContactInfo `json:"contact,omitempty"`
	BusinessIDs []int64      `json:"business_ids,omitempty"`
}

// ResolveContact looks up the CRM contact records for an email address.
// The first returned record is designated primary for display purposes; when
// the search result carries a detail URL, the full record is fetched because
// search responses may omit fields.
func (c *Client) ResolveContact(ctx context.Context, email string) (*ContactResult, error) {
	params := url.Values{"Email": {email}}

	var resp listResponse[Contact]
	if err := c.get(ctx, "Contact", params, &resp); err != nil {
		return nil, err
	}

	matches := resp.Results.Items
	if resp.Count == 0 || len(matches) == 0 {
		c.logger.Info("contact not found", logging.Operation("resolve_contact"),
			"email", logging.AnonymizeEmail(email))
		return &ContactResult{Found: false}, nil
	}

	var businessIDs []int64
	for _, m := range matches {
		if m.BusinessID != 0 {
			businessIDs = append(businessIDs, int64(m.BusinessID))
		}
	}

	primary := matches[0]
	if primary.URL != "" {
		// Search results can be partial; the embedded URL points at the
		// full record. A failed detail fetch keeps the partial record.
		var full Contact
		if err := c.getURL(ctx, primary.URL, &full); err == nil {
			full.URL = primary.URL
			if full.BusinessID == 0 {
				full.BusinessID = primary.BusinessID
			}
			primary = full
		}
	}

	c.logger.Info("contact resolved", logging.Operation("resolve_contact"),
		"email", logging.AnonymizeEmail(email),
		"matches", len(matches), "businesses", len(businessIDs))

	return &ContactResult{
		Found: true,
		Contact: &ContactInfo{
			ID:      int64(primary.ID),
			Name:    primary.Name,
			Email:   primary.Email,
			Company: primary.Company,
			Phone:   primary.Phone,
		},
		BusinessIDs: businessIDs,
	}, nil
}
