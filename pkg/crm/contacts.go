package crm

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// Contact is the slice of a Salesforce Contact the funnel cares about.
type Contact struct {
	ID          string `json:"Id" salesforce:"Id"`
	FirstName   string `json:"FirstName" salesforce:"FirstName"`
	LastName    string `json:"LastName" salesforce:"LastName"`
	Email       string `json:"Email" salesforce:"Email"`
	Phone       string `json:"Phone" salesforce:"Phone"`
	MobilePhone string `json:"MobilePhone" salesforce:"MobilePhone"`
	CreatedDate string `json:"CreatedDate" salesforce:"CreatedDate"`
}

var contactFields = []string{
	"Id", "FirstName", "LastName", "Email", "Phone", "MobilePhone", "CreatedDate",
}

// FetchContacts pulls every contact in the org. go-salesforce follows
// query pagination internally.
func FetchContacts(ctx context.Context, c Client) ([]Contact, error) {
	soql := "SELECT " + strings.Join(contactFields, ", ") + " FROM Contact"

	var contacts []Contact
	if err := c.Query(ctx, soql, &contacts); err != nil {
		return nil, eris.Wrap(err, "crm: fetch contacts")
	}
	return contacts, nil
}

// Rows pulls the org's contacts flattened to feed rows for the
// crm_contacts feed.
func Rows(ctx context.Context, c Client) ([]reconcile.Row, error) {
	contacts, err := FetchContacts(ctx, c)
	if err != nil {
		return nil, err
	}

	rows := make([]reconcile.Row, 0, len(contacts))
	for _, contact := range contacts {
		rows = append(rows, contactRow(contact))
	}

	zap.L().Info("crm: contacts pulled", zap.Int("rows", len(rows)))
	return rows, nil
}

func contactRow(c Contact) reconcile.Row {
	row := reconcile.Row{}
	if c.Email != "" {
		row["email"] = c.Email
	}
	if c.FirstName != "" {
		row["first name"] = c.FirstName
	}
	if c.LastName != "" {
		row["last name"] = c.LastName
	}

	phone := c.Phone
	if phone == "" {
		phone = c.MobilePhone
	}
	if phone != "" {
		row["phone"] = phone
	}

	if ts := sfTimestamp(c.CreatedDate); ts != "" {
		row["timestamp"] = ts
	}
	return row
}

// sfTimestamp rewrites a Salesforce ISO datetime ("2024-03-01T09:00:00.000+0000")
// into the feed timestamp format. Unparseable input is dropped.
func sfTimestamp(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05-0700",
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format("2006-01-02 15:04:05")
		}
	}
	return ""
}
