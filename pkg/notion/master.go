package notion

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// Master reads and writes the rider master database. One page per rider;
// property names follow the database schema (Name title, Email, Stage
// select, social URLs, Sale Value number, Follow Up date, Disqualified
// checkbox).
type Master struct {
	c    Client
	dbID string
}

// NewMaster binds a client to the rider master database.
func NewMaster(c Client, dbID string) *Master {
	return &Master{c: c, dbID: dbID}
}

// Rows pulls every page of the master database flattened to feed rows.
// Archived pages are skipped.
func (m *Master) Rows(ctx context.Context) ([]reconcile.Row, error) {
	pages, err := QueryAll(ctx, m.c, m.dbID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "notion: pull master")
	}

	rows := make([]reconcile.Row, 0, len(pages))
	archived := 0
	for _, page := range pages {
		if page.Archived {
			archived++
			continue
		}
		rows = append(rows, pageRow(page))
	}

	zap.L().Info("notion: master pulled",
		zap.Int("rows", len(rows)),
		zap.Int("archived", archived),
	)
	return rows, nil
}

// pageRow flattens a page's properties into a feed row keyed by
// normalized property names. Empty cells are omitted so the master feed
// only overwrites fields the master actually holds.
func pageRow(page notionapi.Page) reconcile.Row {
	row := make(reconcile.Row, len(page.Properties))
	for name, prop := range page.Properties {
		if v := propValue(prop); v != "" {
			row[reconcile.NormalizeKey(name)] = v
		}
	}
	return row
}

// propValue extracts a property's cell as text. The API decodes page
// properties to pointer types; anything unhandled reads as empty.
func propValue(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return plainText(v.Title)
	case *notionapi.RichTextProperty:
		return plainText(v.RichText)
	case *notionapi.EmailProperty:
		return strings.TrimSpace(v.Email)
	case *notionapi.PhoneNumberProperty:
		return strings.TrimSpace(v.PhoneNumber)
	case *notionapi.URLProperty:
		return strings.TrimSpace(v.URL)
	case *notionapi.SelectProperty:
		return v.Select.Name
	case *notionapi.StatusProperty:
		return v.Status.Name
	case *notionapi.MultiSelectProperty:
		names := make([]string, 0, len(v.MultiSelect))
		for _, opt := range v.MultiSelect {
			names = append(names, opt.Name)
		}
		return strings.Join(names, ", ")
	case *notionapi.NumberProperty:
		if v.Number == 0 {
			return ""
		}
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case *notionapi.CheckboxProperty:
		if v.Checkbox {
			return "true"
		}
		return ""
	case *notionapi.DateProperty:
		if v.Date == nil || v.Date.Start == nil {
			return ""
		}
		return time.Time(*v.Date.Start).Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		if rt.PlainText != "" {
			b.WriteString(rt.PlainText)
			continue
		}
		if rt.Text != nil {
			b.WriteString(rt.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

// Push upserts one rider into the master database. The page is matched
// by email first, then by name; placeholder identity keys are never used
// as an email. Matching no page creates one.
func (m *Master) Push(ctx context.Context, r *model.Rider) error {
	page, err := m.find(ctx, r)
	if err != nil {
		return eris.Wrapf(err, "notion: find master page for %s", r.Key)
	}

	props := riderProperties(r)

	if page != nil {
		_, err := m.c.UpdatePage(ctx, page.ID.String(), &notionapi.PageUpdateRequest{Properties: props})
		return eris.Wrapf(err, "notion: push update %s", r.Key)
	}

	_, err = m.c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(m.dbID),
		},
		Properties: props,
	})
	return eris.Wrapf(err, "notion: push create %s", r.Key)
}

func (m *Master) find(ctx context.Context, r *model.Rider) (*notionapi.Page, error) {
	if r.Email != "" {
		page, err := m.findOne(ctx, notionapi.PropertyFilter{
			Property: "Email",
			Email:    &notionapi.TextFilterCondition{Equals: r.Email},
		})
		if err != nil || page != nil {
			return page, err
		}
	}

	name := r.FullName()
	if name == "" {
		return nil, nil
	}
	return m.findOne(ctx, notionapi.PropertyFilter{
		Property: "Name",
		Title:    &notionapi.TextFilterCondition{Equals: name},
	})
}

func (m *Master) findOne(ctx context.Context, filter notionapi.PropertyFilter) (*notionapi.Page, error) {
	resp, err := m.c.QueryDatabase(ctx, m.dbID, &notionapi.DatabaseQueryRequest{
		Filter:   filter,
		PageSize: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// riderProperties builds the page properties for a push. Only populated
// fields are written: a blank local value never clears a master cell,
// and a placeholder key never reaches the Email property.
func riderProperties(r *model.Rider) notionapi.Properties {
	props := make(notionapi.Properties)

	name := r.FullName()
	if name == "" {
		name = r.Key
	}
	props["Name"] = notionapi.TitleProperty{
		Type: notionapi.PropertyTypeTitle,
		Title: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: name}},
		},
	}

	props["Stage"] = notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: r.Stage.Display()},
	}

	if r.Email != "" {
		props["Email"] = notionapi.EmailProperty{
			Type:  notionapi.PropertyTypeEmail,
			Email: r.Email,
		}
	}
	if r.Phone != "" {
		props["Phone"] = notionapi.PhoneNumberProperty{
			Type:        notionapi.PropertyTypePhoneNumber,
			PhoneNumber: r.Phone,
		}
	}

	urls := map[string]string{
		"Facebook":  r.FacebookURL,
		"Instagram": r.InstagramURL,
		"LinkedIn":  r.LinkedInURL,
	}
	for key, v := range urls {
		if v != "" {
			props[key] = notionapi.URLProperty{
				Type: notionapi.PropertyTypeURL,
				URL:  v,
			}
		}
	}

	texts := map[string]string{
		"Championship": r.Championship,
		"Bike":         r.Bike,
		"Track":        r.Track,
		"Notes":        r.Notes,
		"Tags":         r.Tags,
	}
	for key, v := range texts {
		if v != "" {
			props[key] = notionapi.RichTextProperty{
				Type: notionapi.PropertyTypeRichText,
				RichText: []notionapi.RichText{
					{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
				},
			}
		}
	}

	if r.SaleValue > 0 {
		props["Sale Value"] = notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: r.SaleValue,
		}
	}
	if r.FollowUpAt != nil {
		d := notionapi.Date(*r.FollowUpAt)
		props["Follow Up"] = notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &d},
		}
	}
	if r.Disqualified {
		props["Disqualified"] = notionapi.CheckboxProperty{
			Type:     notionapi.PropertyTypeCheckbox,
			Checkbox: true,
		}
	}

	return props
}
