package batch

import (
	"net/url"
	"strconv"
	"strings"
)

// Request is one submission: a parent and the per-item payloads to reconcile
// against it.
type Request struct {
	ParentID int64
	Items    []Item
}

// Item is the payload of one child record, keyed by field name.
type Item struct {
	ID     int64
	Fields map[string]string
}

// Validate checks the batch-level invariants. Per-item payloads are checked
// by the planner.
func (r Request) Validate(maxItems int) error {
	if r.ParentID <= 0 {
		return inputError(0, "parent id is required")
	}
	if len(r.Items) == 0 {
		return inputError(0, "no items submitted")
	}
	if maxItems > 0 && len(r.Items) > maxItems {
		return inputError(0, "batch of %d items exceeds the limit of %d", len(r.Items), maxItems)
	}
	seen := make(map[int64]struct{}, len(r.Items))
	for _, it := range r.Items {
		if it.ID <= 0 {
			return inputError(0, "invalid item id %d", it.ID)
		}
		if _, dup := seen[it.ID]; dup {
			return inputError(it.ID, "item id %d submitted more than once", it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// ParseForm rebuilds a Request from the form encoding used by the submission
// pages: the parent id under t.ParentForm, the item ids under t.ItemsForm
// (repeated, optionally with a "[]" suffix) and each payload field as
// "<field>_<itemId>". Empty values are treated as absent.
func ParseForm(t Table, values url.Values) (Request, error) {
	rawParent := strings.TrimSpace(values.Get(t.ParentForm))
	if rawParent == "" {
		return Request{}, inputError(0, "missing %s", t.ParentForm)
	}
	parentID, err := parseID(rawParent)
	if err != nil {
		return Request{}, inputError(0, "invalid %s %q", t.ParentForm, rawParent)
	}

	rawItems := make([]string, 0, len(values[t.ItemsForm])+len(values[t.ItemsForm+"[]"]))
	rawItems = append(rawItems, values[t.ItemsForm]...)
	rawItems = append(rawItems, values[t.ItemsForm+"[]"]...)
	if len(rawItems) == 0 {
		return Request{}, inputError(0, "missing %s", t.ItemsForm)
	}

	req := Request{ParentID: parentID, Items: make([]Item, 0, len(rawItems))}
	for _, raw := range rawItems {
		raw = strings.TrimSpace(raw)
		id, err := parseID(raw)
		if err != nil {
			return Request{}, inputError(0, "invalid item id %q", raw)
		}
		it := Item{ID: id, Fields: make(map[string]string, len(t.Fields))}
		for _, f := range t.Fields {
			if v := strings.TrimSpace(values.Get(f + "_" + raw)); v != "" {
				it.Fields[f] = v
			}
		}
		req.Items = append(req.Items, it)
	}
	return req, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}
