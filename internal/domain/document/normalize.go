package document

import (
	"path"
	"strings"
	"time"

	"deferral-backend/pkg/id"
)

// Normalize turns raw descriptors into canonical records attributed to uploadedBy.
func Normalize(raw []Raw, uploadedBy string, now time.Time) []Document {
	out := make([]Document, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalizeOne(r, uploadedBy, now))
	}
	return out
}

// NormalizeOne is Normalize for a single descriptor.
func NormalizeOne(r Raw, uploadedBy string, now time.Time) Document {
	return normalizeOne(r, uploadedBy, now)
}

func normalizeOne(r Raw, uploadedBy string, now time.Time) Document {
	d := Document{
		ID:           id.NewID32(),
		Name:         strings.TrimSpace(r.Name),
		URL:          r.URL,
		Type:         r.Type,
		Size:         r.Size,
		UploadDate:   now.UTC(),
		IsDCL:        r.IsDCL,
		IsAdditional: r.IsAdditional,
		UploadedBy:   uploadedBy,
	}
	if d.Type == "" {
		d.Type = TypeFromName(d.Name)
	}
	if r.UploadDate != nil && !r.UploadDate.IsZero() {
		d.UploadDate = r.UploadDate.UTC()
	}
	return d
}

// FromUpload builds a record for a stored file; the type comes from the mime subtype.
func FromUpload(filename, mimeType string, size int64, url, uploadedBy string, isDCL, isAdditional bool, now time.Time) Document {
	typ := ""
	if i := strings.LastIndex(mimeType, "/"); i >= 0 && i < len(mimeType)-1 {
		typ = strings.ToLower(mimeType[i+1:])
	}
	if typ == "" {
		typ = TypeFromName(filename)
	}
	return Document{
		ID:           id.NewID32(),
		Name:         filename,
		URL:          url,
		Type:         typ,
		Size:         &size,
		UploadDate:   now.UTC(),
		IsDCL:        isDCL,
		IsAdditional: isAdditional,
		UploadedBy:   uploadedBy,
	}
}

// TypeFromName returns the lowercased extension without the dot, or "".
func TypeFromName(name string) string {
	ext := path.Ext(strings.TrimSpace(name))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// NormalizeSelected trims names and items, drops unnamed entries and
// deduplicates by case-insensitive name. Items of a later duplicate are merged
// into the first occurrence. Applying it twice is a no-op.
func NormalizeSelected(raw []RawSelected) []Selected {
	out := make([]Selected, 0, len(raw))
	index := make(map[string]int, len(raw))
	for _, r := range raw {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			name = strings.TrimSpace(r.Label)
		}
		if name == "" {
			continue
		}
		items := r.Items
		if len(items) == 0 {
			items = r.Selected
		}
		key := strings.ToLower(name)
		if i, ok := index[key]; ok {
			out[i].Items = dedupeItems(append(out[i].Items, items...))
			continue
		}
		index[key] = len(out)
		out = append(out, Selected{
			Name:  name,
			Type:  strings.TrimSpace(r.Type),
			Items: dedupeItems(items),
		})
	}
	return out
}

// ToRawSelected lets already-normalized declarations go back through NormalizeSelected.
func ToRawSelected(in []Selected) []RawSelected {
	out := make([]RawSelected, 0, len(in))
	for _, s := range in {
		out = append(out, RawSelected{Name: s.Name, Type: s.Type, Items: s.Items})
	}
	return out
}

func dedupeItems(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Remove filters out the document with the given id. The bool reports whether it was present.
func Remove(docs []Document, docID string) ([]Document, bool) {
	out := make([]Document, 0, len(docs))
	found := false
	for _, d := range docs {
		if d.ID == docID {
			found = true
			continue
		}
		out = append(out, d)
	}
	return out, found
}
