// Package prefs holds the per-user board preferences: aliases, selected categories and hidden projects.
package prefs

import (
	"encoding/json"
	"fmt"
	"html"
	"slices"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/david/jv-board/internal/filter"
)

// CurrentVersion is the schema version written by this package.
const CurrentVersion = 1

// Legacy keys of the unversioned preference blob.
const (
	legacyUserKey       = "jv-user"
	legacyCategoriesKey = "jv-selected-categories-v2"
	legacyHiddenKey     = "jv-hidden-projects"
)

type Preferences struct {
	Version    int      `json:"version"`
	Aliases    []string `json:"aliases"`
	Categories []string `json:"categories"`
	HiddenIDs  []string `json:"hidden_ids"`
}

// Default returns empty preferences at the current version.
func Default() Preferences {
	return Preferences{
		Version:    CurrentVersion,
		Aliases:    []string{},
		Categories: []string{},
		HiddenIDs:  []string{},
	}
}

// Migrate decodes a stored preference document of any known version and returns it
// at the current version. An empty document yields the defaults.
func Migrate(raw []byte) (Preferences, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Default(), nil
	}

	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Preferences{}, fmt.Errorf("failed to decode preferences: %w", err)
	}

	switch {
	case probe.Version == 0:
		return migrateV0(raw)
	case probe.Version == CurrentVersion:
		var p Preferences
		if err := json.Unmarshal(raw, &p); err != nil {
			return Preferences{}, fmt.Errorf("failed to decode preferences: %w", err)
		}
		return p.normalized(), nil
	default:
		return Preferences{}, fmt.Errorf("unsupported preferences version %d", probe.Version)
	}
}

// legacyUser is the stored session object of the unversioned format.
type legacyUser struct {
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Aliases  []string `json:"aliases"`
}

// migrateV0 reads the unversioned blob. Each key may hold the value itself or
// its JSON encoding as a string, depending on how it was exported.
func migrateV0(raw []byte) (Preferences, error) {
	var blob map[string]json.RawMessage
	if err := json.Unmarshal(raw, &blob); err != nil {
		return Preferences{}, fmt.Errorf("failed to decode legacy preferences: %w", err)
	}

	p := Default()

	var user legacyUser
	if err := decodeLegacy(blob[legacyUserKey], &user); err != nil {
		return Preferences{}, fmt.Errorf("legacy %s: %w", legacyUserKey, err)
	}
	p.SetAliases(user.Aliases)

	var categories []string
	if err := decodeLegacy(blob[legacyCategoriesKey], &categories); err != nil {
		return Preferences{}, fmt.Errorf("legacy %s: %w", legacyCategoriesKey, err)
	}
	p.SetCategories(categories)

	var hidden []string
	if err := decodeLegacy(blob[legacyHiddenKey], &hidden); err != nil {
		return Preferences{}, fmt.Errorf("legacy %s: %w", legacyHiddenKey, err)
	}
	for _, id := range hidden {
		p.Hide(id)
	}

	return p, nil
}

func decodeLegacy(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return err
		}
		if strings.TrimSpace(inner) == "" {
			return nil
		}
		raw = json.RawMessage(inner)
	}
	return json.Unmarshal(raw, dst)
}

func (p Preferences) normalized() Preferences {
	out := Default()
	out.SetAliases(p.Aliases)
	out.SetCategories(p.Categories)
	for _, id := range p.HiddenIDs {
		out.Hide(id)
	}
	return out
}

// Hide adds a project id to the hidden set.
func (p *Preferences) Hide(id string) {
	id = strings.TrimSpace(id)
	if id == "" || slices.Contains(p.HiddenIDs, id) {
		return
	}
	p.HiddenIDs = append(p.HiddenIDs, id)
}

// Unhide removes a project id from the hidden set.
func (p *Preferences) Unhide(id string) {
	id = strings.TrimSpace(id)
	p.HiddenIDs = slices.DeleteFunc(p.HiddenIDs, func(v string) bool { return v == id })
}

func (p *Preferences) SetAliases(aliases []string) {
	p.Aliases = cleanList(aliases)
}

func (p *Preferences) SetCategories(categories []string) {
	p.Categories = cleanList(categories)
}

// Viewer builds the filter identity for a user with these preferences.
func (p Preferences) Viewer(name, username string) filter.Viewer {
	return filter.Viewer{Name: name, Username: username, Aliases: p.Aliases}
}

// Criteria builds the filter state; status and query come from the request.
func (p Preferences) Criteria(status filter.StatusFilter, query string) filter.Criteria {
	return filter.Criteria{
		HiddenIDs:  p.HiddenIDs,
		Categories: p.Categories,
		Status:     status,
		Query:      query,
	}
}

var strict = bluemonday.StrictPolicy()

// cleanText strips markup from user-entered text and normalizes whitespace.
func cleanText(s string) string {
	s = html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func cleanList(items []string) []string {
	out := []string{}
	for _, v := range items {
		v = cleanText(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
