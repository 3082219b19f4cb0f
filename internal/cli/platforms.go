package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/pfrederiksen/ticketscout/internal/source"
)

// PlatformInfo describes one adapter in the platforms listing
type PlatformInfo struct {
	Key               string   `json:"key"`
	Name              string   `json:"name"`
	BaseURL           string   `json:"base_url"`
	Format            string   `json:"format"`
	Currency          string   `json:"currency"`
	Locale            string   `json:"locale"`
	MinIntervalMs     int      `json:"min_request_interval_ms"`
	Capabilities      []string `json:"capabilities,omitempty"`
	SupportedCriteria []string `json:"supported_criteria,omitempty"`
	Enabled           bool     `json:"enabled"`
}

func platformInfo(a *source.Adapter) PlatformInfo {
	return PlatformInfo{
		Key:               a.Key,
		Name:              a.Name,
		BaseURL:           a.BaseURL,
		Format:            string(a.Extraction.Format),
		Currency:          a.Currency,
		Locale:            a.Locale,
		MinIntervalMs:     a.MinRequestIntervalMs,
		Capabilities:      a.Capabilities,
		SupportedCriteria: a.SupportedCriteria,
		Enabled:           !a.Disabled,
	}
}

// writePlatforms lists adapters as text or JSON
func writePlatforms(w io.Writer, adapters []*source.Adapter, format OutputFormat) error {
	infos := make([]PlatformInfo, 0, len(adapters))
	for _, a := range adapters {
		infos = append(infos, platformInfo(a))
	}

	if format == FormatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	}

	for _, p := range infos {
		status := ""
		if !p.Enabled {
			status = " (disabled)"
		}
		fmt.Fprintf(w, "%-16s %-22s %-6s %s %-6s %5dms%s\n", p.Key, p.Name, p.Format, p.Currency, p.Locale, p.MinIntervalMs, status)
		if len(p.SupportedCriteria) > 0 {
			fmt.Fprintf(w, "%-16s criteria: %s\n", "", strings.Join(p.SupportedCriteria, ", "))
		}
	}
	fmt.Fprintf(w, "\nTotal: %d platforms\n", len(infos))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
