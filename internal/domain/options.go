package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// OptionLimits maps a customization category (e.g. "frutas") to the maximum number of
// selections allowed in it.
type OptionLimits map[string]int

// SelectedOptions maps a customization category to the option names chosen in it.
type SelectedOptions map[string][]string

var (
	// ErrOptionCategoryUnknown is returned when a selection targets a category the product does not offer.
	ErrOptionCategoryUnknown = errors.New("options: unknown category")
	// ErrOptionLimitExceeded is returned when a category has more selections than its limit.
	ErrOptionLimitExceeded = errors.New("options: selection limit exceeded")
)

// Validate checks every category against limits. Categories are reported in sorted order
// so the first failure is deterministic.
func (s SelectedOptions) Validate(limits OptionLimits) error {
	if len(s) == 0 {
		return nil
	}
	categories := make([]string, 0, len(s))
	for category := range s {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		max, ok := limits[category]
		if !ok {
			return fmt.Errorf("%w: %q", ErrOptionCategoryUnknown, category)
		}
		if n := len(s[category]); n > max {
			return fmt.Errorf("%w: %q allows %d, got %d", ErrOptionLimitExceeded, category, max, n)
		}
	}
	return nil
}

// Normalize trims names, drops blank entries and empty categories. The result is nil when
// nothing remains.
func (s SelectedOptions) Normalize() SelectedOptions {
	if len(s) == 0 {
		return nil
	}
	out := make(SelectedOptions, len(s))
	for category, names := range s {
		key := strings.TrimSpace(category)
		if key == "" {
			continue
		}
		kept := make([]string, 0, len(names))
		for _, name := range names {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				kept = append(kept, trimmed)
			}
		}
		if len(kept) == 0 {
			continue
		}
		out[key] = append(out[key], kept...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Clone deep-copies the selection map.
func (s SelectedOptions) Clone() SelectedOptions {
	if len(s) == 0 {
		return nil
	}
	out := make(SelectedOptions, len(s))
	for category, names := range s {
		out[category] = append([]string(nil), names...)
	}
	return out
}
