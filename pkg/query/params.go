package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/dukex/botflow/pkg/models"
	"github.com/spf13/cast"
)

// params is the rendered parameter map of a query call. Accessors coerce
// values with cast so templates may pass numbers as strings.
type params map[string]any

func (p params) has(key string) bool {
	v, ok := p[key]

	return ok && v != nil && v != ""
}

func (p params) str(key, def string) (string, error) {
	if !p.has(key) {
		return def, nil
	}

	s, err := cast.ToStringE(p[key])
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", ErrInvalidParam, key, err)
	}

	return strings.TrimSpace(s), nil
}

func (p params) requiredString(key, def string) (string, error) {
	s, err := p.str(key, def)
	if err != nil {
		return "", err
	}

	if s == "" {
		return "", fmt.Errorf("%w %q: required", ErrInvalidParam, key)
	}

	return s, nil
}

func (p params) integer(key string, def int64) (int64, error) {
	if !p.has(key) {
		return def, nil
	}

	f, err := cast.ToFloat64E(p[key])
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidParam, key, err)
	}

	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w %q: %v is not an integer", ErrInvalidParam, key, p[key])
	}

	return int64(f), nil
}

func (p params) positive(key string) (int64, error) {
	n, err := p.integer(key, 0)
	if err != nil {
		return 0, err
	}

	if n <= 0 {
		return 0, fmt.Errorf("%w %q: must be positive", ErrInvalidParam, key)
	}

	return n, nil
}

func (p params) flag(key string) (bool, error) {
	if !p.has(key) {
		return false, nil
	}

	b, err := cast.ToBoolE(p[key])
	if err != nil {
		return false, fmt.Errorf("%w %q: %w", ErrInvalidParam, key, err)
	}

	return b, nil
}

func (p params) attributes(key string) (map[string]any, error) {
	if !p.has(key) {
		return nil, nil
	}

	m, err := cast.ToStringMapE(p[key])
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidParam, key, err)
	}

	return m, nil
}

// buttons decodes rows of {text, callback_data, url} maps.
func (p params) buttons(key string) ([][]models.Button, error) {
	if !p.has(key) {
		return nil, nil
	}

	rows, err := cast.ToSliceE(p[key])
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidParam, key, err)
	}

	out := make([][]models.Button, 0, len(rows))

	for _, row := range rows {
		items, err := cast.ToSliceE(row)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidParam, key, err)
		}

		buttons := make([]models.Button, 0, len(items))

		for _, item := range items {
			m, err := cast.ToStringMapStringE(item)
			if err != nil {
				return nil, fmt.Errorf("%w %q: %w", ErrInvalidParam, key, err)
			}

			if m["text"] == "" {
				return nil, fmt.Errorf("%w %q: button without text", ErrInvalidParam, key)
			}

			buttons = append(buttons, models.Button{Text: m["text"], CallbackData: m["callback_data"], URL: m["url"]})
		}

		out = append(out, buttons)
	}

	return out, nil
}
