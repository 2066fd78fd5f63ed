package tablegrid

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// normalize trims string values in place, like the edit forms do before saving.
func normalize(rec Record) {
	for k, v := range rec {
		if s, ok := v.(string); ok {
			rec[k] = strings.TrimSpace(s)
		}
	}
}

// validateRecord checks a complete record against the column declarations:
// required presence, option membership and validator tags.
func validateRecord(def *Definition, rec Record) error {
	problems := map[string]string{}
	data := map[string]interface{}{}
	rules := map[string]interface{}{}

	for _, c := range def.Columns {
		v, present := rec[c.Field]
		if present && v == nil {
			present = false
		}

		if !present {
			if c.Required {
				problems[c.Field] = "required"
			}
			continue
		}

		tags := c.Validate
		if _, ok := v.(string); ok && c.Required {
			tags = joinTags("required", c.Validate)
		}
		if len(c.Options) > 0 && !inOptions(v, c.Options) {
			if s, ok := v.(string); !ok || s != "" {
				problems[c.Field] = fmt.Sprintf("%v is not an allowed value", v)
				continue
			}
		}
		if tags != "" {
			data[c.Field] = v
			rules[c.Field] = tags
		}
	}

	if len(rules) > 0 {
		for field, err := range validate.ValidateMap(data, rules) {
			problems[field] = describe(err)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	return nil
}

func joinTags(tags ...string) string {
	out := []string{}
	for _, t := range tags {
		if t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, ",")
}

func inOptions(v interface{}, opts []Option) bool {
	for _, o := range opts {
		if valuesEqual(v, o.Value) {
			return true
		}
	}
	return false
}

func describe(err interface{}) string {
	if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
		fe := ve[0]
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		if fe.Tag() == "required" {
			return "required"
		}
		return "failed " + fe.Tag()
	}
	return fmt.Sprintf("%v", err)
}
