package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberRe = regexp.MustCompile(`\d+(\.\d+)?`)
	urlRe    = regexp.MustCompile(`https?://\S+`)
	pathRe   = regexp.MustCompile(`[/\\][^\s]*`)
	byTargetRe = regexp.MustCompile(`(?i)\bby\s+([a-z0-9' ]+?)(?:[.,!?]|$)`)
	toTargetRe = regexp.MustCompile(`(?i)\bto\s+([a-z0-9' ]+?)(?:[.,!?]|$)`)
)

// knownLocations and knownDevices are the closed vocabularies for named
// target extraction (spec.md §4.4). They are small, fixed lists; schema
// keywords do not extend them.
var knownLocations = []string{"kitchen", "living room", "bedroom", "office", "garage", "bathroom", "hallway"}
var knownDevices = []string{"speaker", "light", "lights", "thermostat", "lock", "camera", "tv", "fan"}

// actionRule maps one schema "action" choice to the verbs/phrases that
// imply it. Order matters: the first rule whose trigger appears in the
// utterance wins, mirroring intent_classifier.py's per-intent
// _extract_*_parameters functions.
type actionRule struct {
	Action   string
	Triggers []string
}

// actionRulesByIntent gives each intent with an "action" parameter its own
// verb vocabulary (spec.md §4.4, grounded on intent_classifier.py's
// _extract_audio_parameters/_extract_system_parameters/etc.).
var actionRulesByIntent = map[Intent][]actionRule{
	AudioControl: {
		{"play", []string{"play", "start", "begin"}},
		{"pause", []string{"pause", "hold"}},
		{"stop", []string{"stop", "end", "quit"}},
		{"volume", []string{"volume", "loud", "quiet", "mute", "unmute", "louder", "quieter"}},
		{"skip", []string{"skip", "next", "previous"}},
		{"switch", []string{"switch", "change", "output"}},
	},
	SystemControl: {
		{"open", []string{"open"}},
		{"close", []string{"close"}},
		{"launch", []string{"launch"}},
		{"run", []string{"run", "execute"}},
		{"start", []string{"start"}},
		{"stop", []string{"stop"}},
		{"kill", []string{"kill", "terminate"}},
	},
	SmartHome: {
		{"on", []string{"turn on", " on"}},
		{"off", []string{"turn off", " off"}},
		{"dim", []string{"dim"}},
		{"brighten", []string{"brighten", "brighter"}},
		{"lock", []string{"lock"}},
		{"unlock", []string{"unlock"}},
		{"set", []string{"set"}},
	},
	Communication: {
		{"send", []string{"send", "text"}},
		{"call", []string{"call", "phone"}},
		{"message", []string{"message"}},
		{"notify", []string{"notify"}},
	},
	FileOperation: {
		{"download", []string{"download"}},
		{"upload", []string{"upload"}},
		{"copy", []string{"copy"}},
		{"move", []string{"move"}},
		{"delete", []string{"delete", "remove"}},
		{"create", []string{"create", "make"}},
	},
	HardwareControl: {
		{"on", []string{"turn on"}},
		{"off", []string{"turn off"}},
		{"toggle", []string{"toggle"}},
		{"read", []string{"read"}},
		{"write", []string{"write"}},
		{"pwm", []string{"pwm"}},
	},
}

// findAction resolves an utterance's "action" parameter by walking the
// intent's ordered verb vocabulary and returning the first match.
func findAction(i Intent, lowerUtterance string) (string, bool) {
	for _, rule := range actionRulesByIntent[i] {
		for _, trigger := range rule.Triggers {
			if strings.Contains(lowerUtterance, trigger) {
				return rule.Action, true
			}
		}
	}
	return "", false
}

// ExtractedParameters is the deterministic, pre-validation extraction
// result: raw values keyed by parameter name.
type ExtractedParameters map[string]any

// Extract pulls candidate parameter values out of utterance using the
// deterministic rules from spec.md §4.4, matching the extracted value to
// parameter names declared on the schema where the type suggests a role
// (a "file_path" parameter gets the path match, a "url" parameter gets the
// URL match, and so on).
func Extract(utterance string, schema Schema) ExtractedParameters {
	out := make(ExtractedParameters)

	lower := strings.ToLower(utterance)
	numbers := numberRe.FindAllString(utterance, -1)
	numIdx := 0

	location := findVocabMatch(utterance, knownLocations)
	device := findVocabMatch(utterance, knownDevices)
	byTarget := firstSubmatch(byTargetRe, utterance)
	toTarget := firstSubmatch(toTargetRe, utterance)
	url := urlRe.FindString(utterance)
	path := pathRe.FindString(utterance)
	action, hasAction := findAction(schema.Intent, lower)

	for _, p := range schema.Parameters {
		switch p.Type {
		case TypeInteger, TypeFloat:
			if numIdx < len(numbers) {
				out[p.Name] = clampNumber(numbers[numIdx], p)
				numIdx++
			}
		case TypeURL:
			if url != "" {
				out[p.Name] = url
			}
		case TypeFilePath:
			if path != "" {
				out[p.Name] = path
			}
		case TypeBoolean:
			// Booleans are not deterministically extractable from free
			// text; left for the caller to supply explicitly.
		default: // TypeString
			switch {
			case p.Name == "action" && hasAction:
				out[p.Name] = action
			case strings.Contains(strings.ToLower(p.Name), "artist") && byTarget != "":
				out[p.Name] = byTarget
			case (strings.Contains(strings.ToLower(p.Name), "destination") || strings.Contains(strings.ToLower(p.Name), "recipient")) && toTarget != "":
				out[p.Name] = toTarget
			case strings.Contains(strings.ToLower(p.Name), "location") && location != "":
				out[p.Name] = location
			case strings.Contains(strings.ToLower(p.Name), "device") && device != "":
				out[p.Name] = device
			}
		}
	}
	return out
}

func findVocabMatch(utterance string, vocab []string) string {
	lower := strings.ToLower(utterance)
	for _, word := range vocab {
		if strings.Contains(lower, word) {
			return word
		}
	}
	return ""
}

func firstSubmatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(m[1]))
}

func clampNumber(raw string, p ParameterSchema) any {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	if p.Min != nil && f < *p.Min {
		f = *p.Min
	}
	if p.Max != nil && f > *p.Max {
		f = *p.Max
	}
	if p.Type == TypeInteger {
		return int(f)
	}
	return f
}

// ValidationError describes one field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return e.Field + ": " + e.Message }

// Validate coerces extracted values against schema, applies defaults for
// absent non-required fields, and collects one ValidationError per field
// that fails a choice, range, type, or required check (spec.md §4.4).
func Validate(extracted ExtractedParameters, schema Schema) (map[string]any, []ValidationError) {
	validated := make(map[string]any, len(schema.Parameters))
	var errs []ValidationError

	for _, p := range schema.Parameters {
		raw, present := extracted[p.Name]
		if !present {
			if p.Required {
				errs = append(errs, ValidationError{Field: p.Name, Message: "required parameter missing"})
				continue
			}
			if p.Default != nil {
				validated[p.Name] = p.Default
			}
			continue
		}

		value, err := coerce(raw, p.Type)
		if err != nil {
			errs = append(errs, ValidationError{Field: p.Name, Message: err.Error()})
			continue
		}

		if len(p.Choices) > 0 && !choiceMatch(value, p.Choices) {
			errs = append(errs, ValidationError{Field: p.Name, Message: fmt.Sprintf("value %v not in allowed choices %v", value, p.Choices)})
			continue
		}
		if num, ok := asFloat(value); ok {
			if p.Min != nil && num < *p.Min {
				errs = append(errs, ValidationError{Field: p.Name, Message: fmt.Sprintf("value %v below minimum %v", value, *p.Min)})
				continue
			}
			if p.Max != nil && num > *p.Max {
				errs = append(errs, ValidationError{Field: p.Name, Message: fmt.Sprintf("value %v above maximum %v", value, *p.Max)})
				continue
			}
		}
		validated[p.Name] = value
	}
	return validated, errs
}

func coerce(raw any, t ParameterType) (any, error) {
	switch t {
	case TypeString, TypeFilePath, TypeURL:
		return fmt.Sprintf("%v", raw), nil
	case TypeInteger:
		switch v := raw.(type) {
		case int:
			return v, nil
		case float64:
			return int(v), nil
		case string:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("not an integer: %v", raw)
			}
			return n, nil
		}
		return nil, fmt.Errorf("not an integer: %v", raw)
	case TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("not a float: %v", raw)
			}
			return f, nil
		}
		return nil, fmt.Errorf("not a float: %v", raw)
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("not a boolean: %v", raw)
			}
			return b, nil
		}
		return nil, fmt.Errorf("not a boolean: %v", raw)
	default:
		return raw, nil
	}
}

func choiceMatch(value any, choices []string) bool {
	s := fmt.Sprintf("%v", value)
	for _, c := range choices {
		if c == s {
			return true
		}
	}
	return false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
