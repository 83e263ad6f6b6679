package service

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"legalseg-backend/models"
)

// roleLine matches the "**Role** | sentence" line format the model
// falls back to when it answers in plain text instead of records.
var roleLine = regexp.MustCompile(`^\*\*(.+?)\*\*\s*\|\s*(.+)$`)

var controlCharPattern = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f]")

// roleTable maps the model's free-text labels onto the canonical role
// vocabulary. Lookups are case-insensitive and total: anything missing
// maps to RoleNone.
var roleTable = map[string]models.RoleTag{
	"facts":                   models.RoleFacts,
	"fact":                    models.RoleFacts,
	"issue":                   models.RoleIssues,
	"issues":                  models.RoleIssues,
	"arguments of petitioner": models.RoleArgumentPetitioner,
	"argument (petitioner)":   models.RoleArgumentPetitioner,
	"arguments of respondent": models.RoleArgumentRespondent,
	"argument (respondent)":   models.RoleArgumentRespondent,
	"reasoning":               models.RoleReasoning,
	"decision":                models.RoleDecision,
	"none":                    models.RoleNone,
}

// MapRoleLabel resolves a free-text role label to a canonical RoleTag
func MapRoleLabel(label string) models.RoleTag {
	if tag, ok := roleTable[strings.ToLower(strings.TrimSpace(label))]; ok {
		return tag
	}
	return models.RoleNone
}

// payloadKind classifies a working payload before parsing, instead of
// type-sniffing element by element inside the parse loop.
type payloadKind int

const (
	payloadEmpty payloadKind = iota
	payloadStrings
	payloadObjects
)

// Normalizer turns a raw inference payload into an ordered list of
// labeled sentences. It never fails: the worst malformed payload
// yields an empty list and a log line.
type Normalizer struct{}

// NewNormalizer creates a new normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize produces the canonical sentence list for a raw payload
func (n *Normalizer) Normalize(raw RawPayload) models.SentenceList {
	working := n.unwrapNested(raw)

	switch classifyPayload(working) {
	case payloadStrings:
		return n.normalizeStrings(working)
	case payloadObjects:
		return n.normalizeObjects(working)
	default:
		return models.SentenceList{}
	}
}

// unwrapNested handles the doubly-encoded shape: a single string
// payload that itself begins with "[[" is nested JSON the service
// failed to decode once. The model also sometimes wraps its answer in
// an extra array layer, which is unwrapped here.
func (n *Normalizer) unwrapNested(raw RawPayload) []interface{} {
	if len(raw) == 0 {
		return nil
	}

	first, ok := raw[0].(string)
	if !ok || !strings.HasPrefix(strings.TrimSpace(first), "[[") {
		return []interface{}(raw)
	}

	cleaned := controlCharPattern.ReplaceAllString(strings.TrimSpace(first), "")
	cleaned = unescapeStatusText(cleaned)

	var parsed interface{}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		log.Printf("Warning: failed to parse nested prediction payload: %v", err)
		return nil
	}

	arr, ok := parsed.([]interface{})
	if !ok {
		return []interface{}{parsed}
	}
	if len(arr) > 0 {
		if inner, ok := arr[0].([]interface{}); ok {
			return inner
		}
	}
	return arr
}

func classifyPayload(working []interface{}) payloadKind {
	if len(working) == 0 {
		return payloadEmpty
	}
	for _, el := range working {
		if _, ok := el.(string); !ok {
			return payloadObjects
		}
	}
	return payloadStrings
}

// normalizeStrings parses the line-oriented answer format. Lines that
// do not carry the role marker are dropped without complaint.
func (n *Normalizer) normalizeStrings(working []interface{}) models.SentenceList {
	parts := make([]string, 0, len(working))
	for _, el := range working {
		parts = append(parts, el.(string))
	}

	sentences := models.SentenceList{}
	for _, line := range strings.Split(strings.Join(parts, "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		match := roleLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		sentences = append(sentences, models.LabeledSentence{
			Text:          strings.TrimSpace(match[2]),
			RoleID:        MapRoleLabel(match[1]),
			Confidence:    1.0,
			OriginalIndex: len(sentences) + 1,
		})
	}
	return sentences
}

// normalizeObjects parses structured prediction records. Field names
// vary between model versions, so the first present candidate wins.
func (n *Normalizer) normalizeObjects(working []interface{}) models.SentenceList {
	sentences := models.SentenceList{}
	for i, el := range working {
		record, ok := el.(map[string]interface{})
		if !ok {
			// A stray string among records still gets the line format.
			str, isStr := el.(string)
			if !isStr {
				continue
			}
			match := roleLine.FindStringSubmatch(strings.TrimSpace(str))
			if match == nil {
				continue
			}
			sentences = append(sentences, models.LabeledSentence{
				Text:          strings.TrimSpace(match[2]),
				RoleID:        MapRoleLabel(match[1]),
				Confidence:    1.0,
				OriginalIndex: i + 1,
			})
			continue
		}

		text := firstStringField(record, "sentence", "text", "output", "value")
		if strings.TrimSpace(text) == "" {
			continue
		}
		label := firstStringField(record, "label", "role", "tag")

		sentences = append(sentences, models.LabeledSentence{
			Text:          strings.TrimSpace(text),
			RoleID:        MapRoleLabel(label),
			Confidence:    canonicalConfidence(record["confidence"]),
			OriginalIndex: i + 1,
		})
	}
	return sentences
}

func firstStringField(record map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if value, ok := record[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// canonicalConfidence maps a raw confidence value onto the 0.0-1.0
// scale. The model variously emits fractions and integer percentages;
// anything above 1 is treated as a percentage.
func canonicalConfidence(value interface{}) float64 {
	conf, ok := value.(float64)
	if !ok {
		return 1.0
	}
	if conf > 1.0 {
		conf = conf / 100.0
	}
	if conf < 0 {
		return 0
	}
	if conf > 1.0 {
		return 1.0
	}
	return conf
}
