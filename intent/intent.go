// Package intent implements the closed-set intent classifier (spec.md §4.4):
// a keyword signal, an optional trainable TF-IDF/Naive-Bayes signal, and a
// regex pattern signal, combined by weighted sum, followed by deterministic
// parameter extraction and validation.
package intent

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sparesparrow/ai-servis/config"
)

// Intent is one of the closed set of classifiable intents.
type Intent string

const (
	AudioControl    Intent = "audio_control"
	SystemControl   Intent = "system_control"
	SmartHome       Intent = "smart_home"
	Communication   Intent = "communication"
	Navigation      Intent = "navigation"
	Information     Intent = "information"
	FileOperation   Intent = "file_operation"
	HardwareControl Intent = "hardware_control"
	FollowUp        Intent = "follow_up"
	QuestionAnswer  Intent = "question_answer"
	Unknown         Intent = "unknown"
)

// All lists every intent in the closed set, excluding Unknown which is the
// fallback rather than a classification target.
var All = []Intent{
	AudioControl, SystemControl, SmartHome, Communication, Navigation,
	Information, FileOperation, HardwareControl, FollowUp, QuestionAnswer,
}

// ParameterType constrains an extracted parameter's value (spec.md §4.4).
type ParameterType string

const (
	TypeString   ParameterType = "string"
	TypeInteger  ParameterType = "integer"
	TypeFloat    ParameterType = "float"
	TypeBoolean  ParameterType = "boolean"
	TypeFilePath ParameterType = "file_path"
	TypeURL      ParameterType = "url"
)

// ParameterSchema describes one parameter an intent's tool accepts.
type ParameterSchema struct {
	Name        string
	Type        ParameterType
	Required    bool
	Choices     []string
	Min         *float64
	Max         *float64
	Default     any
	Description string
}

// Schema is the registered definition of one intent: how to recognize it
// and where to route it once recognized.
type Schema struct {
	Intent     Intent
	Keywords   []string
	Patterns   []string
	Parameters []ParameterSchema
	Service    string
	Tool       string
	Examples   []string

	compiledPatterns []*regexp.Regexp
}

// Registry holds the closed set of intent schemas and the ensemble weights
// used to classify an utterance against them.
type Registry struct {
	mu      sync.RWMutex
	schemas map[Intent]*Schema

	keywordWeight   float64
	trainableWeight float64
	patternWeight   float64
	confidenceFloor float64

	trainable *trainableSignal
}

// New constructs an empty Registry using weights/floor from cfg.
func New(cfg *config.Store) *Registry {
	r := &Registry{
		schemas:         make(map[Intent]*Schema),
		keywordWeight:   cfg.Float("keyword_weight", config.DefaultKeywordWeight),
		trainableWeight: cfg.Float("trainable_weight", config.DefaultTrainableWeight),
		patternWeight:   cfg.Float("pattern_weight", config.DefaultPatternWeight),
		confidenceFloor: cfg.Float("confidence_floor", config.DefaultConfidenceFloor),
	}
	r.trainable = newTrainableSignal()
	return r
}

// RegisterSchema compiles and stores a schema. Patterns that fail to
// compile are dropped silently so one bad schema cannot break the registry.
func (r *Registry) RegisterSchema(s Schema) {
	compiled := make([]*regexp.Regexp, 0, len(s.Patterns))
	for _, p := range s.Patterns {
		if re, err := regexp.Compile(p); err == nil {
			compiled = append(compiled, re)
		}
	}
	s.compiledPatterns = compiled

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := s
	r.schemas[s.Intent] = &cp
}

// Schema returns the registered schema for an intent.
func (r *Registry) Schema(i Intent) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[i]
	if !ok {
		return Schema{}, false
	}
	return *s, true
}

// Train adds a labelled example to the in-memory trainable signal; it does
// not write anything to disk.
func (r *Registry) Train(utterance string, label Intent) {
	r.trainable.add(utterance, label)
}

// LoadTrainingFile loads a previously persisted trainable model. A missing
// file leaves the trainable signal absent (spec.md §4.4 "If untrained,
// signal is absent").
func (r *Registry) LoadTrainingFile(path string) error {
	return r.trainable.load(path)
}

// SaveTrainingFile persists the trainable model so restarts resume.
func (r *Registry) SaveTrainingFile(path string) error {
	return r.trainable.save(path)
}

// Classification is the ensemble's verdict for one utterance.
type Classification struct {
	Intent       Intent
	Confidence   float64
	LowConfidence bool
	Alternatives []ScoredIntent
}

// ScoredIntent pairs an intent with its combined ensemble score.
type ScoredIntent struct {
	Intent Intent
	Score  float64
}

var tokenRe = regexp.MustCompile(`[a-z0-9']+`)

func tokenize(utterance string) []string {
	return tokenRe.FindAllString(strings.ToLower(utterance), -1)
}

// Classify scores utterance against every registered schema and returns the
// winner plus the top-3 alternatives (spec.md §4.4).
func (r *Registry) Classify(utterance string) Classification {
	tokens := tokenize(utterance)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = struct{}{}
	}

	r.mu.RLock()
	schemas := make([]*Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		schemas = append(schemas, s)
	}
	r.mu.RUnlock()

	trainableScores := r.trainable.scores(utterance)

	scored := make([]ScoredIntent, 0, len(schemas))
	for _, s := range schemas {
		keywordScore := keywordSignal(s.Keywords, tokenSet)
		patternScore := patternSignal(s.compiledPatterns, utterance)
		trainableScore, hasTrainable := trainableScores[s.Intent]

		weightSum := r.keywordWeight + r.patternWeight
		combined := r.keywordWeight*keywordScore + r.patternWeight*patternScore
		if hasTrainable {
			combined += r.trainableWeight * trainableScore
			weightSum += r.trainableWeight
		}
		if weightSum > 0 {
			combined /= weightSum
		}
		scored = append(scored, ScoredIntent{Intent: s.Intent, Score: combined})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if len(scored) == 0 {
		return Classification{Intent: Unknown, Confidence: 0, LowConfidence: true}
	}

	winner := scored[0]
	alts := scored[1:]
	if len(alts) > 3 {
		alts = alts[:3]
	}

	result := Classification{
		Intent:       winner.Intent,
		Confidence:   winner.Score,
		Alternatives: alts,
	}
	if winner.Score < r.confidenceFloor {
		result.LowConfidence = true
	}
	return result
}

func keywordSignal(keywords []string, tokens map[string]struct{}) float64 {
	if len(keywords) == 0 {
		return 0
	}
	matched := 0
	for _, kw := range keywords {
		if _, ok := tokens[strings.ToLower(kw)]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

func patternSignal(patterns []*regexp.Regexp, utterance string) float64 {
	if len(patterns) == 0 {
		return 0
	}
	matched := 0
	for _, re := range patterns {
		if re.MatchString(utterance) {
			matched++
		}
	}
	score := float64(matched) / float64(len(patterns))
	if score > 1 {
		score = 1
	}
	return score
}
