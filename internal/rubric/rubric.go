// Package rubric defines the per-modality rule tables used by the detector,
// contradiction scanner and scorer. Each rubric is pure data; the packages
// that consume it iterate the tables with one generic function.
package rubric

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/dshills/promptqa/internal/schema"
)

// Section is a structural section and the header aliases that identify it.
type Section struct {
	Name    string
	Aliases []string
}

// Check is a named explicitness test worth Weight points when Pattern
// matches anywhere in the prompt text.
type Check struct {
	Name    string
	Weight  int
	Pattern *regexp.Regexp
}

// Pair is a contradiction: it fires when both terms occur in the text.
type Pair struct {
	A, B string
}

// Rubric is the complete rule table for one evaluator.
type Rubric struct {
	Name        string
	Description string
	Modality    schema.Modality
	Subtype     schema.Subtype

	Sections        []Section
	StructureWeight int
	Checks          []Check
	// ConstraintWeight is split evenly between a non-empty constraint
	// section body and a directive term inside it.
	ConstraintWeight  int
	ConstraintSection string

	Contradictions []Pair
	Instability    []string

	// MissingLevel is the issue level of a missing section.
	MissingLevel schema.IssueLevel
	// FlagVagueChecks emits a warning for every failed explicitness check.
	FlagVagueChecks bool
}

// Total returns the pre-penalty ceiling of the rubric.
func (r Rubric) Total() int {
	t := r.StructureWeight + r.ConstraintWeight
	for _, c := range r.Checks {
		t += c.Weight
	}
	return t
}

const (
	ContradictionPenalty    = 15
	ContradictionPenaltyCap = 30
	InstabilityPenalty      = 5
	InstabilityPenaltyCap   = 15
)

// DirectivePattern matches the imperative terms that make a constraint
// section explicit.
var DirectivePattern = regexp.MustCompile(`(?i)\b(must|never|avoid|do not|don't|only|without|exclude|no)\b`)

var (
	placeholderRe  = regexp.MustCompile(`\{\{\s*[A-Za-z_][A-Za-z0-9_]*\s*\}\}`)
	lengthLimitRe  = regexp.MustCompile(`(?i)\b\d+\s*(words?|sentences?|paragraphs?|characters?|chars|tokens?|bullets?)\b`)
	toneRe         = regexp.MustCompile(`(?i)\b(tone|voice)\b`)
	aspectRatioRe  = regexp.MustCompile(`(?i)(\b\d{1,2}:\d{1,2}\b|aspect ratio|--ar\b)`)
	lightingRe     = regexp.MustCompile(`(?i)\b(lighting|lit|light|shadows?|golden hour|backlit)\b`)
	durationRe     = regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*(s|sec|secs|seconds?|min|minutes?)\b`)
	cameraMoveRe   = regexp.MustCompile(`(?i)\b(pan|pans|panning|tilt|dolly|tracking|zoom|orbit|crane|handheld|static camera|push in|pull out)\b`)
	motionDetailRe = regexp.MustCompile(`(?i)\b(walks?|runs?|moves?|turns?|flows?|drifts?|rises?|falls?|spins?|slowly|gradually|smoothly)\b`)
	preservationRe = regexp.MustCompile(`(?i)\b(preserve|preserving|keep|maintain|retain|consistent|unchanged|same)\b`)
	videoSections  = []Section{
		{Name: "SUBJECT", Aliases: []string{"SUBJECT", "CHARACTER"}},
		{Name: "ACTION", Aliases: []string{"ACTION", "MOTION", "MOVEMENT"}},
		{Name: "CAMERA", Aliases: []string{"CAMERA", "CAMERA MOVEMENT", "SHOT"}},
		{Name: "SCENE", Aliases: []string{"SCENE", "SETTING", "ENVIRONMENT"}},
		{Name: "STYLE", Aliases: []string{"STYLE", "LOOK", "AESTHETIC"}},
		{Name: "TIMING", Aliases: []string{"TIMING", "DURATION", "PACING"}},
		{Name: "CONSTRAINTS", Aliases: []string{"CONSTRAINTS", "AVOID", "NEGATIVE PROMPT"}},
	}
	videoContradictions = []Pair{
		{"photorealistic", "cartoon"},
		{"static camera", "tracking shot"},
		{"slow motion", "fast-paced"},
		{"single continuous shot", "multiple cuts"},
		{"daylight", "nighttime"},
	}
	videoInstability = []string{
		"flicker", "morphing", "warping", "jitter", "glitch",
		"chaotic", "random movement", "sudden change",
	}
)

// builtins is the registry of rubrics keyed by name.
var builtins = map[string]Rubric{
	"text": {
		Name:        "text",
		Description: "General text-generation prompts: role, task, context, output format, constraints.",
		Modality:    schema.ModalityText,
		Sections: []Section{
			{Name: "ROLE", Aliases: []string{"ROLE", "PERSONA", "ACT AS"}},
			{Name: "TASK", Aliases: []string{"TASK", "INSTRUCTIONS", "OBJECTIVE", "GOAL"}},
			{Name: "CONTEXT", Aliases: []string{"CONTEXT", "BACKGROUND", "INPUT"}},
			{Name: "OUTPUT FORMAT", Aliases: []string{"OUTPUT FORMAT", "FORMAT", "RESPONSE FORMAT"}},
			{Name: "CONSTRAINTS", Aliases: []string{"CONSTRAINTS", "RULES", "REQUIREMENTS", "GUIDELINES"}},
		},
		StructureWeight: 50,
		Checks: []Check{
			{Name: "placeholders", Weight: 10, Pattern: placeholderRe},
			{Name: "output_detail", Weight: 10, Pattern: regexp.MustCompile(`(?i)\b(json|markdown|bullets?|table|numbered list|headings?)\b`)},
			{Name: "length_limit", Weight: 10, Pattern: lengthLimitRe},
			{Name: "audience", Weight: 5, Pattern: regexp.MustCompile(`(?i)\b(audience|readers?|beginners?|experts?|customers?|stakeholders?)\b`)},
			{Name: "tone", Weight: 5, Pattern: toneRe},
		},
		ConstraintWeight:  10,
		ConstraintSection: "CONSTRAINTS",
		Contradictions: []Pair{
			{"be concise", "be detailed"},
			{"formal tone", "casual tone"},
			{"use bullet points", "avoid lists"},
			{"respond in json", "respond in markdown"},
			{"first person", "third person"},
		},
		MissingLevel: schema.IssueWarning,
	},
	"image": {
		Name:        "image",
		Description: "Still-image generation prompts.",
		Modality:    schema.ModalityImage,
		Sections: []Section{
			{Name: "SUBJECT", Aliases: []string{"SUBJECT", "MAIN SUBJECT"}},
			{Name: "STYLE", Aliases: []string{"STYLE", "ART STYLE", "AESTHETIC"}},
			{Name: "COMPOSITION", Aliases: []string{"COMPOSITION", "FRAMING", "LAYOUT"}},
			{Name: "DETAILS", Aliases: []string{"DETAILS", "DETAIL", "ELEMENTS"}},
			{Name: "OUTPUT SETTINGS", Aliases: []string{"OUTPUT SETTINGS", "SETTINGS", "PARAMETERS"}},
			{Name: "CONSTRAINTS", Aliases: []string{"CONSTRAINTS", "NEGATIVE PROMPT", "AVOID", "RESTRICTIONS"}},
		},
		StructureWeight: 45,
		Checks: []Check{
			{Name: "aspect_ratio", Weight: 8, Pattern: aspectRatioRe},
			{Name: "resolution", Weight: 7, Pattern: regexp.MustCompile(`(?i)(\b\d{3,4}\s*[x×]\s*\d{3,4}\b|\b[48]k\b|\bresolution\b|\bhd\b)`)},
			{Name: "lighting", Weight: 8, Pattern: lightingRe},
			{Name: "camera", Weight: 7, Pattern: regexp.MustCompile(`(?i)(\b\d{2,3}\s?mm\b|\blens\b|\bangle\b|\bclose-up\b|\bwide shot\b|\bdepth of field\b|\bbokeh\b)`)},
			{Name: "color_palette", Weight: 5, Pattern: regexp.MustCompile(`(?i)\b(palette|colou?rs?|hues?)\b`)},
		},
		ConstraintWeight:  20,
		ConstraintSection: "CONSTRAINTS",
		Contradictions: []Pair{
			{"photorealistic", "cartoon"},
			{"photorealistic", "anime"},
			{"minimalist", "highly detailed"},
			{"black and white", "vibrant colors"},
			{"daylight", "nighttime"},
			{"close-up", "wide shot"},
		},
		MissingLevel: schema.IssueWarning,
	},
	"text-to-video": {
		Name:            "text-to-video",
		Description:     "Video generated from text alone; sections advisory, explicitness enforced.",
		Modality:        schema.ModalityVideo,
		Subtype:         schema.SubtypeTextToVideo,
		Sections:        videoSections,
		StructureWeight: 40,
		Checks: []Check{
			{Name: "duration", Weight: 10, Pattern: durationRe},
			{Name: "frame_rate", Weight: 5, Pattern: regexp.MustCompile(`(?i)(\b\d{2}\s*fps\b|frame rate)`)},
			{Name: "camera_movement", Weight: 10, Pattern: cameraMoveRe},
			{Name: "motion_detail", Weight: 10, Pattern: motionDetailRe},
			{Name: "lighting", Weight: 5, Pattern: lightingRe},
			{Name: "aspect_ratio", Weight: 5, Pattern: aspectRatioRe},
		},
		ConstraintWeight:  15,
		ConstraintSection: "CONSTRAINTS",
		Contradictions:    videoContradictions,
		Instability:       videoInstability,
		MissingLevel:      schema.IssueWarning,
		FlagVagueChecks:   true,
	},
	"image-to-video": {
		Name:            "image-to-video",
		Description:     "Video animated from a source image; every section is mandatory.",
		Modality:        schema.ModalityVideo,
		Subtype:         schema.SubtypeImageToVideo,
		Sections:        videoSections,
		StructureWeight: 40,
		Checks: []Check{
			{Name: "preservation", Weight: 15, Pattern: preservationRe},
			{Name: "motion_detail", Weight: 10, Pattern: motionDetailRe},
			{Name: "camera_movement", Weight: 10, Pattern: cameraMoveRe},
			{Name: "duration", Weight: 10, Pattern: durationRe},
		},
		ConstraintWeight:  15,
		ConstraintSection: "CONSTRAINTS",
		Contradictions:    videoContradictions,
		Instability:       videoInstability,
		MissingLevel:      schema.IssueError,
	},
	"email": {
		Name:        "email",
		Description: "Email and outreach copy prompts.",
		Modality:    schema.ModalityEmail,
		Sections: []Section{
			{Name: "SUBJECT LINE", Aliases: []string{"SUBJECT LINE", "SUBJECT", "EMAIL SUBJECT"}},
			{Name: "AUDIENCE", Aliases: []string{"AUDIENCE", "RECIPIENT"}},
			{Name: "PURPOSE", Aliases: []string{"PURPOSE", "GOAL", "OBJECTIVE"}},
			{Name: "TONE", Aliases: []string{"TONE", "VOICE"}},
			{Name: "BODY", Aliases: []string{"BODY", "KEY POINTS", "MESSAGE"}},
			{Name: "CALL TO ACTION", Aliases: []string{"CALL TO ACTION", "CTA", "NEXT STEPS"}},
			{Name: "SIGNATURE", Aliases: []string{"SIGNATURE", "SIGN OFF", "CLOSING"}},
		},
		StructureWeight: 50,
		Checks: []Check{
			{Name: "personalization", Weight: 10, Pattern: regexp.MustCompile(`(?i)(\{\{\s*[A-Za-z_][A-Za-z0-9_]*\s*\}\}|\bfirst name\b|\brecipient'?s name\b|\bpersonali[sz]e)`)},
			{Name: "length_limit", Weight: 10, Pattern: lengthLimitRe},
			{Name: "cta_verb", Weight: 10, Pattern: regexp.MustCompile(`(?i)\b(reply|click|schedule|book|register|sign up|call|download|join|confirm)\b`)},
			{Name: "subject_limit", Weight: 5, Pattern: regexp.MustCompile(`(?i)\b(under|max|maximum|fewer than|at most)\s+\d+\s*(characters|chars|words)\b`)},
			{Name: "tone", Weight: 5, Pattern: toneRe},
		},
		ConstraintWeight:  10,
		ConstraintSection: "BODY",
		Contradictions: []Pair{
			{"formal tone", "casual tone"},
			{"keep it short", "include every detail"},
			{"no links", "include a link"},
			{"urgent", "no rush"},
		},
		MissingLevel: schema.IssueWarning,
	},
	"audio": {
		Name:        "audio",
		Description: "Speech, narration and music generation prompts.",
		Modality:    schema.ModalityAudio,
		Sections: []Section{
			{Name: "VOICE", Aliases: []string{"VOICE", "NARRATOR", "SPEAKER"}},
			{Name: "CONTENT", Aliases: []string{"CONTENT", "SCRIPT", "TEXT"}},
			{Name: "STYLE", Aliases: []string{"STYLE", "GENRE", "MOOD"}},
			{Name: "TEMPO", Aliases: []string{"TEMPO", "PACE", "BPM"}},
			{Name: "DURATION", Aliases: []string{"DURATION", "LENGTH"}},
			{Name: "OUTPUT SETTINGS", Aliases: []string{"OUTPUT SETTINGS", "FORMAT", "SETTINGS"}},
			{Name: "CONSTRAINTS", Aliases: []string{"CONSTRAINTS", "AVOID", "RESTRICTIONS"}},
		},
		StructureWeight: 45,
		Checks: []Check{
			{Name: "bpm", Weight: 10, Pattern: regexp.MustCompile(`(?i)\b\d{2,3}\s*bpm\b`)},
			{Name: "duration", Weight: 10, Pattern: durationRe},
			{Name: "file_format", Weight: 10, Pattern: regexp.MustCompile(`(?i)(\b(mp3|wav|flac|ogg|aac)\b|\b\d{2}(\.\d)?\s*khz\b|sample rate|bit depth)`)},
			{Name: "emotion", Weight: 10, Pattern: regexp.MustCompile(`(?i)\b(calm|energetic|warm|upbeat|somber|melancholic|joyful|tense|soothing|dramatic|emotion)\b`)},
		},
		ConstraintWeight:  15,
		ConstraintSection: "CONSTRAINTS",
		Contradictions: []Pair{
			{"upbeat", "melancholic"},
			{"slow tempo", "fast tempo"},
			{"masculine voice", "feminine voice"},
			{"whisper", "shouting"},
			{"instrumental only", "sung lyrics"},
		},
		MissingLevel: schema.IssueWarning,
	},
}

// Load returns the named rubric or an error if the name is unknown.
func Load(name string) (Rubric, error) {
	r, ok := builtins[name]
	if !ok {
		return Rubric{}, fmt.Errorf("rubric: unknown rubric %q (available: %v)", name, Names())
	}
	return r, nil
}

// For returns the rubric for a modality and subtype. Video without a subtype
// resolves to text-to-video; unknown modalities resolve to text.
func For(m schema.Modality, sub schema.Subtype) Rubric {
	switch m {
	case schema.ModalityVideo:
		if sub == schema.SubtypeImageToVideo {
			return builtins["image-to-video"]
		}
		return builtins["text-to-video"]
	case schema.ModalityImage, schema.ModalityEmail, schema.ModalityAudio:
		return builtins[string(m)]
	default:
		return builtins["text"]
	}
}

// Names returns the sorted rubric names.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
