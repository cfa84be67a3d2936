// Package router classifies content into a modality and dispatches it to the
// matching evaluator. It also hosts the evaluate, patch, re-evaluate pipeline
// and a bounded concurrent batch evaluator.
package router

import (
	"context"
	"regexp"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/promptqa/internal/evaluate"
	"github.com/dshills/promptqa/internal/patch"
	"github.com/dshills/promptqa/internal/schema"
)

// Route is the outcome of classification.
type Route struct {
	Modality schema.Modality `json:"modality"`
	Subtype  schema.Subtype  `json:"subtype,omitempty"`
}

type keywordSet struct {
	modality schema.Modality
	words    []*regexp.Regexp
}

// Priority order: the first set with a match wins.
var modalityKeywords = []keywordSet{
	{schema.ModalityVideo, compile("video", "text-to-video", "image-to-video", "t2v", "i2v", "animation",
		"motion", "sora", "runway", "veo", "kling")},
	{schema.ModalityImage, compile("image", "photo", "illustration", "midjourney", "dall-e", "dalle",
		"stable diffusion", "stable-diffusion", "flux", "artwork", "visual")},
	{schema.ModalityAudio, compile("audio", "music", "voice", "speech", "tts", "podcast", "song", "sound")},
	{schema.ModalityEmail, compile("email", "newsletter", "outreach", "cold email")},
}

var imageToVideoKeywords = compile("image-to-video", "img2vid", "i2v", "animate image",
	"source image", "photo to video", "reference image")

// compile builds case-insensitive word-boundary matchers that also accept
// multi-word and hyphenated keywords.
func compile(words ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`(?i)(?:^|[^\pL\pN])` + regexp.QuoteMeta(w) + `(?:$|[^\pL\pN])`)
	}
	return out
}

func matchAny(words []*regexp.Regexp, fields []string) bool {
	for _, f := range fields {
		if f == "" {
			continue
		}
		for _, w := range words {
			if w.MatchString(f) {
				return true
			}
		}
	}
	return false
}

// Classify infers the modality from tags, category and type, and for video
// the subtype from tags, category, title and description.
func Classify(src schema.ContentSource) Route {
	fields := append(append([]string{}, src.Tags...), src.Category, string(src.Type))
	for _, ks := range modalityKeywords {
		if !matchAny(ks.words, fields) {
			continue
		}
		if ks.modality != schema.ModalityVideo {
			return Route{Modality: ks.modality}
		}
		subFields := append(append([]string{}, src.Tags...), src.Category, src.Title, src.Description)
		if matchAny(imageToVideoKeywords, subFields) {
			return Route{Modality: schema.ModalityVideo, Subtype: schema.SubtypeImageToVideo}
		}
		return Route{Modality: schema.ModalityVideo, Subtype: schema.SubtypeTextToVideo}
	}
	return Route{Modality: schema.ModalityText}
}

// Evaluator returns the evaluator for a route.
func (r Route) Evaluator() evaluate.Evaluator {
	return evaluate.For(r.Modality, r.Subtype)
}

// Content extracts the evaluable prompt content of a record.
func Content(src schema.ContentSource) schema.PromptContent {
	return schema.PromptContent{Text: src.Body(), Sections: src.Sections}
}

// Evaluate classifies src and evaluates it.
func Evaluate(src schema.ContentSource) schema.QaResult {
	return Classify(src).Evaluator().Evaluate(Content(src))
}

// PipelineResult is the outcome of one evaluate, patch, re-evaluate cycle.
type PipelineResult struct {
	ID     string             `json:"id,omitempty"`
	Route  Route              `json:"route"`
	Before schema.QaResult    `json:"before"`
	Patch  schema.PatchResult `json:"patch"`
	After  schema.QaResult    `json:"after"`
}

// Improved reports whether patching raised the score.
func (p PipelineResult) Improved() bool {
	return p.After.Score > p.Before.Score
}

// Pipeline classifies src, evaluates it, appends any missing sections and
// evaluates the patched text. When nothing is missing After equals Before.
func Pipeline(src schema.ContentSource) PipelineResult {
	route := Classify(src)
	ev := route.Evaluator()
	content := Content(src)
	before := ev.Evaluate(content)
	p := patch.Generate(ev.Rubric(), content, patch.ContextFrom(src))
	after := before
	if p.Changed() {
		after = ev.Evaluate(schema.PromptContent{Text: p.Patched, Sections: content.Sections})
	}
	return PipelineResult{ID: src.ID, Route: route, Before: before, Patch: p, After: after}
}

// EvaluateAll runs Pipeline over srcs with at most workers goroutines.
// Results keep the input order. workers <= 0 means one per source.
func EvaluateAll(ctx context.Context, srcs []schema.ContentSource, workers int) ([]PipelineResult, error) {
	out := make([]PipelineResult, len(srcs))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range srcs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = Pipeline(srcs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// String renders a route as "video/image-to-video" or "text".
func (r Route) String() string {
	if r.Subtype == "" {
		return string(r.Modality)
	}
	return string(r.Modality) + "/" + string(r.Subtype)
}
