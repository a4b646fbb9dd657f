package flows

import (
	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/media"
	"github.com/papercomputeco/studyflow/pkg/schema"
)

const cartoonifyPrompt = `{{media url=imageMediaRef}}Convert this image into a photorealistic cartoon. The style should be detailed and closer to reality, suitable for educational visual aids.`

const transcribePrompt = `You are an expert at transcribing and summarizing audio content.

First, transcribe the provided audio file precisely.
Second, create a concise, bullet-pointed summary of the key topics and action items from the transcription.

Audio: {{media url=audioMediaRef}}`

// ImageInput is the input of the cartoon flow.
type ImageInput struct {
	Image media.Reference `json:"imageMediaRef"`
}

// Cartoon is the output of the cartoon flow.
type Cartoon struct {
	Cartoon media.Reference `json:"cartoonMediaRef"`
}

// AudioInput is the input of the transcription flow.
type AudioInput struct {
	Audio media.Reference `json:"audioMediaRef"`
}

// Transcript is the output of the transcription flow.
type Transcript struct {
	Transcription string `json:"transcription" yaml:"transcription"`
	Summary       string `json:"summary" yaml:"summary"`
}

func defineCartoonify() (*flow.Definition, error) {
	return flow.Define(flow.Config{
		Name:        CartoonifyImage,
		Description: "Redraws an image as a detailed, realistic cartoon.",
		Input: schema.Object(
			schema.Prop("imageMediaRef", schema.Media().Describe("An image to cartoonify, "+dataURIDescription)),
		),
		Output: schema.Object(
			schema.Prop("cartoonMediaRef", schema.Media().Describe("The cartoonified image as a data URI.")),
		),
		Prompt:      cartoonifyPrompt,
		Modalities:  []llm.Modality{llm.ModalityText, llm.ModalityImage},
		MediaOutput: "cartoonMediaRef",
	})
}

func defineTranscribe() (*flow.Definition, error) {
	return flow.Define(flow.Config{
		Name:        TranscribeAndSummarize,
		Description: "Transcribes an audio recording and summarizes its key topics and action items.",
		Input: schema.Object(
			schema.Prop("audioMediaRef", schema.Media().Describe("An audio file to process, "+dataURIDescription)),
		),
		Output: schema.Object(
			schema.Prop("transcription", schema.String().Describe("The full transcription of the audio.")),
			schema.Prop("summary", schema.String().Describe("A concise summary of the transcription.")),
		),
		Prompt: transcribePrompt,
	})
}
