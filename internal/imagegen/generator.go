package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Generator creates banner images for weather categories using OpenAI.
type Generator struct {
	client openai.Client
	model  string
}

func NewGenerator(apiKey string) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &Generator{
		client: client,
		model:  "gpt-image-1",
	}, nil
}

var categoryScenes = map[string]string{
	"clear":        "a bright clear sky over a quiet city skyline, crisp light",
	"clouds":       "a city skyline under soft layered clouds, muted light",
	"rain":         "rain falling over city streets, reflections on wet pavement",
	"drizzle":      "light drizzle over a city park, gentle mist",
	"thunderstorm": "a thunderstorm over a city at dusk, distant lightning",
	"snow":         "snow settling on rooftops of a calm city",
	"mist":         "a city skyline fading into morning mist",
	"fog":          "dense fog wrapping around city towers",
	"haze":         "hazy warm light over a sprawling city",
}

// BuildPrompt returns the image prompt for a weather category.
func BuildPrompt(category string) string {
	scene, ok := categoryScenes[strings.ToLower(category)]
	if !ok {
		scene = "a city skyline under an open sky"
	}
	return fmt.Sprintf("Minimal flat illustration of %s. Wide landscape banner, soft pastel palette, no text, no people.", scene)
}

// Generate returns a PNG banner for category.
func (g *Generator) Generate(ctx context.Context, category string) ([]byte, error) {
	log.Printf("imagegen: generating banner for %q", category)

	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:        g.model,
		Prompt:       BuildPrompt(category),
		Size:         openai.ImageGenerateParamsSize1536x1024,
		Quality:      openai.ImageGenerateParamsQualityLow,
		OutputFormat: openai.ImageGenerateParamsOutputFormatPNG,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no image data returned")
	}

	imageData := resp.Data[0].B64JSON
	if imageData == "" {
		return nil, errors.New("empty image data returned")
	}

	imageBytes, err := base64.StdEncoding.DecodeString(imageData)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}

	log.Printf("imagegen: generated banner for %q (%d bytes)", category, len(imageBytes))
	return imageBytes, nil
}
