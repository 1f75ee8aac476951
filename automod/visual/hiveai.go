package visual

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"net/http"

	"github.com/canvasmod/canvasmod/util"
)

const HiveAIURL = "https://api.thehive.ai/api/v2/task/sync"

type HiveAIClient struct {
	Client   *http.Client
	Host     string
	ApiToken string
	Logger   *slog.Logger
}

// schema: https://docs.thehive.ai/reference/classification
type HiveAIResp struct {
	Status []HiveAIResp_Status `json:"status"`
}

type HiveAIResp_Status struct {
	Response HiveAIResp_Response `json:"response"`
}

type HiveAIResp_Response struct {
	Output []HiveAIResp_Out `json:"output"`
}

type HiveAIResp_Out struct {
	Time    float64            `json:"time"`
	Classes []HiveAIResp_Class `json:"classes"`
}

type HiveAIResp_Class struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
}

func NewHiveAIClient(token string) *HiveAIClient {
	return &HiveAIClient{
		Client:   util.RobustHTTPClient(),
		Host:     HiveAIURL,
		ApiToken: token,
		Logger:   slog.Default().With("system", "hiveai"),
	}
}

var hiveGoreClasses = []string{"very_bloody", "human_corpse", "hanging"}

var hiveNudityClasses = []string{
	"yes_sexual_activity", "animal_genitalia_and_human", "yes_realistic_nsfw", "general_nsfw",
	"yes_sexual_intent", "yes_sex_toy", "yes_male_nudity", "yes_female_nudity", "yes_undressed",
}

// Rates one output's classes, from most to least severe:
//
// porn: explicit activity or full-frontal, Unsafe
// gore: very bloody, corpses, hanging, Unsafe
// sexual: suggestive, not explicit, Warning
// nudity: non-sexual nudity (eg, artistic), Warning
//
// hive docs/definitions: https://docs.thehive.ai/docs/sexual-content
func summarizeClasses(cl []HiveAIResp_Class) Rating {
	scores := make(map[string]float64)
	for _, cls := range cl {
		scores[cls.Class] = cls.Score
	}

	threshold := 0.90

	// furry art comes back with a custom model score; require very high confidence
	if furryScore, ok := scores["furry-yes_furry"]; ok && furryScore > 0.95 {
		threshold = 0.99
	}

	for _, goreClass := range hiveGoreClasses {
		if scores[goreClass] >= 0.90 {
			return Unsafe
		}
	}
	for _, pornClass := range []string{"yes_sexual_activity", "animal_genitalia_and_human", "yes_realistic_nsfw"} {
		if scores[pornClass] >= threshold {
			return Unsafe
		}
	}
	if scores["general_nsfw"] >= threshold {
		// special case for some anime examples
		if scores["animated_animal_genitalia"] >= 0.5 {
			return Unsafe
		}
		if scores["yes_undressed"] >= threshold && scores["yes_sexual_activity"] >= threshold {
			return Unsafe
		}
	}

	for _, sexualClass := range []string{"yes_sexual_intent", "yes_sex_toy"} {
		if scores[sexualClass] >= threshold {
			return Warning
		}
	}
	if scores["yes_undressed"] >= threshold && scores["yes_sex_toy"] > 0.75 {
		return Warning
	}
	for _, nudityClass := range []string{"yes_male_nudity", "yes_female_nudity", "yes_undressed"} {
		if scores[nudityClass] >= threshold {
			return Warning
		}
	}
	return Safe
}

// Summarize folds every output into one result. Category scores are the
// highest score of any class belonging to the category.
func (resp *HiveAIResp) Summarize() *Result {
	res := &Result{Rating: Safe, Scores: map[Category]float64{Nudity: 0, Gore: 0}}
	for _, status := range resp.Status {
		for _, out := range status.Response.Output {
			res.Rating = max(res.Rating, summarizeClasses(out.Classes))
			for _, cls := range out.Classes {
				for _, name := range hiveGoreClasses {
					if cls.Class == name {
						res.Scores[Gore] = max(res.Scores[Gore], cls.Score)
					}
				}
				for _, name := range hiveNudityClasses {
					if cls.Class == name {
						res.Scores[Nudity] = max(res.Scores[Nudity], cls.Score)
					}
				}
			}
		}
	}
	return res
}

func (hal *HiveAIClient) Classify(ctx context.Context, img image.Image) (*Result, error) {
	data, err := EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Token %s", hal.ApiToken))
	respBytes, err := postForm(ctx, hal.Client, "hiveai", hal.Host, nil, formFile{Field: "media", Filename: "image.jpg", Data: data}, header)
	if err != nil {
		return nil, err
	}

	var respObj HiveAIResp
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		return nil, fmt.Errorf("failed to parse HiveAI resp JSON: %w", err)
	}
	res := respObj.Summarize()
	if hal.Logger != nil {
		hal.Logger.Info("hive-ai-response", "rating", res.Rating, "scores", res.Scores)
	}
	ratingCount.WithLabelValues("hiveai", res.Rating.String()).Inc()
	return res, nil
}
