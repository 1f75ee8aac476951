package visual

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strings"

	"github.com/canvasmod/canvasmod/util"
)

const SightEngineURL = "https://api.sightengine.com/1.0/check.json"

var sightEngineNudityFields = []string{"sexual_activity", "sexual_display", "sextoy", "erotica"}

type SightEngineClient struct {
	Client     *http.Client
	Host       string
	User       string
	Secret     string
	Categories []Category
	Unsafe     float64
	Warning    float64
	Logger     *slog.Logger
}

// schema: https://sightengine.com/docs/reference
type sightEngineResp struct {
	Status string `json:"status"`
	Error  *struct {
		Type    string `json:"type"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Nudity map[string]json.RawMessage `json:"nudity,omitempty"`
	Gore   *struct {
		Prob float64 `json:"prob"`
	} `json:"gore,omitempty"`
}

func NewSightEngineClient(user, secret string) *SightEngineClient {
	return &SightEngineClient{
		Client:     util.RobustHTTPClient(),
		Host:       SightEngineURL,
		User:       user,
		Secret:     secret,
		Categories: []Category{Nudity, Gore},
		Unsafe:     0.55,
		Warning:    0.4,
		Logger:     slog.Default().With("system", "sightengine"),
	}
}

func (c *SightEngineClient) models() (string, error) {
	var models []string
	for _, cat := range c.Categories {
		switch cat {
		case Nudity:
			models = append(models, "nudity-2.0")
		case Gore:
			models = append(models, "gore")
		default:
			return "", fmt.Errorf("sightengine does not support category %q", cat)
		}
	}
	return strings.Join(models, ","), nil
}

func (c *SightEngineClient) Classify(ctx context.Context, img image.Image) (*Result, error) {
	models, err := c.models()
	if err != nil {
		return nil, err
	}
	data, err := EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{
		"api_user":   c.User,
		"api_secret": c.Secret,
		"models":     models,
	}
	respBytes, err := postForm(ctx, c.Client, "sightengine", c.Host, fields, formFile{Field: "media", Filename: "image.jpg", Data: data}, nil)
	if err != nil {
		return nil, err
	}

	var resp sightEngineResp
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse sightengine resp JSON: %w", err)
	}
	if resp.Status != "success" {
		if resp.Error != nil {
			return nil, fmt.Errorf("sightengine returned error: %s (%d)", resp.Error.Message, resp.Error.Code)
		}
		return nil, fmt.Errorf("sightengine returned status %q", resp.Status)
	}
	c.logger().Debug("sightengine response", "resp", string(respBytes))

	scores := make(map[Category]float64, len(c.Categories))
	for _, cat := range c.Categories {
		switch cat {
		case Nudity:
			var worst float64
			for _, field := range sightEngineNudityFields {
				raw, ok := resp.Nudity[field]
				if !ok {
					return nil, fmt.Errorf("sightengine resp missing nudity.%s", field)
				}
				var v float64
				if err := json.Unmarshal(raw, &v); err != nil {
					return nil, fmt.Errorf("sightengine nudity.%s: %w", field, err)
				}
				worst = max(worst, v)
			}
			scores[Nudity] = worst
		case Gore:
			if resp.Gore == nil {
				return nil, fmt.Errorf("sightengine resp missing gore")
			}
			scores[Gore] = resp.Gore.Prob
		}
	}

	res := &Result{Rating: RateScores(scores, c.Unsafe, c.Warning), Scores: scores}
	ratingCount.WithLabelValues("sightengine", res.Rating.String()).Inc()
	return res, nil
}

func (c *SightEngineClient) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// RateScores rates by the highest score: strictly above unsafe is Unsafe,
// strictly above warning is Warning.
func RateScores(scores map[Category]float64, unsafe, warning float64) Rating {
	var top float64
	for _, v := range scores {
		top = max(top, v)
	}
	switch {
	case top > unsafe:
		return Unsafe
	case top > warning:
		return Warning
	}
	return Safe
}
