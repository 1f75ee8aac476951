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

const ModerateContentURL = "https://api.moderatecontent.com/moderate/"

type ModerateContentClient struct {
	Client *http.Client
	Host   string
	Token  string
	Logger *slog.Logger
}

type moderateContentResp struct {
	ErrorCode   int                `json:"error_code"`
	Error       string             `json:"error"`
	RatingLabel string             `json:"rating_label"`
	Predictions map[string]float64 `json:"predictions"`
}

func NewModerateContentClient(token string) *ModerateContentClient {
	return &ModerateContentClient{
		Client: util.RobustHTTPClient(),
		Host:   ModerateContentURL,
		Token:  token,
		Logger: slog.Default().With("system", "moderatecontent"),
	}
}

func (c *ModerateContentClient) Classify(ctx context.Context, img image.Image) (*Result, error) {
	data, err := EncodeJPEG(img)
	if err != nil {
		return nil, err
	}
	respBytes, err := postForm(ctx, c.Client, "moderatecontent", c.Host, map[string]string{"key": c.Token}, formFile{Field: "file", Filename: "image.jpg", Data: data}, nil)
	if err != nil {
		return nil, err
	}

	var resp moderateContentResp
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse moderatecontent resp JSON: %w", err)
	}
	if c.Logger != nil {
		c.Logger.Debug("moderatecontent response", "resp", string(respBytes))
	}
	if resp.ErrorCode != 0 {
		return nil, fmt.Errorf("moderatecontent returned error: %s (%d)", resp.Error, resp.ErrorCode)
	}

	var rating Rating
	switch resp.RatingLabel {
	case "everyone":
		rating = Safe
	case "teen":
		rating = Warning
	case "adult":
		rating = Unsafe
	default:
		return nil, fmt.Errorf("moderatecontent: %w: %q", ErrUnknownRating, resp.RatingLabel)
	}
	adult, ok := resp.Predictions["adult"]
	if !ok {
		return nil, fmt.Errorf("moderatecontent resp missing adult prediction")
	}

	ratingCount.WithLabelValues("moderatecontent", rating.String()).Inc()
	return &Result{Rating: rating, Scores: map[Category]float64{Nudity: adult / 100}}, nil
}
