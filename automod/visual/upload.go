package visual

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"
)

// JPEGQuality is used for every image uploaded to a remote classifier.
const JPEGQuality = 90

func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

type formFile struct {
	Field    string
	Filename string
	Data     []byte
}

// postForm does a generic HTTP form file upload and returns the body of a 200 response.
func postForm(ctx context.Context, client *http.Client, provider, url string, fields map[string]string, file formFile, header http.Header) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	part, err := writer.CreateFormFile(file.Field, file.Filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, err
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "canvasmod/"+versioninfo.Short())

	start := time.Now()
	defer func() {
		classifierAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	res, err := client.Do(req)
	if err != nil {
		classifierAPICount.WithLabelValues(provider, "error").Inc()
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer res.Body.Close()

	classifierAPICount.WithLabelValues(provider, fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s request failed statusCode=%d", provider, res.StatusCode)
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s resp body: %w", provider, err)
	}
	return respBytes, nil
}
