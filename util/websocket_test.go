package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeedURL(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		host     string
		expected string
	}{
		{"localhost", "ws://localhost/feed"},
		{"localhost:8080", "ws://localhost:8080/feed"},
		{"127.0.0.1", "ws://127.0.0.1/feed"},
		{"127.0.0.5:99", "ws://127.0.0.5:99/feed"},
		{"[::1]", "ws://[::1]/feed"},
		{"[::1]:6567", "ws://[::1]:6567/feed"},
		{"wss://127.0.0.1:443", "wss://127.0.0.1:443/feed"},
		{"game.example.com", "wss://game.example.com/feed"},
		{"ws://game.example.com/custom", "ws://game.example.com/custom"},
		{"http://game.example.com", "ws://game.example.com/feed"},
		{"https://game.example.com:123/x/y", "wss://game.example.com:123/x/y"},
		{"ftp://game.example.com", "ftp://game.example.com"},
		{"", ""},
		{"a", "wss://a/feed"},
	}

	for _, c := range testCases {
		assert.Equal(c.expected, FeedURL(c.host, "/feed"), c.host)
	}
	assert.Equal("wss://a", FeedURL("a", ""))
}

func TestRobustHTTPClient(t *testing.T) {
	assert := assert.New(t)

	c := RobustHTTPClient()
	assert.NotNil(c.Transport)
	assert.Equal(20e9, float64(c.Timeout))
}
