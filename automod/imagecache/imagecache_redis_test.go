package imagecache

import (
	"context"
	"testing"
	"time"

	"github.com/canvasmod/canvasmod/automod/visual"
	"github.com/stretchr/testify/assert"
)

func TestRedisImageCacheBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")

	c, err := NewRedisImageCache("redis://localhost:6379/0", DefaultConfig())
	if err != nil {
		t.Fail()
	}
	testImageCacheBasics(t, c)
}

func TestRedisImageCacheEviction(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Retention = time.Hour
	c, err := NewRedisImageCache("redis://localhost:6379/0", cfg)
	if err != nil {
		t.Fail()
	}
	now := time.Now()
	c.Now = func() time.Time { return now }

	assert.NoError(c.Put(ctx, fingerprint(101, 102), &visual.Result{Rating: visual.Unsafe}))
	now = now.Add(2 * time.Hour)
	n, err := c.Evict(ctx)
	assert.NoError(err)
	assert.GreaterOrEqual(n, 1)

	res, err := c.Get(ctx, fingerprint(101, 102))
	assert.NoError(err)
	assert.Nil(res)
}
