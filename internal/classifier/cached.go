package classifier

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/cache"
)

type cachedClassifier struct {
	inner   Classifier
	cache   cache.Cache
	modelID string
	ttl     time.Duration
	logger  *zap.Logger
}

// WithCache returns a Classifier that memoises results of inner per image
// digest. Cache failures are logged and never fail a classification.
func WithCache(inner Classifier, c cache.Cache, modelID string, ttl time.Duration, logger *zap.Logger) Classifier {
	return &cachedClassifier{
		inner:   inner,
		cache:   c,
		modelID: modelID,
		ttl:     ttl,
		logger:  logger.Named("prediction_cache"),
	}
}

func (c *cachedClassifier) Classify(ctx context.Context, image []byte, opts InvokeOptions) ([]Prediction, error) {
	hash := sha1.Sum(image)
	key := fmt.Sprintf("prediction:%s:%d:%s", c.modelID, opts.TopK, hex.EncodeToString(hash[:]))

	if cached, err := c.cache.Get(ctx, key); err == nil {
		var preds []Prediction
		decodeErr := json.Unmarshal([]byte(cached), &preds)
		if decodeErr == nil {
			return preds, nil
		}
		c.logger.Warn("failed to decode cached prediction", zap.String("key", key), zap.Error(decodeErr))
	} else if !errors.Is(err, cache.ErrMiss) {
		c.logger.Warn("failed to read prediction cache", zap.String("key", key), zap.Error(err))
	}

	preds, err := c.inner.Classify(ctx, image, opts)
	if err != nil {
		return nil, err
	}

	serialized, err := json.Marshal(preds)
	if err != nil {
		c.logger.Warn("failed to serialize prediction", zap.Error(err))
		return preds, nil
	}
	if err := c.cache.Set(ctx, key, string(serialized), c.ttl); err != nil {
		c.logger.Warn("failed to cache prediction", zap.String("key", key), zap.Error(err))
	}
	return preds, nil
}
