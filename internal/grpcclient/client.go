package grpcclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/logging"
)

const (
	acquireMethod  = "/classification.v1.ModelRegistry/Acquire"
	classifyMethod = "/classification.v1.Classifier/Classify"
)

// DialRegistry returns a ready-to-use gRPC model registry client.
func DialRegistry(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (classifier.Registry, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_registry", "", err)
		logger.Error("failed to dial model registry", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewRegistry(conn, logger), conn, nil
}

// NewRegistry wraps an existing connection.
func NewRegistry(conn grpc.ClientConnInterface, logger *zap.Logger) classifier.Registry {
	return &grpcRegistry{conn: conn, logger: logger.Named("grpc_registry")}
}

type grpcRegistry struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

func (r *grpcRegistry) Acquire(ctx context.Context, task, modelID string, opts classifier.AcquireOptions) (classifier.Classifier, error) {
	req, err := structpb.NewStruct(map[string]any{
		"task":      task,
		"model_id":  modelID,
		"quantized": opts.Quantized,
	})
	if err != nil {
		return nil, err
	}

	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, acquireMethod, req, resp); err != nil {
		if status.Code(err) == codes.NotFound {
			err = fmt.Errorf("%w: %w", classifier.ErrModelNotFound, err)
		}
		wrapped := logging.NewOperationError("grpcclient.acquire", modelID, err)
		r.logger.Error("model registry call failed", zap.Error(wrapped), zap.String("model_id", modelID))
		return nil, wrapped
	}

	handleID := resp.GetFields()["handle_id"].GetStringValue()
	if handleID == "" {
		return nil, logging.NewOperationError("grpcclient.acquire", modelID, errors.New("registry returned an empty handle"))
	}
	return &grpcClassifier{conn: r.conn, handleID: handleID, logger: r.logger.With(zap.String("handle_id", handleID))}, nil
}

type grpcClassifier struct {
	conn     grpc.ClientConnInterface
	handleID string
	logger   *zap.Logger
}

func (g *grpcClassifier) Classify(ctx context.Context, image []byte, opts classifier.InvokeOptions) ([]classifier.Prediction, error) {
	req, err := structpb.NewStruct(map[string]any{
		"handle_id": g.handleID,
		"image":     DataURI(image),
		"top_k":     opts.TopK,
	})
	if err != nil {
		return nil, err
	}

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, classifyMethod, req, resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.classify", g.handleID, err)
		g.logger.Error("classifier call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	values := resp.GetFields()["predictions"].GetListValue().GetValues()
	preds := make([]classifier.Prediction, 0, len(values))
	for _, v := range values {
		fields := v.GetStructValue().GetFields()
		preds = append(preds, classifier.Prediction{
			Label: fields["label"].GetStringValue(),
			Score: fields["score"].GetNumberValue(),
		})
	}
	return classifier.TopK(preds, opts.TopK), nil
}

// DataURI encodes image the way the classification service expects it.
func DataURI(image []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(image), base64.StdEncoding.EncodeToString(image))
}
