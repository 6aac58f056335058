package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/config"
	"github.com/example/snapclassify/internal/handlers"
	"github.com/example/snapclassify/internal/picker"
	"github.com/example/snapclassify/internal/session"
)

type globalFlags struct {
	modelID string
	backend string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "snapclassify",
		Short: "Pick an image and classify it with a pre-trained model",
		Long: `snapclassify loads an image-classification model once at startup and
reports the top label and confidence for each picked image.

It runs either as an HTTP service (serve) or as a one-shot CLI (classify).`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.modelID, "model", "", "model identifier (overrides MODEL_ID)")
	cmd.PersistentFlags().StringVar(&flags.backend, "backend", "", "classifier backend: grpc or onnx (overrides CLASSIFIER_BACKEND)")

	cmd.AddCommand(newServeCmd(flags), newClassifyCmd(flags))
	return cmd
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if flags.modelID != "" {
		cfg.ModelID = flags.modelID
	}
	if flags.backend != "" {
		cfg.Backend = flags.backend
	}
	return cfg, nil
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the classification session over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			loadCtx, cancelLoad := context.WithCancel(context.Background())
			defer cancelLoad()
			a.loader.Start(loadCtx)

			r := gin.Default()
			r.MaxMultipartMemory = handlers.MaxUploadSize

			var authMiddleware gin.HandlerFunc
			if cfg.MediaAuthSecret != "" {
				authMiddleware = handlers.MediaAccess(a.uc, cfg.MediaAuthSecret, cfg.MediaAuthAudience)
			}
			handlers.RegisterRoutes(r, a.uc, authMiddleware)

			server := &http.Server{
				Addr:    cfg.HTTPAddr,
				Handler: r,
			}

			a.logger.Info("snapclassify listening",
				zap.String("addr", cfg.HTTPAddr),
				zap.String("model_id", cfg.ModelID),
				zap.String("backend", cfg.Backend),
			)
			srv := &sessionServer{
				http:            server,
				logger:          a.logger,
				shutdownTimeout: 15 * time.Second,
				stopLoading:     cancelLoad,
				snapshot:        a.uc.Snapshot,
			}
			return srv.run(nil, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func newClassifyCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "classify <image>",
		Short: "Classify a single image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// a failed load is reported through the session status below
			_, _ = a.loader.Load(ctx)

			state := a.uc.SelectImage(ctx, picker.FilePicker{Path: args[0]})
			printState(cmd.OutOrStdout(), state)
			if _, ok := state.Prediction(); !ok {
				return fmt.Errorf("%w: %s", errNotClassified, state.Status.Text())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall time limit for loading the model and classifying")
	return cmd
}

func printState(w io.Writer, state session.State) {
	fmt.Fprintln(w, state.Status.Text())
	if state.Notice != "" {
		fmt.Fprintln(w, state.Notice)
	}
	if state.Image != nil {
		fmt.Fprintf(w, "Image: %s\n", state.Image.Ref)
	} else {
		fmt.Fprintln(w, "No image selected")
	}
	if pred, ok := state.Prediction(); ok {
		fmt.Fprintf(w, "Prediction: %s\nProbability: %s\n", pred.Label, pred.Percent())
	}
}
