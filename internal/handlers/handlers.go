package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/snapclassify/internal/auth"
	"github.com/example/snapclassify/internal/picker"
	"github.com/example/snapclassify/internal/session"
	"github.com/example/snapclassify/internal/usecase"
)

// MaxUploadSize bounds the size of an uploaded image.
const MaxUploadSize = 10 << 20

const multipartOverhead = 1 << 20

type imageView struct {
	Ref         string `json:"ref"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type predictionView struct {
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	Percent string  `json:"percent"`
}

type sessionView struct {
	Status     session.Status     `json:"status"`
	StatusText string             `json:"status_text"`
	Model      session.ModelState `json:"model"`
	Notice     string             `json:"notice,omitempty"`
	Generation uint64             `json:"generation"`
	Image      *imageView         `json:"image"`
	Result     string             `json:"result"`
	Reason     string             `json:"reason,omitempty"`
	Prediction *predictionView    `json:"prediction"`
}

func newSessionView(s session.State) sessionView {
	view := sessionView{
		Status:     s.Status,
		StatusText: s.Status.Text(),
		Model:      s.Model,
		Notice:     s.Notice,
		Generation: s.Generation,
		Result:     s.Result.Kind.String(),
		Reason:     s.Result.Reason,
	}
	if s.Image != nil {
		view.Image = &imageView{Ref: string(s.Image.Ref), ContentType: s.Image.ContentType, Size: len(s.Image.Data)}
	}
	if pred, ok := s.Prediction(); ok {
		view.Prediction = &predictionView{Label: pred.Label, Score: pred.Score, Percent: pred.Percent()}
	}
	return view
}

func httpStatus(s session.State) int {
	switch s.Status {
	case session.StatusModelNotReady:
		return http.StatusServiceUnavailable
	case session.StatusAnalysisFailed:
		return http.StatusBadGateway
	case session.StatusPickerFailed:
		return http.StatusBadRequest
	case session.StatusPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusOK
	}
}

// MediaAccess guards uploads with bearer tokens. Only refusals of an
// authenticated caller are recorded on the session, through the picker's
// permission path; anonymous or forged requests get a 401 and nothing else.
func MediaAccess(uc *usecase.ClassificationUseCase, secret, audience string) gin.HandlerFunc {
	return auth.MediaAccessMiddleware(secret, audience, func(reason string) {
		uc.DenyMediaAccess(reason)
	})
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware
// may be nil when uploads are unauthenticated.
func RegisterRoutes(router *gin.Engine, uc *usecase.ClassificationUseCase, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, newSessionView(uc.Snapshot()))
	})

	upload := []gin.HandlerFunc{}
	if authMiddleware != nil {
		upload = append(upload, authMiddleware)
	}
	upload = append(upload, func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

		file, err := c.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		if ct := file.Header.Get("Content-Type"); ct != "" && !picker.Supported(ct) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only JPEG and PNG images are supported"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		if len(data) > 0 && !picker.Supported(picker.DetectContentType(data)) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only JPEG and PNG images are supported"})
			return
		}

		state := uc.SelectImage(c.Request.Context(), picker.UploadPicker{Filename: file.Filename, Data: data})
		c.JSON(httpStatus(state), newSessionView(state))
	})
	router.POST("/image", upload...)

	router.GET("/image", func(c *gin.Context) {
		state := uc.Snapshot()
		if state.Image == nil || len(state.Image.Data) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no image selected"})
			return
		}
		c.Data(http.StatusOK, state.Image.ContentType, state.Image.Data)
	})

	router.POST("/reset", func(c *gin.Context) {
		c.JSON(http.StatusOK, newSessionView(uc.Reset()))
	})

	router.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, uc.GetMetricsSummary())
	})
}
