package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"jobMatch/internal/database"
	"jobMatch/internal/matching"
	"jobMatch/internal/tasks"
)

const defaultMaxCVBytes = 10 << 20

// 允许上传的 CV 扩展名及其存储时使用的 Content-Type。
var cvContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

var errInfected = errors.New("malicious file detected")

// VirusScanner 扫描上传内容，发现病毒时返回 errInfected。
type VirusScanner interface {
	Scan(r io.Reader) error
}

// ClamdScanner 通过 clamd 的 INSTREAM 命令扫描。
type ClamdScanner struct {
	addr string
}

func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{addr: addr}
}

func (s *ClamdScanner) Scan(r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := clamd.NewClamd(s.addr).ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}
	for result := range results {
		switch result.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			return fmt.Errorf("%w: %s", errInfected, result.Description)
		default:
			return fmt.Errorf("clamd %s: %s", result.Status, result.Description)
		}
	}
	return nil
}

type cvStatusReader interface {
	HasCV(ctx context.Context, id uint) (bool, error)
}

// CVHandler 处理 CV 上传与状态查询。
type CVHandler struct {
	db       *gorm.DB
	files    matching.CVFileStore
	status   cvStatusReader
	scanner  VirusScanner
	queue    TaskEnqueuer
	logger   *slog.Logger
	maxBytes int64
}

// NewCVHandler 构造 CV 处理器。scanner 与 queue 可以为空。
func NewCVHandler(db *gorm.DB, files matching.CVFileStore, scanner VirusScanner, queue TaskEnqueuer, logger *slog.Logger) *CVHandler {
	return &CVHandler{
		db:       db,
		files:    files,
		status:   matching.NewGormUserStore(db),
		scanner:  scanner,
		queue:    queue,
		logger:   logger,
		maxBytes: defaultMaxCVBytes,
	}
}

// UploadCV 保存新的 CV，更新用户的 CV 字段并投递后台重算。
func (h *CVHandler) UploadCV(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	log := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size > h.maxBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	contentType, allowed := cvContentTypes[ext]
	if !allowed {
		BadRequest(c, "only PDF, DOC and DOCX files are accepted")
		return
	}

	if h.scanner != nil {
		reader, err := file.Open()
		if err != nil {
			Internal(c, "failed to open file")
			return
		}
		err = h.scanner.Scan(reader)
		reader.Close()
		if errors.Is(err, errInfected) {
			log.Warn("infected cv rejected", slog.Any("error", err))
			BadRequest(c, "malicious file detected")
			return
		}
		if err != nil {
			log.Error("scan cv failed", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
	}

	var user database.User
	if err := h.db.WithContext(ctx).Select("id", "cv_filename").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		log.Error("load user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer reader.Close()

	key := fmt.Sprintf("cvs/%d/%s%s", userID, uuid.NewString(), ext)
	if err := h.files.PutCV(ctx, key, reader, file.Size, contentType); err != nil {
		log.Error("store cv failed", slog.Any("error", err))
		Internal(c, "failed to store file")
		return
	}

	uploadedAt := time.Now().UnixMilli()
	err = h.db.WithContext(ctx).Model(&database.User{}).Where("id = ?", userID).Updates(map[string]any{
		"cv_filename":     key,
		"cv_content_type": contentType,
		"cv_upload_date":  uploadedAt,
		"cv_data":         nil,
	}).Error
	if err != nil {
		log.Error("update user cv failed", slog.Any("error", err))
		if err := h.files.DeleteCV(ctx, key); err != nil {
			log.Warn("remove orphaned cv failed", slog.String("key", key), slog.Any("error", err))
		}
		Internal(c, "internal error")
		return
	}

	if user.CVFilename != nil && *user.CVFilename != "" && *user.CVFilename != key {
		if err := h.files.DeleteCV(ctx, *user.CVFilename); err != nil {
			log.Warn("remove previous cv failed", slog.String("key", *user.CVFilename), slog.Any("error", err))
		}
	}

	log.Info("cv uploaded", slog.String("key", key), slog.Int64("size", file.Size))
	h.enqueueRecompute(c, userID, log)

	c.JSON(http.StatusCreated, gin.H{
		"cv_filename":  key,
		"content_type": contentType,
		"uploaded_at":  uploadedAt,
	})
}

// enqueueRecompute 失败不影响上传结果，下一次读取匹配时缓存会因上传时间失效。
func (h *CVHandler) enqueueRecompute(c *gin.Context, userID uint, log *slog.Logger) {
	if h.queue == nil {
		return
	}
	task, err := tasks.NewMatchRecomputeTask(userID)
	if err != nil {
		log.Error("build recompute task failed", slog.Any("error", err))
		return
	}
	info, err := h.queue.EnqueueContext(c.Request.Context(), task)
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask):
		log.Info("recompute already queued", slog.String("reason", "cv_uploaded"))
	case err != nil:
		log.Warn("enqueue recompute after upload failed", slog.Any("error", err))
	default:
		log.Info("recompute task queued", slog.String("task_id", info.ID), slog.String("reason", "cv_uploaded"))
	}
}

// GetStatus 返回当前用户是否已有可用 CV。
func (h *CVHandler) GetStatus(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	hasCV, err := h.status.HasCV(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, matching.ErrNotFound) {
			NotFound(c, "user not found")
			return
		}
		requestLogger(c, h.logger).Error("load cv status failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_cv": hasCV})
}
