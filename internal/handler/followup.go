package handler

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"CareFollow/internal/model/dto"
	"CareFollow/pkg/response"
)

// CreateDischarge 登记出院，异步生成随访计划
// POST /v1/discharges
func (h *Handler) CreateDischarge(ctx context.Context, c *app.RequestContext) {
	var req dto.DischargeRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	messageID, err := h.publisher.PublishDischarge(ctx, req.PatientID, req.DischargeAt)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Accepted(ctx, c, dto.AcceptedData{MessageID: messageID})
}

// CreatePatientMessage 接收患者回复，异步记录
// POST /v1/messages
func (h *Handler) CreatePatientMessage(ctx context.Context, c *app.RequestContext) {
	var req dto.PatientMessageRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	receivedAt := time.Now()
	if req.ReceivedAt != nil && !req.ReceivedAt.IsZero() {
		receivedAt = *req.ReceivedAt
	}

	messageID, err := h.publisher.PublishPatientMessage(ctx, req.PatientID, req.Text, receivedAt)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Accepted(ctx, c, dto.AcceptedData{MessageID: messageID})
}

// GetFollowUp 患者随访状态汇总
// GET /v1/patients/:patient_id/follow-up
func (h *Handler) GetFollowUp(ctx context.Context, c *app.RequestContext) {
	summary, err := h.summarizer.Summarize(ctx, c.Param("patient_id"))
	if err != nil {
		h.logger.Warn("Failed to summarize follow-up",
			zap.String("patient_id", c.Param("patient_id")),
			zap.Error(err),
		)
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, summary)
}
