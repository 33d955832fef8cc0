package handler

import (
	"github.com/gin-gonic/gin"

	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/internal/interfaces/http/dto"
)

// CommandHandler 流水线命令处理器
// 命令被接受后立即返回 202，进度通过事件流推送
type CommandHandler struct {
	pipeline Pipeline
}

// NewCommandHandler 创建命令处理器
func NewCommandHandler(p Pipeline) *CommandHandler {
	return &CommandHandler{pipeline: p}
}

// Status 获取当前状态
// @Summary 流水线状态
// @Tags Pipeline
// @Produce json
// @Success 200 {object} dto.Response[pipeline.Status]
// @Router /v1/status [get]
func (h *CommandHandler) Status(c *gin.Context) {
	dto.Success(c, h.pipeline.Status())
}

// Start 开始新小说
// @Summary 开始生成
// @Tags Pipeline
// @Accept json
// @Produce json
// @Param body body dto.StartRequest true "配置"
// @Success 202 {object} dto.Response[pipeline.Status]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/commands/start [post]
func (h *CommandHandler) Start(c *gin.Context) {
	var req dto.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.dispatch(c, req.ToCommand())
}

// Approve 审批当前产物
// @Summary 审批
// @Tags Pipeline
// @Accept json
// @Produce json
// @Param body body dto.ApproveRequest false "可选的编辑内容"
// @Success 202 {object} dto.Response[pipeline.Status]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/commands/approve [post]
func (h *CommandHandler) Approve(c *gin.Context) {
	var req dto.ApproveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}
	h.dispatch(c, bus.Command{Kind: bus.CommandApprove, Phase: req.Phase, Content: req.Content})
}

// Adjust 按反馈修改当前产物
// @Summary 反馈修改
// @Tags Pipeline
// @Accept json
// @Produce json
// @Param body body dto.AdjustRequest true "反馈"
// @Success 202 {object} dto.Response[pipeline.Status]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/commands/adjust [post]
func (h *CommandHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.dispatch(c, bus.Command{Kind: bus.CommandAdjust, Phase: req.Phase, Feedback: req.Feedback})
}

// Pause 暂停流式生成
// @Router /v1/commands/pause [post]
func (h *CommandHandler) Pause(c *gin.Context) {
	h.dispatch(c, bus.Command{Kind: bus.CommandPause})
}

// Resume 恢复流式生成
// @Router /v1/commands/resume [post]
func (h *CommandHandler) Resume(c *gin.Context) {
	h.dispatch(c, bus.Command{Kind: bus.CommandResume})
}

// Continue 从持久化的位置继续写作
// @Router /v1/commands/continue [post]
func (h *CommandHandler) Continue(c *gin.Context) {
	h.dispatch(c, bus.Command{Kind: bus.CommandContinue})
}

// Milestone 里程碑决策
// @Summary 扩展或收尾
// @Tags Pipeline
// @Accept json
// @Param body body dto.MilestoneRequest true "extend 或 wrapUp"
// @Router /v1/commands/milestone [post]
func (h *CommandHandler) Milestone(c *gin.Context) {
	var req dto.MilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.dispatch(c, bus.Command{Kind: bus.CommandDecideMilestone, Choice: bus.MilestoneChoice(req.Choice)})
}

// Consistency 一致性问题处理
// @Router /v1/commands/consistency [post]
func (h *CommandHandler) Consistency(c *gin.Context) {
	var req dto.ConsistencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.dispatch(c, bus.Command{Kind: bus.CommandResolveConsistency, AutoFix: req.AutoFix})
}

func (h *CommandHandler) dispatch(c *gin.Context, cmd bus.Command) {
	if err := h.pipeline.Dispatch(c.Request.Context(), cmd); err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Accepted(c, h.pipeline.Status())
}
