package handler

import (
	"github.com/gin-gonic/gin"

	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/internal/domain/repository"
	"z-novel-pipeline/internal/interfaces/http/dto"
	"z-novel-pipeline/pkg/errors"
	"z-novel-pipeline/pkg/logger"
)

// ProjectHandler 项目处理器
type ProjectHandler struct {
	projectRepo repository.ProjectRepository
	pipeline    Pipeline
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(projectRepo repository.ProjectRepository, p Pipeline) *ProjectHandler {
	return &ProjectHandler{
		projectRepo: projectRepo,
		pipeline:    p,
	}
}

// ListProjects 获取项目列表
// @Summary 获取项目列表
// @Tags Projects
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[dto.ProjectListResponse]
// @Router /v1/projects [get]
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ProjectListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	names, err := h.projectRepo.List(ctx)
	if err != nil {
		logger.Error(ctx, "failed to list projects", err)
		dto.AppError(c, err)
		return
	}

	page := repository.Paginate(names, repository.NewPagination(req.Page, req.PageSize))
	dto.Success(c, dto.ProjectListResponse{
		Projects:   page.Items,
		Current:    h.pipeline.Status().Project,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	})
}

// CreateProject 创建项目并设为当前项目
// @Summary 创建项目
// @Tags Projects
// @Accept json
// @Produce json
// @Param body body dto.CreateProjectRequest true "项目名"
// @Success 201 {object} dto.Response[pipeline.Status]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects [post]
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.pipeline.Dispatch(ctx, bus.Command{Kind: bus.CommandCreateProject, Name: req.Name}); err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Created(c, h.pipeline.Status())
}

// GetProject 读取项目快照
// @Summary 获取项目详情
// @Tags Projects
// @Produce json
// @Param name path string true "项目名"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{name} [get]
func (h *ProjectHandler) GetProject(c *gin.Context) {
	ctx := c.Request.Context()

	p, err := h.projectRepo.Load(ctx, c.Param("name"))
	if err != nil {
		if !errors.IsAppError(err) {
			logger.Error(ctx, "failed to load project", err)
		}
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.ToProjectResponse(p))
}

// LoadProject 切换当前项目
// @Summary 加载项目
// @Tags Projects
// @Produce json
// @Param name path string true "项目名"
// @Success 200 {object} dto.Response[pipeline.Status]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{name}/load [post]
func (h *ProjectHandler) LoadProject(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.pipeline.Dispatch(ctx, bus.Command{Kind: bus.CommandLoadProject, Name: c.Param("name")}); err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, h.pipeline.Status())
}

// GetFile 读取项目中的单个持久化文件
// @Summary 读取项目文件
// @Tags Projects
// @Produce json
// @Param name path string true "项目名"
// @Param file path string true "文件名，如 story.txt"
// @Success 200 {object} dto.Response[dto.FileResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{name}/files/{file} [get]
func (h *ProjectHandler) GetFile(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")
	file := repository.File(c.Param("file"))

	if !knownFile(file) {
		dto.NotFound(c, "unknown project file")
		return
	}

	content, err := h.projectRepo.Read(ctx, name, file)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.FileResponse{Project: name, File: string(file), Content: content})
}

func knownFile(f repository.File) bool {
	for _, known := range repository.SkeletonFiles {
		if f == known {
			return true
		}
	}
	return false
}
