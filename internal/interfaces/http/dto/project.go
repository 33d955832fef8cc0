package dto

import (
	"z-novel-pipeline/internal/domain/entity"
)

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	Name string `json:"name" binding:"required,max=128"`
}

// ProjectListRequest 项目列表分页参数
type ProjectListRequest struct {
	Page     int `form:"page" binding:"omitempty,gte=1"`
	PageSize int `form:"page_size" binding:"omitempty,gte=1,lte=100"`
}

// ProjectListResponse 项目列表响应
type ProjectListResponse struct {
	Projects   []string `json:"projects"`
	Current    string   `json:"current,omitempty"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// ProjectResponse 项目详情响应
type ProjectResponse struct {
	Name            string                                    `json:"name"`
	Config          entity.ProjectConfig                      `json:"config"`
	Stages          map[entity.ContentType]entity.StageRecord `json:"stages,omitempty"`
	Synopsis        string                                    `json:"synopsis,omitempty"`
	RefinedSynopsis string                                    `json:"refined_synopsis,omitempty"`
	Outline         string                                    `json:"outline,omitempty"`
	Characters      []entity.Character                        `json:"characters,omitempty"`
	World           map[string]string                         `json:"world,omitempty"`
	Timeline        []entity.TimelineEvent                    `json:"timeline,omitempty"`
	Chapters        int                                       `json:"chapters"`
	Sections        int                                       `json:"sections"`
	WordCount       int                                       `json:"word_count"`
	Buffer          string                                    `json:"buffer,omitempty"`
}

// ToProjectResponse 转换项目快照
func ToProjectResponse(p *entity.Project) *ProjectResponse {
	sections := 0
	for _, ch := range p.Story {
		sections += len(ch.Sections)
	}
	return &ProjectResponse{
		Name:            p.Name,
		Config:          p.Config,
		Stages:          p.Stages,
		Synopsis:        p.Synopsis,
		RefinedSynopsis: p.RefinedSynopsis,
		Outline:         p.Outline,
		Characters:      p.Characters,
		World:           p.World,
		Timeline:        p.Timeline,
		Chapters:        len(p.Story),
		Sections:        sections,
		WordCount:       p.WordCount(),
		Buffer:          p.Buffer,
	}
}

// FileResponse 项目文件内容
type FileResponse struct {
	Project string `json:"project"`
	File    string `json:"file"`
	Content string `json:"content"`
}
