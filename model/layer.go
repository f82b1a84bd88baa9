package model

// Layer 单个掩码卡片（存档或草稿中的一个条目）
type Layer struct {
	Source      Source `json:"source"`
	Index       int    `json:"index"`
	Label       string `json:"label"`
	BoundingBox BBox   `json:"bounding_box"`
	Area        int    `json:"area"`
}

// BBox 边界框
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ContourPoint 轮廓顶点（整数像素坐标）
type ContourPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// AnnotationState 一张图片当前的标注状态
type AnnotationState struct {
	Image          string   `json:"image"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	LabelOptions   []string `json:"label_options"`
	Layers         []Layer  `json:"layers"`
	DraftLayers    []Layer  `json:"draft_layers"`
	CompositeImage string   `json:"composite_image,omitempty"` // data:image/png;base64,...
	MaskImage      string   `json:"mask_image,omitempty"`
}

// RenderResult 合成结果
type RenderResult struct {
	CompositeImage string   `json:"composite_image"`
	MaskImage      string   `json:"mask_image"`
	MissingClasses []string `json:"missing_classes,omitempty"`
	Fallback       bool     `json:"fallback,omitempty"` // 渲染失败，仅返回原图
}

// SaveResult 保存结果
type SaveResult struct {
	Image    string `json:"image"`
	Entries  int    `json:"entries"`
	Checksum string `json:"checksum"`
	SavedAt  int64  `json:"saved_at"`
}

// UploadedFile 单个上传文件的处理结果
type UploadedFile struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Response 通用成功响应
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
